package fabric

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// newWSTestServer wires a real Dispatcher behind a real ServeWS handler,
// the way cmd/fabricd's Server does, so the connection endpoint is
// exercised over an actual websocket round trip rather than the
// fakeTransport used elsewhere.
func newWSTestServer(t *testing.T) (*httptest.Server, *Dispatcher, func()) {
	t.Helper()
	d, cancel := newTestDispatcher(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(d, w, r)
	}))
	return ts, d, func() {
		ts.Close()
		cancel()
	}
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return ws
}

// TestServeWSRegistersBroadcasterOverRealSocket confirms a client
// connecting, sending `register`, and reading back `registered-as-
// broadcaster` works through the real upgrade/read-pump/write-pump
// plumbing of conn.go, not just the in-memory fakeTransport.
func TestServeWSRegistersBroadcasterOverRealSocket(t *testing.T) {
	ts, d, cleanup := newWSTestServer(t)
	defer cleanup()

	ws := dialWS(t, ts)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"register","role":"broadcaster"}`)))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &msg))
	require.Equal(t, outTypeRegisteredBroadcaster, msg["type"])

	snap := d.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "broadcaster", snap[0].Role)
}

// TestServeWSClosingSocketRemovesParticipant confirms the read pump's
// deferred Close/d.Close cascade actually removes a departed participant
// from the registry, the production counterpart to the fakeTransport-
// driven onClose wiring used in liveness_test.go.
func TestServeWSClosingSocketRemovesParticipant(t *testing.T) {
	ts, d, cleanup := newWSTestServer(t)
	defer cleanup()

	ws := dialWS(t, ts)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"register","role":"broadcaster"}`)))
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool {
		return len(d.Snapshot()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// TestServeWSOutboundBufferOverflowClosesConnection exercises the
// non-blocking-send rule: a peer that never drains its outbound buffer
// gets disconnected rather than stalling the dispatcher.
func TestServeWSOutboundBufferOverflowClosesConnection(t *testing.T) {
	ts, d, cleanup := newWSTestServer(t)
	defer cleanup()

	listener := dialWS(t, ts)
	require.NoError(t, listener.WriteMessage(websocket.TextMessage, []byte(`{"type":"register","role":"listener"}`)))
	// Don't read anything back; let the broadcaster flood it past
	// outboundBuffer via repeated metadata fan-out.

	broadcaster := dialWS(t, ts)
	defer broadcaster.Close()
	require.NoError(t, broadcaster.WriteMessage(websocket.TextMessage, []byte(`{"type":"register","role":"broadcaster"}`)))
	broadcaster.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := broadcaster.ReadMessage()
	require.NoError(t, err)

	for i := 0; i < outboundBuffer*3; i++ {
		broadcaster.WriteMessage(websocket.TextMessage, []byte(`{"type":"metadata","payload":{"n":`+strconv.Itoa(i)+`}}`))
	}

	require.Eventually(t, func() bool {
		for _, s := range d.Snapshot() {
			if s.Role == "listener" {
				return false
			}
		}
		return true
	}, 3*time.Second, 20*time.Millisecond)
}
