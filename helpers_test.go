package fabric

import (
	"context"
	"sync"
	"testing"

	"github.com/broadcastmesh/fabric/internal/config"
)

// fakeTransport records every message sent to it, standing in for a real
// websocket connection in tests.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []map[string]interface{}
	closed bool
	// onClose mimics the real connection endpoint's read pump noticing
	// the transport died and reporting the departure to the dispatcher
	// (conn.go's readPump calls d.Close after the transport closes).
	onClose func()
}

func (f *fakeTransport) Send(v interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := v.(map[string]interface{})
	if !ok {
		return
	}
	f.sent = append(f.sent, m)
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	alreadyClosed := f.closed
	f.closed = true
	hook := f.onClose
	f.mu.Unlock()
	if !alreadyClosed && hook != nil {
		hook()
	}
}

func (f *fakeTransport) messages() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]interface{}, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) last() map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) typesOf(msgType string) []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]interface{}
	for _, m := range f.sent {
		if m["type"] == msgType {
			out = append(out, m)
		}
	}
	return out
}

// newTestDispatcher starts a Dispatcher with Croot=Cnode=2 running in the
// background, and returns it along with a cleanup func.
func newTestDispatcher(t *testing.T) (*Dispatcher, func()) {
	t.Helper()
	tun := config.Defaults()
	d := NewDispatcher(tun)
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	return d, cancel
}

// connectAndRegister connects a fake transport, registers it with the
// given role, and settles the dispatcher (via Snapshot, which can only
// return after every command enqueued before it has been processed,
// since all commands share one FIFO channel).
func connectAndRegister(d *Dispatcher, role string) (ID, *fakeTransport) {
	tr := &fakeTransport{}
	id, _ := d.Connect(tr)
	tr.onClose = func() { d.Close(id) }
	d.Message(id, []byte(`{"type":"register","role":"`+role+`"}`))
	d.Snapshot()
	return id, tr
}

func settle(d *Dispatcher) {
	d.Snapshot()
}
