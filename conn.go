package fabric

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/broadcastmesh/fabric/internal/colorlog"
	"github.com/gorilla/websocket"
)

// outboundBuffer bounds how many pending sends a single participant's
// connection will hold before it is considered non-consuming. Closing
// such a peer is preferred over ever blocking the dispatcher.
const outboundBuffer = 32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsConn is the connection endpoint: one gorilla websocket connection, a
// read pump feeding the dispatcher, and a write pump draining a bounded
// outbound channel so a slow peer never stalls the single writer.
type wsConn struct {
	ws   *websocket.Conn
	d    *Dispatcher
	id   ID
	out  chan interface{}
	once sync.Once
}

// Send implements Transport. It never blocks: a full outbound buffer
// means the peer isn't keeping up, so the connection is torn down
// instead.
func (c *wsConn) Send(v interface{}) {
	select {
	case c.out <- v:
	default:
		colorlog.Warnf("outbound buffer full for %s, closing", c.id)
		c.Close()
	}
}

// Close terminates the connection. Idempotent: closing the out channel
// more than once would panic, so a sync.Once guards it.
func (c *wsConn) Close() {
	c.once.Do(func() {
		close(c.out)
		c.ws.Close()
	})
}

// ServeWS upgrades the request to a websocket and runs the connection
// until it closes: accept, frame, emit.
func ServeWS(d *Dispatcher, w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		colorlog.Errorf("websocket upgrade failed: %v", err)
		return
	}

	c := &wsConn{ws: ws, d: d, out: make(chan interface{}, outboundBuffer)}
	c.id, _ = d.Connect(c)

	go c.writePump()
	c.readPump()
}

func (c *wsConn) readPump() {
	defer func() {
		c.Close()
		c.d.Close(c.id)
	}()
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		// Each frame is processed as an atomic step against the
		// registry, in arrival order for this connection; the
		// dispatcher's channel preserves that order since Message is
		// only ever called from this one goroutine per connection.
		c.d.Message(c.id, raw)
	}
}

func (c *wsConn) writePump() {
	defer c.ws.Close()
	for v := range c.out {
		raw, err := json.Marshal(v)
		if err != nil {
			colorlog.Errorf("marshaling outbound message for %s: %v", c.id, err)
			continue
		}
		c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(500*time.Millisecond))
}
