package port

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mctp-go/mctpd/fw/core"
)

// WebSocketTransport emulates a bus over WebSocket binary messages, one
// frame per message. In server mode it is the hub of the bus: frames from
// one client are relayed to every other client.
type WebSocketTransport struct {
	transportBase
	inbox

	url      string
	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*wsConn]struct{}
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.c.WriteMessage(websocket.BinaryMessage, frame)
}

func newWebSocketTransport() *WebSocketTransport {
	t := &WebSocketTransport{
		inbox: makeInbox(64),
		conns: map[*wsConn]struct{}{},
	}
	t.running.Store(true)
	return t
}

// ListenWebSocket serves the bus hub on the listen address.
func ListenWebSocket(listen string) (*WebSocketTransport, error) {
	t := newWebSocketTransport()
	t.upgrader = websocket.Upgrader{
		WriteBufferPool: &sync.Pool{},
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("unable to listen on %s: %w", listen, err)
	}
	t.listener = ln
	t.url = "ws://" + ln.Addr().String()
	t.server = &http.Server{Handler: http.HandlerFunc(t.handler)}

	go func() {
		err := t.server.Serve(ln)
		if !errors.Is(err, http.ErrServerClosed) {
			core.Log.Error(t, "Unable to serve WebSocket", "err", err)
		}
	}()
	return t, nil
}

// DialWebSocket joins the bus served at url.
func DialWebSocket(url string) (*WebSocketTransport, error) {
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %w", url, err)
	}
	t := newWebSocketTransport()
	t.url = url
	t.addConn(c)
	return t, nil
}

func (t *WebSocketTransport) String() string {
	if t.server != nil {
		return fmt.Sprintf("web-socket-transport (listen=%s)", t.url)
	}
	return fmt.Sprintf("web-socket-transport (url=%s)", t.url)
}

// URL returns the WebSocket URL of the bus.
func (t *WebSocketTransport) URL() string {
	return t.url
}

func (t *WebSocketTransport) handler(w http.ResponseWriter, r *http.Request) {
	c, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	core.Log.Info(t, "Accepting WebSocket client", "remote", c.RemoteAddr())
	t.addConn(c)
}

func (t *WebSocketTransport) addConn(c *websocket.Conn) {
	conn := &wsConn{c: c}
	t.mu.Lock()
	t.conns[conn] = struct{}{}
	t.mu.Unlock()
	go t.runReceive(conn)
}

func (t *WebSocketTransport) runReceive(conn *wsConn) {
	defer func() {
		t.mu.Lock()
		delete(t.conns, conn)
		t.mu.Unlock()
		conn.c.Close()
	}()

	for {
		mt, message, err := conn.c.ReadMessage()
		if err != nil {
			if !t.running.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				// gracefully closed
			} else if websocket.IsUnexpectedCloseError(err) {
				core.Log.Info(t, "WebSocket closed unexpectedly", "err", err)
			} else {
				core.Log.Warn(t, "Unable to read from WebSocket", "err", err)
			}
			return
		}

		if mt != websocket.BinaryMessage {
			core.Log.Warn(t, "Ignored non-binary message")
			continue
		}

		if t.server != nil {
			t.broadcast(message, conn)
		}
		if !t.put(message) {
			core.Log.Debug(t, "Receive queue full - DROP")
			continue
		}
		t.countIn(len(message))
	}
}

func (t *WebSocketTransport) broadcast(frame []byte, except *wsConn) error {
	t.mu.Lock()
	conns := make([]*wsConn, 0, len(t.conns))
	for c := range t.conns {
		if c != except {
			conns = append(conns, c)
		}
	}
	t.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.write(frame); err != nil {
			errs = append(errs, err)
			c.c.Close()
		}
	}
	return errors.Join(errs...)
}

func (t *WebSocketTransport) TargetReceive(buf []byte) (int, error) {
	return t.get(buf)
}

func (t *WebSocketTransport) ControllerSend(_ uint8, frame []byte) error {
	if !t.running.Load() {
		return ErrClosed
	}
	if err := t.broadcast(frame, nil); err != nil {
		core.Log.Warn(t, "Unable to send on WebSocket", "err", err)
		return err
	}
	t.countOut(len(frame))
	return nil
}

func (t *WebSocketTransport) Close() error {
	if !t.running.Swap(false) {
		return nil
	}
	t.inbox.close()
	if t.server != nil {
		t.server.Shutdown(context.TODO())
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for c := range t.conns {
		c.c.Close()
	}
	return nil
}
