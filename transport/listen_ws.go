package transport

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// wsConn lets the handler of a WebSocket connection return once the link
// is done with it.
type wsConn struct {
	*websocket.Conn
	done chan struct{}
	once sync.Once
}

func (c *wsConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.Conn.Close()
}

// HandleWS hands a WebSocket connection to the port and holds it open until
// it is closed.
func HandleWS(p *NetPort, ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	conn := &wsConn{Conn: ws, done: make(chan struct{})}
	select {
	case p.accepted <- conn:
	case <-p.closer:
		return
	}
	select {
	case <-conn.done:
	case <-p.closer:
	}
}

// ListenWS takes a TCP address and returns a NetPort with an HTTP+WebSocket
// server listening on the given address.
func ListenWS(addr string) (*NetPort, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	p := newNetPort(l)
	s := &http.Server{
		Addr: addr,
		Handler: websocket.Handler(func(ws *websocket.Conn) {
			HandleWS(p, ws)
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		p.errs <- s.Serve(l)
	}()
	return p, nil
}
