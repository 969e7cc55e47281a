package transport

import (
	"fmt"
	"io"

	"golang.org/x/net/websocket"
)

// DialWS connects via WebSocket.
// The address must be a host and port. Opening a WebSocket
// connection at a particular path is not supported.
func DialWS(addr string) (io.ReadWriteCloser, error) {
	ws, err := websocket.Dial(fmt.Sprintf("ws://%s/", addr), "", fmt.Sprintf("http://%s/", addr))
	if err != nil {
		return nil, err
	}
	ws.PayloadType = websocket.BinaryFrame
	return ws, nil
}
