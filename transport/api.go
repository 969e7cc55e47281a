// Package transport provides the byte streams a link runs over: a USB
// serial port in production, TCP, Unix sockets, WebSocket or stdio for
// simulation and testing.
package transport

import (
	"context"
	"fmt"
	"io"
)

// Port hands out a connection each time the host attaches. It is used on
// the device side.
type Port interface {
	// Connect waits for the next connection or until ctx ends.
	Connect(ctx context.Context) (io.ReadWriteCloser, error)

	// Close closes the port.
	// Any blocked Connect operations will be unblocked and return errors.
	Close() error
}

// A Dialer connects the host to a device at addr.
type Dialer func(addr string) (io.ReadWriteCloser, error)

// A Lister opens a device side Port at addr.
type Lister func(addr string) (Port, error)

// Dialers and Listeners are keyed by transport name and include all
// builtin transports.
var (
	Dialers   map[string]Dialer
	Listeners map[string]Lister
)

func init() {
	Dialers = map[string]Dialer{
		"serial": DialSerial,
		"tcp":    DialTCP,
		"unix":   DialUnix,
		"ws":     DialWS,
		"stdio": func(_ string) (io.ReadWriteCloser, error) {
			return DialStdio(), nil
		},
	}
	Listeners = map[string]Lister{
		"serial": func(addr string) (Port, error) {
			return ListenSerial(addr)
		},
		"tcp": func(addr string) (Port, error) {
			return ListenTCP(addr)
		},
		"unix": func(addr string) (Port, error) {
			return ListenUnix(addr)
		},
		"ws": func(addr string) (Port, error) {
			return ListenWS(addr)
		},
		"stdio": func(_ string) (Port, error) {
			return ListenStdio(), nil
		},
	}
}

// Dial connects to addr using a registered transport. Available transports
// are "serial", "tcp", "unix", "ws" and "stdio". For "stdio" the addr can
// be left empty; for "serial" see ParseSerialAddr.
func Dial(transport, addr string) (io.ReadWriteCloser, error) {
	d, ok := Dialers[transport]
	if !ok {
		return nil, fmt.Errorf("transport '%s' is not available in Dialers", transport)
	}
	return d(addr)
}

// Listen opens a device side port using a registered transport.
func Listen(transport, addr string) (Port, error) {
	l, ok := Listeners[transport]
	if !ok {
		return nil, fmt.Errorf("transport '%s' is not available in Listeners", transport)
	}
	return l(addr)
}
