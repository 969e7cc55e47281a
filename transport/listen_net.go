package transport

import (
	"context"
	"io"
	"net"
	"sync"
)

// NetPort wraps a net.Listener to hand out accepted connections.
type NetPort struct {
	net.Listener
	accepted chan io.ReadWriteCloser
	closer   chan struct{}
	once     sync.Once
	errs     chan error
}

// Connect waits for and returns the next connection accepted by the
// listener.
func (l *NetPort) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closer:
		return nil, io.EOF
	case err := <-l.errs:
		return nil, err
	case conn := <-l.accepted:
		return conn, nil
	}
}

// Close closes the listener.
// Any blocked Connect operations will be unblocked and return errors.
func (l *NetPort) Close() error {
	l.once.Do(func() { close(l.closer) })
	return l.Listener.Close()
}

func newNetPort(l net.Listener) *NetPort {
	return &NetPort{
		Listener: l,
		accepted: make(chan io.ReadWriteCloser),
		closer:   make(chan struct{}),
		errs:     make(chan error, 2),
	}
}

func listenNet(proto, addr string) (*NetPort, error) {
	l, err := net.Listen(proto, addr)
	if err != nil {
		return nil, err
	}
	p := newNetPort(l)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				p.errs <- err
				return
			}
			select {
			case p.accepted <- conn:
			case <-p.closer:
				conn.Close()
				return
			}
		}
	}()
	return p, nil
}

// ListenTCP creates a TCP port at the given address.
func ListenTCP(addr string) (*NetPort, error) {
	return listenNet("tcp", addr)
}

// ListenUnix creates a Unix domain socket port at the given path.
func ListenUnix(path string) (*NetPort, error) {
	return listenNet("unix", path)
}
