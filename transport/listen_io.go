package transport

import (
	"context"
	"io"
	"os"
	"sync"
)

type ioduplex struct {
	io.WriteCloser
	io.ReadCloser
}

func (d *ioduplex) Close() error {
	if err := d.WriteCloser.Close(); err != nil {
		return err
	}
	if err := d.ReadCloser.Close(); err != nil {
		return err
	}
	return nil
}

// ioPort hands out a single ReadWriteCloser once. A stream cannot be
// reattached, so later Connect calls wait for ctx.
type ioPort struct {
	mu     sync.Mutex
	rwc    io.ReadWriteCloser
	closed chan struct{}
	once   sync.Once
}

func (p *ioPort) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	p.mu.Lock()
	rwc := p.rwc
	p.rwc = nil
	p.mu.Unlock()
	if rwc != nil {
		return rwc, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, io.EOF
	}
}

func (p *ioPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// ListenIO returns a Port that connects once, to a stream made of
// separate WriteCloser and ReadCloser.
func ListenIO(out io.WriteCloser, in io.ReadCloser) Port {
	return &ioPort{
		rwc:    &ioduplex{out, in},
		closed: make(chan struct{}),
	}
}

// ListenStdio is a convenience for calling ListenIO with Stdout and Stdin.
func ListenStdio() Port {
	return ListenIO(os.Stdout, os.Stdin)
}
