package transport

import (
	"context"
	"io"
	"sync"
	"time"
)

// SerialPort opens a serial device each time Connect is called, waiting
// for it to appear. A USB gadget port only exists while the host is
// attached.
type SerialPort struct {
	Addr  SerialAddr
	Retry time.Duration

	open   func(SerialAddr) (io.ReadWriteCloser, error)
	closed chan struct{}
	once   sync.Once
}

// ListenSerial returns a port for addr, see ParseSerialAddr.
func ListenSerial(addr string) (*SerialPort, error) {
	a, err := ParseSerialAddr(addr)
	if err != nil {
		return nil, err
	}
	return &SerialPort{
		Addr:   a,
		Retry:  500 * time.Millisecond,
		open:   OpenSerial,
		closed: make(chan struct{}),
	}, nil
}

func (p *SerialPort) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	for {
		select {
		case <-p.closed:
			return nil, io.EOF
		default:
		}
		rwc, err := p.open(p.Addr)
		if err == nil {
			return rwc, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.closed:
			return nil, io.EOF
		case <-time.After(p.Retry):
		}
	}
}

func (p *SerialPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
