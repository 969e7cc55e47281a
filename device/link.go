// Package device runs the constrained end of the link: it waits for the
// host to attach, serves topics the host opens and sends frames queued by
// local code.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/plein/meterlink/frame"
	"github.com/plein/meterlink/internal/logging"
	"github.com/plein/meterlink/internal/metrics"
	"github.com/plein/meterlink/link"
	"github.com/plein/meterlink/mux"
	"github.com/plein/meterlink/ppp"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultOutboxSize = 4
	DefaultRetryDelay = time.Second
)

// Port yields a connection to the host each time the host attaches.
// Connect blocks until then or until ctx ends.
type Port interface {
	Connect(ctx context.Context) (io.ReadWriteCloser, error)
}

// PortFunc adapts a function to the Port interface.
type PortFunc func(ctx context.Context) (io.ReadWriteCloser, error)

func (fn PortFunc) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	return fn(ctx)
}

type Config struct {
	PPP        ppp.Config
	BufferSize int
	// Capacity is the number of topics served at once.
	Capacity   int
	OutboxSize int
	// RetryDelay is the pause after a failed Connect.
	RetryDelay time.Duration
}

func (c *Config) setDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = link.DeviceBufferSize
	}
	if c.Capacity <= 0 {
		c.Capacity = mux.DefaultCapacity
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = DefaultOutboxSize
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
}

// Link is the device end of the link.
type Link struct {
	port    Port
	conf    Config
	log     logrus.FieldLogger
	outbox  chan frame.Frame
	handler mux.Fallback
	// spare keeps unread input while a delivery is pending
	spare []byte

	adapter *link.Adapter
	disp    *mux.Dispatcher
}

// NewLink returns a link that serves connections from port. All topic
// storage is allocated here.
func NewLink(port Port, conf Config, log logrus.FieldLogger) *Link {
	conf.setDefaults()
	if log == nil {
		log = logging.Discard("device")
	}
	l := &Link{
		port:   port,
		conf:   conf,
		log:    log,
		outbox: make(chan frame.Frame, conf.OutboxSize),
		spare:  make([]byte, conf.BufferSize),
		adapter: link.NewAdapter(link.Config{
			PPP:        conf.PPP,
			BufferSize: conf.BufferSize,
			Side:       metrics.Device,
			Log:        log,
		}),
	}
	l.handler = mux.FallbackFunc(l.unhandled)
	l.disp = mux.NewDispatcher(mux.FallbackFunc(l.handleTopic), mux.NewArena(conf.Capacity), conf.Capacity)
	return l
}

// Outbox accepts frames to send to the host. Frames are only taken while
// a session is open. Sending a Close frame releases its topic after it
// went out.
func (l *Link) Outbox() chan<- frame.Frame {
	return l.outbox
}

// Handle sets the handler for topics opened by the host. It must be
// called before Run.
func (l *Link) Handle(h mux.Fallback) {
	l.handler = h
}

func (l *Link) handleTopic(ctx context.Context, f frame.Frame, ch mux.Channel) {
	l.handler.HandleTopic(ctx, f, ch)
}

func (l *Link) unhandled(ctx context.Context, f frame.Frame, ch mux.Channel) {
	l.log.WithField("topic", f.Topic).Warn("no handler for topic")
	// later frames find the channel closed and release the topic
	ch.Close()
}

// Run serves sessions until ctx ends. A transport error ends the current
// session; Run then waits for the host to attach again.
func (l *Link) Run(ctx context.Context) error {
	for {
		conn, err := l.port.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.log.WithError(err).Debug("waiting for host")
			select {
			case <-time.After(l.conf.RetryDelay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = l.session(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.log.WithError(err).Info("session ended")
		metrics.RecordReconnect(metrics.Device)
	}
}

// delivery is a received frame waiting for room in its topic's queue.
type delivery struct {
	topic uint32
	done  chan error
}

func (l *Link) session(ctx context.Context, conn io.ReadWriteCloser) error {
	sctx, cancel := context.WithCancel(ctx)
	log := l.log.WithField("session", xid.New().String())
	defer func() {
		cancel()
		conn.Close()
		l.disp.Reset()
		l.adapter.Close()
		metrics.SetTopics(metrics.Device, 0)
	}()

	if err := l.adapter.Open(); err != nil {
		return err
	}
	log.Info("session opening")
	chunks := link.ReadChunks(sctx, conn, l.conf.BufferSize)
	pending, err := l.drain(sctx, conn, log)
	if err != nil {
		return err
	}

	// While a delivery is pending no input is routed, but the outbox keeps
	// moving so topic handlers can make room. One more chunk is read ahead
	// so a dropped transport is still noticed.
	var held []byte
	opened := false
	for {
		var outbox <-chan frame.Frame
		if l.adapter.Status() == ppp.StatusOpened {
			if !opened {
				opened = true
				log.Info("session opened")
			}
			outbox = l.outbox
		}
		in := chunks
		var delivered <-chan error
		if pending != nil {
			delivered = pending.done
			if held != nil {
				in = nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case c, ok := <-in:
			if !ok {
				return io.ErrUnexpectedEOF
			}
			if c.Err != nil {
				return fmt.Errorf("device: read: %w", c.Err)
			}
			if pending != nil {
				held = c.Data
				continue
			}
			l.adapter.Feed(c.Data)
			if pending, err = l.drain(sctx, conn, log); err != nil {
				return err
			}

		case derr := <-delivered:
			topic := pending.topic
			pending = nil
			if derr != nil {
				if errors.Is(derr, context.Canceled) {
					return derr
				}
				if errors.Is(derr, mux.ErrClosed) {
					l.disp.Release(topic)
					metrics.SetTopics(metrics.Device, l.disp.Len())
				}
				log.WithError(derr).WithField("topic", topic).Warn("routing failed")
			}
			if pending, err = l.drain(sctx, conn, log); err != nil {
				return err
			}
			if pending == nil && held != nil {
				l.adapter.Feed(held)
				held = nil
				if pending, err = l.drain(sctx, conn, log); err != nil {
					return err
				}
			}

		case f := <-outbox:
			if err := l.adapter.Send(f); err != nil {
				log.WithError(err).WithField("topic", f.Topic).Warn("dropping outgoing frame")
				continue
			}
			if err := l.flush(conn); err != nil {
				return err
			}
			if _, ok := f.Verb.(frame.Close); ok && f.HasTopic {
				l.disp.Release(f.Topic)
				metrics.SetTopics(metrics.Device, l.disp.Len())
			}
		}
	}
}

// drain polls the adapter dry, writing what it transmits and routing what
// it receives. It stops early when a topic queue is full and returns the
// delivery of the frame that did not fit.
func (l *Link) drain(ctx context.Context, w io.Writer, log logrus.FieldLogger) (*delivery, error) {
	for {
		act := l.adapter.Poll()
		switch act.Kind {
		case link.None:
			return nil, nil

		case link.Transmit:
			if _, err := w.Write(act.Bytes); err != nil {
				return nil, fmt.Errorf("device: write: %w", err)
			}

		case link.Received:
			if !act.Frame.HasTopic {
				metrics.RecordUnrouted(metrics.Device)
				continue
			}
			err := l.disp.Offer(ctx, act.Frame)
			if errors.Is(err, mux.ErrFull) {
				l.adapter.Retain(l.spare)
				return l.deliver(ctx, act.Frame), nil
			}
			if err != nil {
				log.WithError(err).WithField("topic", act.Frame.Topic).Warn("routing failed")
			}
			metrics.SetTopics(metrics.Device, l.disp.Len())
		}
	}
}

// deliver sends f to its topic in the background. The send ends with an
// error when the topic is released or ctx ends.
func (l *Link) deliver(ctx context.Context, f frame.Frame) *delivery {
	d := &delivery{topic: f.Topic, done: make(chan error, 1)}
	ch, ok := l.disp.Lookup(f.Topic)
	if !ok {
		d.done <- mux.ErrClosed
		return d
	}
	go func() {
		d.done <- ch.Send(ctx, f)
	}()
	return d
}

// flush writes what the adapter has queued without taking more input.
func (l *Link) flush(w io.Writer) error {
	for {
		act := l.adapter.Flush()
		if act.Kind != link.Transmit {
			return nil
		}
		if _, err := w.Write(act.Bytes); err != nil {
			return fmt.Errorf("device: write: %w", err)
		}
	}
}
