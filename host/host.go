// Package host runs the host end of the link. Any goroutine can open a
// topic with Call; the run loop assigns the topic id, so ids never race.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

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
	DefaultCapacity  = 1024
	DefaultCallQueue = 4
)

var ErrNoTopic = errors.New("host: frame has no topic")

// Caller opens a topic by sending its first frame.
type Caller interface {
	Call(ctx context.Context, f frame.Frame) (mux.Channel, error)
}

type Config struct {
	PPP        ppp.Config
	BufferSize int
	// Capacity is the number of topics open at once.
	Capacity int
	// QueueLimit bounds the frames buffered per topic.
	QueueLimit int
	// CallQueue bounds the requests waiting for the run loop.
	CallQueue int
}

func (c *Config) setDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = link.HostBufferSize
	}
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.QueueLimit <= 0 {
		c.QueueLimit = mux.DefaultQueueLimit
	}
	if c.CallQueue <= 0 {
		c.CallQueue = DefaultCallQueue
	}
}

type request struct {
	// ctx is the requester's; once it ends nobody waits for result
	ctx   context.Context
	frame frame.Frame
	// call requests bind a new topic for frame
	call   bool
	result chan result
}

type result struct {
	ch  mux.Channel
	err error
}

// Host is the host end of the link over one connection.
type Host struct {
	conn    io.ReadWriteCloser
	conf    Config
	log     logrus.FieldLogger
	handler mux.Fallback

	requests chan request
	done     chan struct{}
	once     sync.Once
	err      error

	adapter *link.Adapter
	disp    *mux.Dispatcher
}

// New returns a host speaking over conn. Run must be called to start
// the session.
func New(conn io.ReadWriteCloser, conf Config, log logrus.FieldLogger) *Host {
	conf.setDefaults()
	if log == nil {
		log = logging.Discard("host")
	}
	h := &Host{
		conn:     conn,
		conf:     conf,
		log:      log,
		requests: make(chan request, conf.CallQueue),
		done:     make(chan struct{}),
		adapter: link.NewAdapter(link.Config{
			PPP:        conf.PPP,
			BufferSize: conf.BufferSize,
			Side:       metrics.Host,
			Log:        log,
		}),
	}
	h.handler = LogFallback(log)
	h.disp = mux.NewDispatcher(mux.FallbackFunc(h.handleTopic), mux.QueueAllocator{Limit: conf.QueueLimit}, conf.Capacity)
	return h
}

// Handle sets the handler for topics opened by the device. It must be
// called before Run.
func (h *Host) Handle(fb mux.Fallback) {
	h.handler = fb
}

func (h *Host) handleTopic(ctx context.Context, f frame.Frame, ch mux.Channel) {
	h.handler.HandleTopic(ctx, f, ch)
}

// Done is closed when Run has returned.
func (h *Host) Done() <-chan struct{} {
	return h.done
}

// Err returns the error Run returned, once Done is closed.
func (h *Host) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until Run returns and returns its error.
func (h *Host) Wait() error {
	<-h.done
	return h.err
}

// Run opens the session and serves it until the transport fails or ctx
// ends. It returns the cause, which is also returned to every pending and
// later Call. Run must only be called once.
func (h *Host) Run(ctx context.Context) (err error) {
	sctx, cancel := context.WithCancel(ctx)
	log := h.log.WithField("session", xid.New().String())
	defer func() {
		cancel()
		h.shutdown(err)
		log.WithError(err).Info("session ended")
	}()

	if err := h.adapter.Open(); err != nil {
		return err
	}
	log.Info("session opening")
	chunks := link.ReadChunks(sctx, h.conn, h.conf.BufferSize)
	if err := h.drain(sctx, log); err != nil {
		return err
	}

	opened := false
	for {
		var requests <-chan request
		if h.adapter.Status() == ppp.StatusOpened {
			if !opened {
				opened = true
				log.Info("session opened")
			}
			requests = h.requests
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case c, ok := <-chunks:
			if !ok {
				return io.ErrUnexpectedEOF
			}
			if c.Err != nil {
				return fmt.Errorf("host: read: %w", c.Err)
			}
			h.adapter.Feed(c.Data)
			if err := h.drain(sctx, log); err != nil {
				return err
			}

		case req := <-requests:
			if err := h.serve(sctx, req, log); err != nil {
				return err
			}
		}
	}
}

// serve handles one request. Only transport errors are returned; request
// errors go to the requester. Requests abandoned while queued are skipped.
func (h *Host) serve(ctx context.Context, req request, log logrus.FieldLogger) error {
	if req.ctx.Err() != nil {
		return nil
	}
	f := req.frame
	if req.call {
		if err := frame.Validate(f); err != nil {
			req.reply(result{err: err})
			return nil
		}
		ch, err := h.disp.Make(&f)
		if err != nil {
			req.reply(result{err: err})
			return nil
		}
		if err := h.adapter.Send(f); err != nil {
			h.disp.Release(f.Topic)
			req.reply(result{err: err})
			return nil
		}
		metrics.SetTopics(metrics.Host, h.disp.Len())
		if req.reply(result{ch: ch}) {
			log.WithField("topic", f.Topic).Debug("topic opened")
		} else {
			// the caller gave up, so nobody owns the topic
			log.WithField("topic", f.Topic).Debug("call abandoned")
			h.abandon(f.Topic, log)
		}
		return h.drain(ctx, log)
	}

	if err := h.adapter.Send(f); err != nil {
		req.reply(result{err: err})
		return nil
	}
	_, closing := f.Verb.(frame.Close)
	if !closing {
		req.reply(result{})
	}
	if err := h.drain(ctx, log); err != nil {
		return err
	}
	if closing {
		h.disp.Release(f.Topic)
		metrics.SetTopics(metrics.Host, h.disp.Len())
		req.reply(result{})
	}
	return nil
}

// abandon closes a topic on both ends.
func (h *Host) abandon(topic uint32, log logrus.FieldLogger) {
	if err := h.adapter.Send(frame.New(frame.Close{}).WithTopic(topic)); err != nil {
		log.WithError(err).WithField("topic", topic).Warn("could not close abandoned topic")
	}
	h.disp.Release(topic)
	metrics.SetTopics(metrics.Host, h.disp.Len())
}

// reply hands res to the requester and reports whether it was taken.
func (r request) reply(res result) bool {
	select {
	case r.result <- res:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (h *Host) drain(ctx context.Context, log logrus.FieldLogger) error {
	for {
		act := h.adapter.Poll()
		switch act.Kind {
		case link.None:
			return nil

		case link.Transmit:
			if _, err := h.conn.Write(act.Bytes); err != nil {
				return fmt.Errorf("host: write: %w", err)
			}

		case link.Received:
			if !act.Frame.HasTopic {
				metrics.RecordUnrouted(metrics.Host)
				continue
			}
			if err := h.disp.Process(ctx, act.Frame); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				log.WithError(err).WithField("topic", act.Frame.Topic).Warn("routing failed")
			}
			metrics.SetTopics(metrics.Host, h.disp.Len())
		}
	}
}

func (h *Host) shutdown(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
		h.conn.Close()
		// readers blocked on a topic see err once it is drained
		h.disp.Abort(err)
		h.adapter.Close()
		metrics.SetTopics(metrics.Host, 0)
	})
	for {
		select {
		case req := <-h.requests:
			select {
			case req.result <- result{err: err}:
			default:
			}
		default:
			return
		}
	}
}

// Call sends f on a new topic and returns the channel the replies arrive
// on. The topic of f is assigned by the run loop. Call blocks until the
// session is open and the frame was handed to it. If ctx ends first, no
// topic is left behind. Replies must be received: routing waits while a
// topic queue is full. After Run returns, Receive reports its error.
func (h *Host) Call(ctx context.Context, f frame.Frame) (mux.Channel, error) {
	res, err := h.submit(ctx, request{frame: f, call: true})
	return res.ch, err
}

// Send sends f on the topic it carries.
func (h *Host) Send(ctx context.Context, f frame.Frame) error {
	if !f.HasTopic {
		return ErrNoTopic
	}
	_, err := h.submit(ctx, request{frame: f})
	return err
}

// CloseTopic tells the device to release topic and releases it locally
// once the Close frame went out.
func (h *Host) CloseTopic(ctx context.Context, topic uint32) error {
	return h.Send(ctx, frame.New(frame.Close{}).WithTopic(topic))
}

func (h *Host) submit(ctx context.Context, req request) (result, error) {
	req.ctx = ctx
	// unbuffered, so a result is either taken here or seen as abandoned
	req.result = make(chan result)
	select {
	case h.requests <- req:
	case <-h.done:
		return result{}, h.err
	case <-ctx.Done():
		return result{}, ctx.Err()
	}

	select {
	case res := <-req.result:
		return res, res.err
	case <-h.done:
		return result{}, h.err
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}
