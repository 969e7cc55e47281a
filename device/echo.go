package device

import (
	"context"
	"sync/atomic"

	"github.com/panjf2000/ants"
	"github.com/plein/meterlink/frame"
	"github.com/plein/meterlink/internal/logging"
	"github.com/plein/meterlink/mux"
	"github.com/sirupsen/logrus"
)

// EchoService answers every Echo frame with the same text on the same
// topic. Each topic is served by one worker of a fixed pool. A topic that
// arrives while every worker is busy is closed instead of waited for.
type EchoService struct {
	outbox  chan<- frame.Frame
	pool    *ants.Pool
	workers int32
	busy    atomic.Int32
	log     logrus.FieldLogger
}

// NewEchoService returns a service replying through outbox with at most
// workers topics served at once.
func NewEchoService(outbox chan<- frame.Frame, workers int, log logrus.FieldLogger) (*EchoService, error) {
	if workers <= 0 {
		workers = mux.DefaultCapacity
	}
	if log == nil {
		log = logging.Discard("echo")
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &EchoService{
		outbox:  outbox,
		pool:    pool,
		workers: int32(workers),
		log:     log,
	}, nil
}

func (s *EchoService) HandleTopic(ctx context.Context, f frame.Frame, ch mux.Channel) {
	if s.busy.Add(1) > s.workers {
		s.busy.Add(-1)
		s.log.WithField("topic", f.Topic).Warn("no worker for topic")
		ch.Close()
		return
	}
	err := s.pool.Submit(func() {
		defer s.busy.Add(-1)
		s.serve(ctx, f, ch)
	})
	if err != nil {
		s.busy.Add(-1)
		s.log.WithError(err).WithField("topic", f.Topic).Warn("no worker for topic")
		ch.Close()
	}
}

func (s *EchoService) serve(ctx context.Context, f frame.Frame, ch mux.Channel) {
	for {
		if !s.handle(ctx, f) {
			return
		}
		var err error
		f, err = ch.Receive(ctx)
		if err != nil {
			return
		}
	}
}

func (s *EchoService) handle(ctx context.Context, f frame.Frame) bool {
	v, ok := f.Verb.(frame.Echo)
	if !ok {
		s.log.WithField("topic", f.Topic).Debugf("ignoring %s", f.Verb)
		return true
	}
	select {
	case s.outbox <- f.Reply(v):
		return true
	case <-ctx.Done():
		return false
	}
}

// Release stops the worker pool.
func (s *EchoService) Release() {
	s.pool.Release()
}
