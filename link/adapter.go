// Package link connects a PPP session to the frame codec: bytes read from
// a transport go in, decoded frames and bytes to write come out.
package link

import (
	"fmt"

	"github.com/plein/meterlink/frame"
	"github.com/plein/meterlink/internal/logging"
	"github.com/plein/meterlink/internal/metrics"
	"github.com/plein/meterlink/ppp"
	"github.com/sirupsen/logrus"
)

// Buffer sizes of the two endpoints.
const (
	DeviceBufferSize = 256
	HostBufferSize   = 4096
)

// Config configures an Adapter.
type Config struct {
	PPP ppp.Config
	// BufferSize bounds an encoded outgoing frame.
	BufferSize int
	// Side labels metrics, see the metrics package.
	Side string
	Log  logrus.FieldLogger
}

type ActionKind uint8

const (
	None ActionKind = iota
	Transmit
	Received
)

func (k ActionKind) String() string {
	switch k {
	case None:
		return "None"
	case Transmit:
		return "Transmit"
	case Received:
		return "Received"
	default:
		return fmt.Sprintf("ActionKind(%d)", uint8(k))
	}
}

// Action is the result of one Poll. Bytes is only valid until the next
// call on the adapter.
type Action struct {
	Kind  ActionKind
	Bytes []byte
	Frame frame.Frame
}

// Stats counts adapter activity.
type Stats struct {
	DecodeErrors uint64
	EncodeErrors uint64
	PPP          ppp.Stats
}

// Adapter drives a PPP engine with transport reads and exchanges frames
// with it. It is not safe for concurrent use.
type Adapter struct {
	engine  *ppp.PPPoS
	scratch []byte
	side    string
	log     logrus.FieldLogger

	read []byte
	pos  int

	decodeErrors uint64
	encodeErrors uint64
}

// NewAdapter returns an adapter with a closed session.
func NewAdapter(c Config) *Adapter {
	if c.BufferSize <= 0 {
		c.BufferSize = HostBufferSize
	}
	if c.Log == nil {
		c.Log = logging.Discard("link")
	}
	return &Adapter{
		engine:  ppp.New(c.PPP),
		scratch: make([]byte, c.BufferSize),
		side:    c.Side,
		log:     c.Log,
	}
}

// Open starts session negotiation.
func (a *Adapter) Open() error {
	return a.engine.Open()
}

// Close ends the session and forgets the current read.
func (a *Adapter) Close() {
	a.engine.Close()
	a.read = nil
	a.pos = 0
}

func (a *Adapter) Status() ppp.Status {
	return a.engine.Status()
}

// Feed sets b as the current read. b must stay untouched until Poll
// returns None.
func (a *Adapter) Feed(b []byte) {
	a.read = b
	a.pos = 0
}

// Retain copies the unread part of the current read into buf and makes
// the copy the current read, so the buffer passed to Feed can be reused.
// buf must have room for Pending bytes.
func (a *Adapter) Retain(buf []byte) {
	n := copy(buf, a.read[a.pos:])
	a.read = buf[:n]
	a.pos = 0
}

// Pending returns the number of bytes of the current read not yet handed
// to the engine.
func (a *Adapter) Pending() int {
	return len(a.read) - a.pos
}

// Poll returns the next action. None means the current read is used up
// and the engine has nothing more to do. Frames that fail to decode are
// logged and skipped.
func (a *Adapter) Poll() Action {
	for {
		if a.pos < len(a.read) {
			a.pos += a.engine.Consume(a.read[a.pos:])
		}

		act := a.engine.Poll()
		switch act.Kind {
		case ppp.ActionTransmit:
			return Action{Kind: Transmit, Bytes: act.Data}
		case ppp.ActionReceived:
			f, err := frame.Decode(act.Data)
			if err != nil {
				a.decodeErrors++
				metrics.RecordDecodeError(a.side)
				a.log.WithError(err).WithField("bytes", len(act.Data)).Warn("dropping undecodable frame")
				continue
			}
			metrics.RecordFrameIn(a.side)
			return Action{Kind: Received, Frame: f}
		}

		if a.pos >= len(a.read) {
			return Action{Kind: None}
		}
	}
}

// Flush returns the next queued transmission without taking more input.
// It returns None when nothing is queued.
func (a *Adapter) Flush() Action {
	act := a.engine.PollTransmit()
	if act.Kind != ppp.ActionTransmit {
		return Action{Kind: None}
	}
	return Action{Kind: Transmit, Bytes: act.Data}
}

// Send encodes f and queues it on the session. On error the frame is not
// sent and the caller is expected to drop it.
func (a *Adapter) Send(f frame.Frame) error {
	n, err := frame.Encode(f, a.scratch)
	if err != nil {
		a.encodeErrors++
		metrics.RecordEncodeError(a.side)
		return fmt.Errorf("link: %w", err)
	}
	if err := a.engine.Send(a.scratch[:n]); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	metrics.RecordFrameOut(a.side)
	return nil
}

// Stats returns adapter and session counters.
func (a *Adapter) Stats() Stats {
	return Stats{
		DecodeErrors: a.decodeErrors,
		EncodeErrors: a.encodeErrors,
		PPP:          a.engine.Stats(),
	}
}
