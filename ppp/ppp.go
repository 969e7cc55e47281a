// Package ppp implements the part of PPP in HDLC-like framing (RFC 1661,
// RFC 1662, RFC 1334) needed to carry opaque payloads over a serial byte
// stream: async framing with FCS-16, LCP link setup and PAP with a fixed
// credential pair.
//
// The engine does no I/O. Bytes read from the line are handed to Consume,
// and Poll is called until it returns ActionNone; each Transmit action
// carries bytes to write to the line, each Received action carries a
// payload.
package ppp

import (
	"errors"
	"fmt"
)

// DefaultMRU is used when Config.MRU is zero.
const DefaultMRU = 1500

var (
	ErrNotOpen     = errors.New("ppp: link not open")
	ErrAlreadyOpen = errors.New("ppp: link already open")
	ErrTooLarge    = errors.New("ppp: payload exceeds MRU")
	ErrBusy        = errors.New("ppp: transmit queue full")
)

// Config holds the link parameters. Username and Password are sent to the
// peer and expected from it.
type Config struct {
	Username string
	Password string
	MRU      int
}

func (c Config) mru() int {
	if c.MRU <= 0 {
		return DefaultMRU
	}
	return c.MRU
}

// Status is the session state of the link.
type Status uint8

const (
	StatusClosed Status = iota
	StatusOpening
	StatusOpened
)

func (s Status) String() string {
	switch s {
	case StatusClosed:
		return "closed"
	case StatusOpening:
		return "opening"
	case StatusOpened:
		return "opened"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ActionKind tells the caller what to do after a Poll.
type ActionKind uint8

const (
	// ActionNone means there is no more work until more bytes arrive or a
	// payload is sent.
	ActionNone ActionKind = iota
	// ActionTransmit means Data must be written to the line.
	ActionTransmit
	// ActionReceived means Data holds a received payload.
	ActionReceived
)

func (k ActionKind) String() string {
	switch k {
	case ActionNone:
		return "none"
	case ActionTransmit:
		return "transmit"
	case ActionReceived:
		return "received"
	default:
		return fmt.Sprintf("action(%d)", uint8(k))
	}
}

// Action is the result of one Poll. Data aliases engine buffers and is only
// valid until the next call into the engine.
type Action struct {
	Kind ActionKind
	Data []byte
}

// Stats counts link level events.
type Stats struct {
	FramesIn  uint64
	FramesOut uint64
	BadFCS    uint64
	Dropped   uint64
	AuthFail  uint64
}
