package frame

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/plein/meterlink/codec"
)

// MaxEchoLen is the capacity in bytes of an echo text.
const MaxEchoLen = 24

var (
	ErrEchoTooLong = fmt.Errorf("frame: echo text exceeds %d bytes", MaxEchoLen)
	// ErrEchoInvalid is returned for text that is not valid UTF-8, which
	// the peer could not decode.
	ErrEchoInvalid = errors.New("frame: echo text is not valid UTF-8")
)

// Echo asks the remote side to send Text back on the same topic.
type Echo struct {
	Text string
}

func (v Echo) Type() VerbType {
	return VerbEcho
}

func (v Echo) String() string {
	return fmt.Sprintf("{Echo Text:%q}", v.Text)
}

func (v Echo) body() (interface{}, error) {
	if len(v.Text) > MaxEchoLen {
		return nil, ErrEchoTooLong
	}
	if !utf8.ValidString(v.Text) {
		return nil, ErrEchoInvalid
	}
	return v.Text, nil
}

func decodeEcho(body []byte) (Verb, error) {
	var text string
	if err := codec.CBOR.Unmarshal(body, &text); err != nil {
		return nil, fmt.Errorf("frame: echo body: %w", err)
	}
	if len(text) > MaxEchoLen {
		return nil, ErrEchoTooLong
	}
	return Echo{Text: text}, nil
}
