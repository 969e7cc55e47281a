package frame

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/plein/meterlink/codec"
)

var (
	// ErrTooLarge is returned when an encoded frame does not fit the
	// destination buffer.
	ErrTooLarge = errors.New("frame: encoded frame exceeds buffer")

	ErrNoVerb = errors.New("frame: missing verb")
)

// wireFrame is the on-wire layout: [topic|null, tag, body].
type wireFrame struct {
	_     struct{} `cbor:",toarray"`
	Topic *uint32
	Tag   VerbType
	Body  cbor.RawMessage
}

// Validate reports whether f can be encoded at all, independent of the
// destination buffer size.
func Validate(f Frame) error {
	if f.Verb == nil {
		return ErrNoVerb
	}
	_, err := f.Verb.body()
	return err
}

// Marshal returns the wire encoding of f.
func Marshal(f Frame) ([]byte, error) {
	if f.Verb == nil {
		return nil, ErrNoVerb
	}
	v, err := f.Verb.body()
	if err != nil {
		return nil, err
	}
	body, err := codec.CBOR.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("frame: body: %w", err)
	}
	w := wireFrame{
		Tag:  f.Verb.Type(),
		Body: body,
	}
	if f.HasTopic {
		topic := f.Topic
		w.Topic = &topic
	}

	if Debug != nil {
		fmt.Fprintln(Debug, "<<ENC", f)
	}

	return codec.CBOR.Marshal(w)
}

// Encode writes the wire encoding of f into buf and returns the number of
// bytes used.
func Encode(f Frame, buf []byte) (int, error) {
	b, err := Marshal(f)
	if err != nil {
		return 0, err
	}
	if len(b) > len(buf) {
		return 0, ErrTooLarge
	}
	return copy(buf, b), nil
}

// Decode parses exactly one frame from b. The returned frame does not
// reference b.
func Decode(b []byte) (Frame, error) {
	var w wireFrame
	if err := codec.CBOR.Unmarshal(b, &w); err != nil {
		return Frame{}, fmt.Errorf("frame: decode: %w", err)
	}
	v, err := decodeVerb(w.Tag, w.Body)
	if err != nil {
		return Frame{}, err
	}
	f := Frame{Verb: v}
	if w.Topic != nil {
		f.Topic = *w.Topic
		f.HasTopic = true
	}

	if Debug != nil {
		fmt.Fprintln(Debug, ">>DEC", f)
	}

	return f, nil
}
