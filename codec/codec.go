// Package codec provides the value codecs used on the link and by the tools
// around it.
package codec

import (
	"io"
)

type Encoder interface {
	// Encode writes an encoding of v to its Writer.
	Encode(v interface{}) error
}

type Decoder interface {
	// Decode reads the next encoded value from its Reader and stores it in the value pointed to by v.
	Decode(v interface{}) error
}

// Codec returns an Encoder or Decoder given a Writer or Reader.
type Codec interface {
	Encoder(w io.Writer) Encoder
	Decoder(r io.Reader) Decoder
}

// Marshaler encodes and decodes whole values held in memory. Frames travel
// inside PPP frames, so the link never streams values directly.
type Marshaler interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}
