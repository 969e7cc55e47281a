package codec

import (
	"encoding/json"
	"io"
)

// JSONCodec is used for human facing output of frames, never on the wire.
type JSONCodec struct {
	Indent string
}

func (c JSONCodec) Encoder(w io.Writer) Encoder {
	enc := json.NewEncoder(w)
	if c.Indent != "" {
		enc.SetIndent("", c.Indent)
	}
	return enc
}

func (c JSONCodec) Decoder(r io.Reader) Decoder {
	return json.NewDecoder(r)
}
