package codec

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 64,
		MaxMapPairs:      64,
		MaxNestedLevels:  8,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// CBORCodec encodes values as deterministic CBOR (RFC 8949 core deterministic
// encoding), so equal values always produce identical bytes.
type CBORCodec struct{}

// CBOR is the codec used for frames on the link.
var CBOR CBORCodec

// Encoder returns a CBOR encoder
func (c CBORCodec) Encoder(w io.Writer) Encoder {
	return encMode.NewEncoder(w)
}

// Decoder returns a CBOR decoder
func (c CBORCodec) Decoder(r io.Reader) Decoder {
	return decMode.NewDecoder(r)
}

// Marshal returns the deterministic CBOR encoding of v.
func (c CBORCodec) Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes exactly one CBOR data item from data into v. Trailing
// bytes are an error.
func (c CBORCodec) Unmarshal(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}
