package frame

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// VerbType is the wire discriminant of a verb. Values are only ever
// appended; existing values never change meaning.
type VerbType uint8

const (
	VerbEcho VerbType = iota
	VerbClose
)

func (t VerbType) String() string {
	switch t {
	case VerbEcho:
		return "echo"
	case VerbClose:
		return "close"
	default:
		return fmt.Sprintf("verb(%d)", uint8(t))
	}
}

// ParseVerbType maps a verb name as printed by VerbType.String back to its
// discriminant.
func ParseVerbType(name string) (VerbType, error) {
	switch name {
	case "echo":
		return VerbEcho, nil
	case "close":
		return VerbClose, nil
	default:
		return 0, fmt.Errorf("frame: unknown verb %q", name)
	}
}

// Verb is the tagged payload of a frame.
type Verb interface {
	Type() VerbType
	String() string

	// body returns the value encoded as the verb body.
	body() (interface{}, error)
}

// Unknown holds a verb whose tag this build does not know. It is routed like
// any other verb and re-encodes to the same bytes.
type Unknown struct {
	Tag  VerbType
	Body []byte
}

func (v Unknown) Type() VerbType {
	return v.Tag
}

func (v Unknown) String() string {
	return fmt.Sprintf("{Unknown Tag:%d Body:%x}", v.Tag, v.Body)
}

func (v Unknown) body() (interface{}, error) {
	return cbor.RawMessage(v.Body), nil
}

func decodeVerb(tag VerbType, body cbor.RawMessage) (Verb, error) {
	switch tag {
	case VerbEcho:
		return decodeEcho(body)
	case VerbClose:
		return Close{}, nil
	default:
		return Unknown{Tag: tag, Body: []byte(body)}, nil
	}
}
