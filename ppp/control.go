package ppp

import "encoding/binary"

const (
	protoData = 0x0021
	protoLCP  = 0xc021
	protoPAP  = 0xc023
)

// LCP codes, RFC 1661 section 5.
const (
	lcpConfigureRequest = 1
	lcpConfigureAck     = 2
	lcpConfigureNak     = 3
	lcpConfigureReject  = 4
	lcpTerminateRequest = 5
	lcpTerminateAck     = 6
	lcpCodeReject       = 7
	lcpProtocolReject   = 8
	lcpEchoRequest      = 9
	lcpEchoReply        = 10
	lcpDiscardRequest   = 11
)

// PAP codes, RFC 1334 section 2.2.
const (
	papAuthRequest = 1
	papAuthAck     = 2
	papAuthNak     = 3
)

const lcpOptionMRU = 1

// control is a parsed LCP or PAP packet.
type control struct {
	code uint8
	id   uint8
	data []byte
}

func parseControl(b []byte) (control, bool) {
	if len(b) < 4 {
		return control{}, false
	}
	length := int(binary.BigEndian.Uint16(b[2:4]))
	if length < 4 || length > len(b) {
		return control{}, false
	}
	return control{
		code: b[0],
		id:   b[1],
		data: b[4:length],
	}, true
}

// appendControl appends a control packet whose data is the concatenation
// of parts.
func appendControl(dst []byte, code, id uint8, parts ...[]byte) []byte {
	length := 4
	for _, p := range parts {
		length += len(p)
	}
	dst = append(dst, code, id, byte(length>>8), byte(length))
	for _, p := range parts {
		dst = append(dst, p...)
	}
	return dst
}

// parseAuthRequest extracts the peer id and password of a PAP request.
func parseAuthRequest(data []byte) (user, pass []byte, ok bool) {
	if len(data) < 1 {
		return nil, nil, false
	}
	n := int(data[0])
	if len(data) < 1+n+1 {
		return nil, nil, false
	}
	user = data[1 : 1+n]
	data = data[1+n:]
	m := int(data[0])
	if len(data) < 1+m {
		return nil, nil, false
	}
	return user, data[1 : 1+m], true
}
