package ppp

const (
	flagByte   = 0x7e
	escapeByte = 0x7d
	escapeXor  = 0x20

	addressByte = 0xff
	controlByte = 0x03

	fcsInit = 0xffff
	fcsGood = 0xf0b8

	// address, control and protocol fields plus FCS
	frameOverhead = 6
)

var fcsTable = func() (t [256]uint16) {
	for b := 0; b < 256; b++ {
		v := uint16(b)
		for i := 0; i < 8; i++ {
			if v&1 != 0 {
				v = v>>1 ^ 0x8408
			} else {
				v >>= 1
			}
		}
		t[b] = v
	}
	return t
}()

func fcs16(fcs uint16, data []byte) uint16 {
	for _, b := range data {
		fcs = fcs>>8 ^ fcsTable[(fcs^uint16(b))&0xff]
	}
	return fcs
}

// maxEncodedLen is the worst case size of an encoded frame with an
// info field of n bytes: every byte escaped, plus both flags.
func maxEncodedLen(n int) int {
	return 2*(n+frameOverhead) + 2
}

func appendEscaped(dst []byte, b byte) []byte {
	if b < 0x20 || b == flagByte || b == escapeByte {
		return append(dst, escapeByte, b^escapeXor)
	}
	return append(dst, b)
}

// appendFrame appends the HDLC encoding of one PPP frame to dst.
func appendFrame(dst []byte, proto uint16, info []byte) []byte {
	hdr := [4]byte{addressByte, controlByte, byte(proto >> 8), byte(proto)}
	fcs := fcs16(fcsInit, hdr[:])
	fcs = fcs16(fcs, info)
	fcs ^= 0xffff

	dst = append(dst, flagByte)
	for _, b := range hdr {
		dst = appendEscaped(dst, b)
	}
	for _, b := range info {
		dst = appendEscaped(dst, b)
	}
	dst = appendEscaped(dst, byte(fcs))
	dst = appendEscaped(dst, byte(fcs>>8))
	return append(dst, flagByte)
}

// deframer collects unescaped frame bytes into a fixed buffer. It holds at
// most one complete frame; feed stops consuming until take is called.
type deframer struct {
	buf      []byte
	n        int
	escaped  bool
	dropping bool
	ready    bool

	badFCS  uint64
	dropped uint64
}

func newDeframer(size int) deframer {
	return deframer{buf: make([]byte, size)}
}

// feed consumes bytes from data until a frame completes or data runs out.
// It returns how many bytes were consumed.
func (d *deframer) feed(data []byte) int {
	if d.ready {
		return 0
	}
	for i, b := range data {
		switch {
		case b == flagByte:
			if d.dropping {
				d.dropped++
			} else if d.n > 0 {
				if d.n >= frameOverhead && fcs16(fcsInit, d.buf[:d.n]) == fcsGood {
					d.escaped = false
					d.ready = true
					return i + 1
				}
				d.badFCS++
			}
			d.n = 0
			d.escaped = false
			d.dropping = false
		case d.dropping:
		case b == escapeByte:
			d.escaped = true
		default:
			if d.escaped {
				b ^= escapeXor
				d.escaped = false
			}
			if d.n == len(d.buf) {
				d.dropping = true
				continue
			}
			d.buf[d.n] = b
			d.n++
		}
	}
	return len(data)
}

// take returns the held frame, if any, and frees the buffer for the next
// one. info aliases the deframer buffer.
func (d *deframer) take() (proto uint16, info []byte, ok bool) {
	if !d.ready {
		return 0, nil, false
	}
	d.ready = false
	frame := d.buf[:d.n-2]
	d.n = 0
	if len(frame) >= 2 && frame[0] == addressByte && frame[1] == controlByte {
		frame = frame[2:]
	}
	if len(frame) < 2 {
		d.dropped++
		return 0, nil, false
	}
	return uint16(frame[0])<<8 | uint16(frame[1]), frame[2:], true
}

func (d *deframer) reset() {
	d.n = 0
	d.escaped = false
	d.dropping = false
	d.ready = false
}
