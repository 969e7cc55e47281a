package transport

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

const DefaultBaud = 9600

// SerialAddr selects a serial port either by path or by USB identity.
type SerialAddr struct {
	Path string
	VID  uint16
	PID  uint16
	Baud int
}

// ParseSerialAddr parses addresses of the form
//
//	/dev/ttyACM0[@baud]
//	usb:vid:pid[@baud]
//
// with vid and pid in hex. An empty address means the default USB
// identity at the default baud rate.
func ParseSerialAddr(addr string) (SerialAddr, error) {
	a := SerialAddr{VID: DefaultVID, PID: DefaultPID, Baud: DefaultBaud}
	if i := strings.LastIndexByte(addr, '@'); i >= 0 {
		baud, err := strconv.Atoi(addr[i+1:])
		if err != nil || baud <= 0 {
			return a, fmt.Errorf("transport: bad baud rate in %q", addr)
		}
		a.Baud = baud
		addr = addr[:i]
	}
	if addr == "" {
		return a, nil
	}
	if !strings.HasPrefix(addr, "usb:") {
		a.Path = addr
		return a, nil
	}
	ids := strings.Split(strings.TrimPrefix(addr, "usb:"), ":")
	if len(ids) != 2 {
		return a, fmt.Errorf("transport: bad usb address %q", addr)
	}
	vid, err := strconv.ParseUint(ids[0], 16, 16)
	if err != nil {
		return a, fmt.Errorf("transport: bad vendor id in %q", addr)
	}
	pid, err := strconv.ParseUint(ids[1], 16, 16)
	if err != nil {
		return a, fmt.Errorf("transport: bad product id in %q", addr)
	}
	a.VID, a.PID = uint16(vid), uint16(pid)
	return a, nil
}

// Resolve returns the path of the port, looking it up by USB identity when
// no path was given.
func (a SerialAddr) Resolve() (string, error) {
	if a.Path != "" {
		return a.Path, nil
	}
	return FindUSB(a.VID, a.PID)
}

// OpenSerial opens the port a refers to.
func OpenSerial(a SerialAddr) (io.ReadWriteCloser, error) {
	path, err := a.Resolve()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: a.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", path, err)
	}
	return port, nil
}

// DialSerial opens a serial port by address, see ParseSerialAddr.
func DialSerial(addr string) (io.ReadWriteCloser, error) {
	a, err := ParseSerialAddr(addr)
	if err != nil {
		return nil, err
	}
	return OpenSerial(a)
}
