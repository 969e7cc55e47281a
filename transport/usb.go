package transport

import (
	"errors"
	"fmt"
	"strconv"

	"go.bug.st/serial/enumerator"
)

// USB identity of the meter's CDC interface.
const (
	DefaultVID = 0xb1e1
	DefaultPID = 0x0001
)

var ErrNoDevice = errors.New("transport: no matching USB serial device")

// PortInfo describes a USB serial port.
type PortInfo struct {
	Name    string
	VID     uint16
	PID     uint16
	Serial  string
	Product string
}

func (p PortInfo) String() string {
	return fmt.Sprintf("%s %04x:%04x %s %s", p.Name, p.VID, p.PID, p.Serial, p.Product)
}

// ListUSB returns the USB serial ports present on the system.
func ListUSB() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("transport: listing ports: %w", err)
	}
	return usbPorts(details), nil
}

func usbPorts(details []*enumerator.PortDetails) []PortInfo {
	var ports []PortInfo
	for _, d := range details {
		if !d.IsUSB {
			continue
		}
		vid, err := strconv.ParseUint(d.VID, 16, 16)
		if err != nil {
			continue
		}
		pid, err := strconv.ParseUint(d.PID, 16, 16)
		if err != nil {
			continue
		}
		ports = append(ports, PortInfo{
			Name:    d.Name,
			VID:     uint16(vid),
			PID:     uint16(pid),
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	return ports
}

// FindUSB returns the name of the first serial port with the given USB
// vendor and product id.
func FindUSB(vid, pid uint16) (string, error) {
	ports, err := ListUSB()
	if err != nil {
		return "", err
	}
	return findPort(ports, vid, pid)
}

func findPort(ports []PortInfo, vid, pid uint16) (string, error) {
	for _, p := range ports {
		if p.VID == vid && p.PID == pid {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("%w (%04x:%04x)", ErrNoDevice, vid, pid)
}
