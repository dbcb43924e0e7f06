package transport

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// Port describes a serial port found on the host.
type Port struct {
	Name    string `json:"name"`
	IsUSB   bool   `json:"isUSB"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Serial  string `json:"serial,omitempty"`
	Product string `json:"product,omitempty"`
}

func (p Port) String() string {
	if !p.IsUSB {
		return p.Name
	}
	return fmt.Sprintf("%s usb %s:%s serial %s %s", p.Name, p.VID, p.PID, p.Serial, p.Product)
}

// A PortFilter narrows the result of ListPorts.
type PortFilter func(Port) bool

// USBOnly matches ports backed by a USB device.
func USBOnly(p Port) bool { return p.IsUSB }

// SerialNumber matches the USB device with the given serial number.
func SerialNumber(s string) PortFilter {
	return func(p Port) bool { return strings.EqualFold(p.Serial, s) }
}

// ListPorts enumerates the serial ports on the host. Ports for which any
// filter returns false are skipped.
func ListPorts(filters ...PortFilter) ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	ports := make([]Port, 0, len(details))
	for _, d := range details {
		ports = filterPort(ports, Port{
			Name:    d.Name,
			IsUSB:   d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		}, filters)
	}
	return ports, nil
}

func filterPort(ports []Port, p Port, filters []PortFilter) []Port {
	for _, f := range filters {
		if !f(p) {
			return ports
		}
	}
	return append(ports, p)
}
