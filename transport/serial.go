package transport

import (
	"fmt"

	"github.com/tarm/serial"
)

// SerialConfig selects and configures a serial port.
type SerialConfig struct {
	Name string
	Baud int
}

// OpenSerial opens the named serial port (8N1) and wraps it in a Conn.
//
// The port itself is opened blocking; read timeouts are enforced by the Conn.
func OpenSerial(cfg SerialConfig, opts ...Option) (*Conn, error) {
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:     cfg.Name,
		Baud:     cfg.Baud,
		Size:     8,
		Parity:   serial.ParityNone,
		StopBits: serial.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Name, err)
	}
	return NewConn(port, opts...), nil
}
