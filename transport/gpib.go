package transport

import (
	"fmt"
	"io"
	"strings"

	"github.com/gotmc/prologix"
	"github.com/tarm/serial"
	"go.uber.org/multierr"
)

// GPIBConfig addresses an instrument behind a Prologix GPIB-USB controller.
type GPIBConfig struct {
	Port    string
	Address int
}

// GPIB is a Transport to a GPIB instrument through a Prologix controller.
//
// The controller is left in read-after-write off mode, so every ReadLine
// first asks the controller to read from the instrument until EOI.
type GPIB struct {
	gpib *prologix.Controller
	conn *Conn
}

var _ Transport = &GPIB{}

// OpenGPIB opens the controller's virtual COM port and configures the
// controller for the given instrument address.
func OpenGPIB(cfg GPIBConfig, opts ...Option) (*GPIB, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name: cfg.Port,
		Baud: 115200,
	})
	if err != nil {
		return nil, fmt.Errorf("open gpib controller %s: %w", cfg.Port, err)
	}
	g, err := NewGPIB(port, cfg.Address, opts...)
	if err != nil {
		return nil, multierr.Append(err, port.Close())
	}
	return g, nil
}

// NewGPIB configures a Prologix controller reachable through port.
func NewGPIB(port io.ReadWriteCloser, addr int, opts ...Option) (*GPIB, error) {
	gpib, err := prologix.NewController(port, addr, false)
	if err != nil {
		return nil, fmt.Errorf("configure gpib controller: %w", err)
	}
	return &GPIB{
		gpib: gpib,
		conn: NewConn(port, opts...),
	}, nil
}

// WriteLine sends a command to the instrument at the configured address.
func (g *GPIB) WriteLine(line string) error {
	return g.gpib.Command(strings.TrimSpace(line))
}

// ReadLine asks the controller for the instrument's reply and waits for it.
func (g *GPIB) ReadLine() (string, error) {
	if err := g.conn.WriteLine("++read eoi"); err != nil {
		return "", err
	}
	return g.conn.ReadLine()
}

// Discard drops replies that arrived after their read timed out.
func (g *GPIB) Discard() int { return g.conn.Discard() }

// Close closes the controller's serial port.
func (g *GPIB) Close() error {
	return g.conn.Close()
}
