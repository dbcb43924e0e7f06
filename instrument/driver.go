// Package instrument speaks the ASCII command protocol of EG&G 273A class
// potentiostat/galvanostats.
package instrument

import (
	"fmt"

	"github.com/mastercactapus/echem/transport"
	"github.com/sirupsen/logrus"
)

// Driver encodes instrument commands on top of a Transport and tracks the
// current control mode.
//
// The transport is shared, not owned: closing it is up to the caller. A
// Driver must only be used by one run at a time.
type Driver struct {
	t transport.Transport

	mode    ControlMode
	modeSet bool

	debug bool
	log   logrus.FieldLogger
}

// DriverOption applies an option to the driver.
type DriverOption func(*Driver)

// WithDebug causes commands and responses to be logged.
func WithDebug() DriverOption { return func(d *Driver) { d.debug = true } }

// WithLogger sets the logger used for debug output.
func WithLogger(l logrus.FieldLogger) DriverOption { return func(d *Driver) { d.log = l } }

// NewDriver creates a Driver talking over t.
func NewDriver(t transport.Transport, opts ...DriverOption) *Driver {
	d := &Driver{
		t:   t,
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mode returns the most recently set mode and whether one was set at all.
func (d *Driver) Mode() (ControlMode, bool) { return d.mode, d.modeSet }

// SetMode selects the control mode and turns the cell on.
func (d *Driver) SetMode(mode ControlMode) error {
	if err := d.command(mode.command()); err != nil {
		return err
	}
	d.mode = mode
	d.modeSet = true
	return d.command("CELL 1")
}

// CellOff disconnects the cell.
func (d *Driver) CellOff() error {
	return d.command("CELL 0")
}

// SetValue sets the controlled quantity: volts in potentiostat mode, amperes
// in galvanostat mode. Currents are quantized with EncodeCurrent.
func (d *Driver) SetValue(value float64) error {
	if !d.modeSet {
		return &ProtocolError{Command: "SET", Reason: "mode not set"}
	}
	if d.mode == Galvanostat {
		m, e := EncodeCurrent(value)
		return d.command(fmt.Sprintf("SETI %d %d", m, e))
	}
	return d.command("SETE " + formatVolts(value))
}

// ReadValue reads the measured quantity: current in amperes in potentiostat
// mode, voltage in volts in galvanostat mode.
func (d *Driver) ReadValue() (float64, error) {
	if !d.modeSet {
		return 0, &ProtocolError{Command: "READ", Reason: "mode not set"}
	}
	if d.mode == Galvanostat {
		resp, err := d.query("READE")
		if err != nil {
			return 0, err
		}
		return parseVoltage(resp)
	}

	resp, err := d.query("READI")
	if err != nil {
		return 0, err
	}
	return parseCurrent(resp)
}

func (d *Driver) command(cmd string) error {
	if d.debug {
		d.log.WithField("cmd", cmd).Debug("instrument command")
	}
	if err := d.t.WriteLine(cmd); err != nil {
		return &TransportError{Op: "write", Command: cmd, Err: err}
	}
	return nil
}

// discarder is implemented by transports that can drop unread replies.
type discarder interface {
	Discard() int
}

func (d *Driver) query(cmd string) (string, error) {
	// a reply that arrived after an earlier timeout would answer this query
	if dt, ok := d.t.(discarder); ok {
		if n := dt.Discard(); n > 0 {
			d.log.WithField("cmd", cmd).WithField("lines", n).Warn("discarded stale replies")
		}
	}
	if err := d.command(cmd); err != nil {
		return "", err
	}
	resp, err := d.t.ReadLine()
	if err != nil {
		return "", &TransportError{Op: "read", Command: cmd, Err: err}
	}
	if d.debug {
		d.log.WithField("cmd", cmd).WithField("reply", resp).Debug("instrument reply")
	}
	return resp, nil
}
