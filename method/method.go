// Package method defines the electrochemical experiment methods and the
// acquisition loop they share.
//
// A Method declares its parameters, binds concrete values with SetParams
// and then drives an Instrument in Run, reporting every sample through an
// EmitFunc and its completion fraction through a ProgressFunc. Whatever
// way Run ends, the instrument setpoint is returned to zero before it
// returns.
package method

import (
	"context"

	"github.com/mastercactapus/echem/instrument"
	"github.com/sirupsen/logrus"
)

// Instrument is the part of an instrument driver a Method uses.
// *instrument.Driver implements it.
type Instrument interface {
	SetMode(instrument.ControlMode) error
	SetValue(float64) error
	ReadValue() (float64, error)
}

var _ Instrument = &instrument.Driver{}

// EmitFunc receives one measured sample.
type EmitFunc func(x, y float64)

// ProgressFunc receives the completed fraction of a run, in [0, 1].
type ProgressFunc func(fraction float64)

// Method is an experiment protocol.
type Method interface {
	Name() string
	Mode() instrument.ControlMode
	XLabel() string
	YLabel() string

	// Parameters describes the accepted parameters. It has no side effects.
	Parameters() ParameterSpec

	// SetParams binds parameter values, using defaults for missing names.
	// Invalid values fail with a *ConfigurationError.
	SetParams(values map[string]any) error

	// Params returns the bound parameter values.
	Params() Params

	// Run executes the method against inst until the schedule is exhausted,
	// ctx is cancelled or an I/O error occurs. It returns nil on completion,
	// ctx.Err() on cancellation and the I/O error on failure. The
	// instrument setpoint is zeroed on every path.
	Run(ctx context.Context, inst Instrument, emit EmitFunc, progress ProgressFunc) error
}

// base carries the state every method shares.
type base struct {
	params Params
	log    logrus.FieldLogger
}

func (b *base) Params() Params { return b.params.Clone() }

// SetLogger sets the logger used while running.
func (b *base) SetLogger(l logrus.FieldLogger) { b.log = l }

func (b *base) logger() logrus.FieldLogger {
	if b.log == nil {
		return logrus.StandardLogger()
	}
	return b.log
}

func (b *base) bind(spec ParameterSpec, values map[string]any) error {
	p, err := spec.Bind(values)
	if err != nil {
		return err
	}
	b.params = p
	return nil
}

// value returns the bound value of name, or its default when SetParams was
// never called.
func (b *base) value(spec ParameterSpec, name string) float64 {
	if v, ok := b.params[name]; ok {
		return v
	}
	p, _ := spec.Lookup(name)
	return p.Default
}
