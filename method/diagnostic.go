package method

import (
	"context"

	"github.com/mastercactapus/echem/instrument"
)

var diagnosticParameters = ParameterSpec{
	{Name: "points", Label: "Points", Default: 100, Integer: true, Min: bound(1), Max: bound(maxPoints)},
	{Name: "delay", Label: "Delay (s)", Default: 0.05, Min: bound(0), Max: bound(60)},
	{Name: "setpoint", Label: "Setpoint (V)", Default: 0.1, Min: bound(-10), Max: bound(10)},
}

// Diagnostic holds a fixed potential and reads the current a set number of
// times. It is used to check the instrument link end to end.
type Diagnostic struct{ base }

// NewDiagnostic returns a Diagnostic with default parameters.
func NewDiagnostic() Method { return &Diagnostic{} }

func (*Diagnostic) Name() string                 { return "Diagnostic" }
func (*Diagnostic) Mode() instrument.ControlMode { return instrument.Potentiostat }
func (*Diagnostic) XLabel() string               { return "Point index" }
func (*Diagnostic) YLabel() string               { return "Current (A)" }
func (*Diagnostic) Parameters() ParameterSpec    { return diagnosticParameters }

func (d *Diagnostic) SetParams(values map[string]any) error {
	return d.bind(diagnosticParameters, values)
}

// Schedule returns one step per point at the fixed setpoint, indexed from 0.
func (d *Diagnostic) Schedule() []Step {
	n := int(d.value(diagnosticParameters, "points"))
	setpoint := d.value(diagnosticParameters, "setpoint")
	dwell := seconds(d.value(diagnosticParameters, "delay"))

	steps := make([]Step, n)
	for i := range steps {
		steps[i] = Step{X: float64(i), Setpoint: setpoint, Dwell: dwell}
	}
	return steps
}

func (d *Diagnostic) Run(ctx context.Context, inst Instrument, emit EmitFunc, progress ProgressFunc) error {
	log := d.logger().WithField("method", "diagnostic")
	return runSchedule(ctx, inst, log, d.Mode(), d.value(diagnosticParameters, "setpoint"), d.Schedule(), emit, progress)
}
