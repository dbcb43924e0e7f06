package method

import (
	"context"
	"math"

	"github.com/mastercactapus/echem/instrument"
)

// maxPoints caps the number of samples a single schedule may contain.
const maxPoints = 1_000_000

var cvParameters = ParameterSpec{
	{Name: "start_voltage", Label: "Start Voltage (V)", Default: -0.5, Min: bound(-10), Max: bound(10)},
	{Name: "vertex_voltage", Label: "Vertex Voltage (V)", Default: 0.5, Min: bound(-10), Max: bound(10)},
	{Name: "scan_rate", Label: "Scan Rate (V/s)", Default: 0.1, Positive: true, Max: bound(10)},
	{Name: "cycles", Label: "Cycles", Default: 1, Integer: true, Min: bound(1), Max: bound(1000)},
	{Name: "step", Label: "Step (V)", Default: 0.005, Positive: true, Max: bound(1)},
}

// CyclicVoltammetry sweeps the potential from the start voltage to the
// vertex and back, for a number of cycles, reading the current at every
// step.
type CyclicVoltammetry struct{ base }

// NewCyclicVoltammetry returns a CyclicVoltammetry with default parameters.
func NewCyclicVoltammetry() Method { return &CyclicVoltammetry{} }

func (*CyclicVoltammetry) Name() string                 { return "Cyclic Voltammetry" }
func (*CyclicVoltammetry) Mode() instrument.ControlMode { return instrument.Potentiostat }
func (*CyclicVoltammetry) XLabel() string               { return "Potential (V)" }
func (*CyclicVoltammetry) YLabel() string               { return "Current (A)" }
func (*CyclicVoltammetry) Parameters() ParameterSpec    { return cvParameters }

func (cv *CyclicVoltammetry) SetParams(values map[string]any) error {
	p, err := cvParameters.Bind(values)
	if err != nil {
		return err
	}

	n := sweepSteps(p["start_voltage"], p["vertex_voltage"], p["step"])
	switch {
	case n < 1:
		return &ConfigurationError{Param: "vertex_voltage", Reason: "must differ from start_voltage by at least one step"}
	case 2*n*int(p["cycles"]) > maxPoints:
		return &ConfigurationError{Param: "step", Reason: "too many points for the sweep range and cycle count"}
	}

	cv.params = p
	return nil
}

func sweepSteps(start, vertex, step float64) int {
	return int(math.Round(math.Abs(vertex-start) / step))
}

// Schedule returns the potential steps of the sweep. The initial setpoint is
// the start voltage; each half sweep has the same number of points and
// every cycle ends exactly at the start voltage.
func (cv *CyclicVoltammetry) Schedule() []Step {
	var (
		e0     = cv.value(cvParameters, "start_voltage")
		e1     = cv.value(cvParameters, "vertex_voltage")
		rate   = cv.value(cvParameters, "scan_rate")
		cycles = int(cv.value(cvParameters, "cycles"))
		n      = sweepSteps(e0, e1, cv.value(cvParameters, "step"))
	)
	if n < 1 {
		return nil
	}

	// spread the span evenly so both vertices are hit exactly
	delta := (e1 - e0) / float64(n)
	dwell := seconds(math.Abs(delta) / rate)

	steps := make([]Step, 0, 2*n*cycles)
	for c := 0; c < cycles; c++ {
		for k := 1; k <= n; k++ {
			e := e0 + float64(k)*delta
			if k == n {
				e = e1
			}
			steps = append(steps, Step{X: e, Setpoint: e, Dwell: dwell})
		}
		for k := 1; k <= n; k++ {
			e := e1 - float64(k)*delta
			if k == n {
				e = e0
			}
			steps = append(steps, Step{X: e, Setpoint: e, Dwell: dwell})
		}
	}
	return steps
}

func (cv *CyclicVoltammetry) Run(ctx context.Context, inst Instrument, emit EmitFunc, progress ProgressFunc) error {
	log := cv.logger().WithField("method", "cv")
	return runSchedule(ctx, inst, log, cv.Mode(), cv.value(cvParameters, "start_voltage"), cv.Schedule(), emit, progress)
}
