package method

import (
	"context"
	"math"
	"time"

	"github.com/mastercactapus/echem/instrument"
)

var ccParameters = ParameterSpec{
	{Name: "current", Label: "Current (µA)", Default: 100, Min: bound(-2e6), Max: bound(2e6)},
	{Name: "duration", Label: "Duration (s)", Default: 20, Positive: true, Max: bound(7 * 24 * 3600)},
	{Name: "dt", Label: "Sample Interval (s)", Default: 0.1, Positive: true, Max: bound(3600)},
}

// ConstantCurrent holds a fixed current and samples the cell potential
// against elapsed wall-clock time.
type ConstantCurrent struct {
	base

	now func() time.Time
}

// NewConstantCurrent returns a ConstantCurrent with default parameters.
func NewConstantCurrent() Method { return &ConstantCurrent{now: time.Now} }

func (*ConstantCurrent) Name() string                 { return "Constant Current" }
func (*ConstantCurrent) Mode() instrument.ControlMode { return instrument.Galvanostat }
func (*ConstantCurrent) XLabel() string               { return "Time (s)" }
func (*ConstantCurrent) YLabel() string               { return "Voltage (V)" }
func (*ConstantCurrent) Parameters() ParameterSpec    { return ccParameters }

func (cc *ConstantCurrent) SetParams(values map[string]any) error {
	return cc.bind(ccParameters, values)
}

// Run applies the current once, then reads the potential every dt seconds
// while the elapsed time is at most the duration. Samples are reported at
// their measured elapsed time, so a slow link yields fewer samples rather
// than a longer run.
func (cc *ConstantCurrent) Run(ctx context.Context, inst Instrument, emit EmitFunc, progress ProgressFunc) (err error) {
	emit, progress = sinks(emit, progress)
	log := cc.logger().WithField("method", "cc")
	now := cc.now
	if now == nil {
		now = time.Now
	}

	var (
		amps     = cc.value(ccParameters, "current") / 1e6
		duration = cc.value(ccParameters, "duration")
		dt       = seconds(cc.value(ccParameters, "dt"))
		points   int
	)

	defer func() { err = finish(log, points, err) }()
	defer shutdown(inst, log)

	if err := configure(inst, instrument.Galvanostat, amps); err != nil {
		return err
	}

	start := now()
	for t := 0.0; t <= duration; t = now().Sub(start).Seconds() {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := inst.ReadValue()
		if err != nil {
			return err
		}
		emit(t, v)
		points++
		progress(math.Min(t/duration, 1))

		wait(ctx, dt)
	}
	progress(1)
	return nil
}
