package method

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/mastercactapus/echem/instrument"
	"github.com/sirupsen/logrus"
)

// Step is a single point of a fixed acquisition schedule.
type Step struct {
	// X is the reported abscissa of the sample.
	X        float64
	Setpoint float64
	Dwell    time.Duration
}

func nopEmit(x, y float64)        {}
func nopProgress(fraction float64) {}

func sinks(emit EmitFunc, progress ProgressFunc) (EmitFunc, ProgressFunc) {
	if emit == nil {
		emit = nopEmit
	}
	if progress == nil {
		progress = nopProgress
	}
	return emit, progress
}

// configure selects the control mode and applies the initial setpoint.
func configure(inst Instrument, mode instrument.ControlMode, setpoint float64) error {
	if err := inst.SetMode(mode); err != nil {
		return err
	}
	return inst.SetValue(setpoint)
}

// shutdown zeroes the setpoint. A failure is logged, never returned.
func shutdown(inst Instrument, log logrus.FieldLogger) {
	if err := inst.SetValue(0); err != nil {
		log.WithError(err).Error("safety shutdown failed")
		return
	}
	log.Debug("setpoint returned to zero")
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// finish logs how a run ended and passes err through.
func finish(log logrus.FieldLogger, points int, err error) error {
	log = log.WithField("points", points)
	switch {
	case err == nil:
		log.Info("run complete")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Info("run cancelled")
	default:
		log.WithError(err).Error("run failed")
	}
	return err
}

// runSchedule drives inst through steps. For each step it applies the
// setpoint, reads the response, emits (X, response), reports progress and
// dwells. Cancellation is checked before every step. The setpoint is
// zeroed exactly once on return, whatever the outcome.
func runSchedule(ctx context.Context, inst Instrument, log logrus.FieldLogger, mode instrument.ControlMode, initial float64, steps []Step, emit EmitFunc, progress ProgressFunc) (err error) {
	emit, progress = sinks(emit, progress)

	var points int
	defer func() { err = finish(log, points, err) }()
	defer shutdown(inst, log)

	if err := configure(inst, mode, initial); err != nil {
		return err
	}

	total := float64(len(steps))
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := inst.SetValue(s.Setpoint); err != nil {
			return err
		}
		y, err := inst.ReadValue()
		if err != nil {
			return err
		}
		emit(s.X, y)
		points++
		progress(float64(i+1) / total)

		wait(ctx, s.Dwell)
	}
	return nil
}
