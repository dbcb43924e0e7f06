// Package runner executes one method at a time on a background goroutine
// and tracks the resulting session.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mastercactapus/echem/method"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// ErrRunInProgress is returned by Start while another session is active.
var ErrRunInProgress = &method.ConfigurationError{Reason: "run already in progress"}

// Runner owns the single active session. The instrument passed to Start is
// used by nothing else until that session is done.
type Runner struct {
	mx     sync.Mutex
	active *Session
	last   *Session

	log     logrus.FieldLogger
	metrics *metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for run lifecycle messages.
func WithLogger(l logrus.FieldLogger) Option { return func(r *Runner) { r.log = l } }

// WithRegisterer registers run metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Runner) { r.metrics = newMetrics(reg) }
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartOption configures a single session.
type StartOption func(*Session)

// WithID sets the session ID instead of generating one.
func WithID(id uuid.UUID) StartOption { return func(s *Session) { s.ID = id } }

// Start begins running m against inst on a new goroutine and returns
// immediately. emit and progress are called on that goroutine in schedule
// order and may be nil. Start fails with ErrRunInProgress if a session is
// already active.
//
// Cancelling ctx, the session or the runner stops the run cooperatively.
func (r *Runner) Start(ctx context.Context, m method.Method, inst method.Instrument, emit method.EmitFunc, progress method.ProgressFunc, opts ...StartOption) (*Session, error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.active != nil {
		return nil, ErrRunInProgress
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:      uuid.New(),
		Method:  m,
		Params:  m.Params(),
		Started: time.Now().UTC(),

		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Params == nil {
		s.Params = m.Parameters().Defaults()
	}
	r.active = s

	log := r.log.WithField("run", s.ID.String()).WithField("method", m.Name())
	if ls, ok := m.(interface{ SetLogger(logrus.FieldLogger) }); ok {
		ls.SetLogger(log)
	}
	log.WithField("params", s.Params).Info("run started")

	if r.metrics != nil {
		r.metrics.active.Set(1)
	}

	go r.run(ctx, s, inst, emit, progress, log)
	return s, nil
}

func (r *Runner) run(ctx context.Context, s *Session, inst method.Instrument, emit method.EmitFunc, progress method.ProgressFunc, log logrus.FieldLogger) {
	defer close(s.done)
	defer s.cancel()

	count := func(x, y float64) {
		s.mx.Lock()
		s.points++
		s.mx.Unlock()
		if r.metrics != nil {
			r.metrics.samples.WithLabelValues(s.Method.Name()).Inc()
		}
		if emit != nil {
			emit(x, y)
		}
	}

	err := safeRun(ctx, s.Method, inst, count, progress)
	r.finish(ctx, s, err, log)
}

// safeRun turns a panic in a method into an error.
func safeRun(ctx context.Context, m method.Method, inst method.Instrument, emit method.EmitFunc, progress method.ProgressFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("method panicked: %v", p)
		}
	}()
	return m.Run(ctx, inst, emit, progress)
}

func (r *Runner) finish(ctx context.Context, s *Session, err error, log logrus.FieldLogger) {
	outcome := Completed
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), ctx.Err() != nil && errors.Is(err, ctx.Err()):
		outcome = Cancelled
		err = nil
	default:
		outcome = Failed
	}

	s.mx.Lock()
	s.stopped = time.Now().UTC()
	s.outcome = outcome
	s.err = err
	points := s.points
	elapsed := s.stopped.Sub(s.Started)
	s.mx.Unlock()

	r.mx.Lock()
	r.active = nil
	r.last = s
	r.mx.Unlock()

	if r.metrics != nil {
		r.metrics.active.Set(0)
		r.metrics.runs.WithLabelValues(s.Method.Name(), outcome.String()).Inc()
		r.metrics.duration.WithLabelValues(s.Method.Name()).Observe(elapsed.Seconds())
	}

	log = log.WithField("outcome", outcome.String()).WithField("points", points).WithField("elapsed", elapsed.Round(time.Millisecond))
	if err != nil {
		log.WithError(err).Warn("run ended")
		return
	}
	log.Info("run ended")
}

// Active returns the running session, if any.
func (r *Runner) Active() *Session {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.active
}

// Last returns the most recently finished session, if any.
func (r *Runner) Last() *Session {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.last
}

// Cancel requests the active session to stop. It reports whether a session
// was active.
func (r *Runner) Cancel() bool {
	s := r.Active()
	if s == nil {
		return false
	}
	s.Cancel()
	return true
}
