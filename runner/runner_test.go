package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mastercactapus/echem/instrument"
	"github.com/mastercactapus/echem/method"
	"github.com/mastercactapus/echem/transport/transporttest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newRunner(t *testing.T, opts ...Option) *Runner {
	t.Helper()
	l, _ := logtest.NewNullLogger()
	return New(append([]Option{WithLogger(l)}, opts...)...)
}

func diagnostic(t *testing.T, values map[string]any) method.Method {
	t.Helper()
	m, err := method.Default.Build("diagnostic", values)
	require.NoError(t, err)
	return m
}

func TestRunner_Completed(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newRunner(t, WithRegisterer(reg))
	rec := &transporttest.Recorder{}

	var (
		mx sync.Mutex
		xs []float64
	)
	emit := func(x, y float64) {
		mx.Lock()
		xs = append(xs, x)
		mx.Unlock()
	}

	id := uuid.New()
	s, err := r.Start(context.Background(), diagnostic(t, map[string]any{"points": 10, "delay": 0}), instrument.NewDriver(rec), emit, nil, WithID(id))
	require.NoError(t, err)
	assert.Equal(t, id, s.ID)

	outcome, err := s.Wait()
	assert.Equal(t, Completed, outcome)
	assert.NoError(t, err)
	assert.Equal(t, 10, s.Points())
	assert.Len(t, xs, 10)
	assert.False(t, s.Stopped().IsZero())
	assert.Equal(t, 1, rec.Count("SETE 0"))

	assert.Nil(t, r.Active())
	assert.Same(t, s, r.Last())

	st := s.Status()
	assert.Equal(t, s.ID.String(), st.ID)
	assert.Equal(t, "Diagnostic", st.Method)
	assert.Equal(t, Completed, st.Outcome)
	assert.NotNil(t, st.Stopped)
	assert.Equal(t, 10.0, st.Params["points"])

	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.runs.WithLabelValues("Diagnostic", "completed")))
	assert.Equal(t, 10.0, testutil.ToFloat64(r.metrics.samples.WithLabelValues("Diagnostic")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.metrics.active))
}

func TestRunner_InProgress(t *testing.T) {
	r := newRunner(t)
	rec := &transporttest.Recorder{}
	inst := instrument.NewDriver(rec)

	s, err := r.Start(context.Background(), diagnostic(t, map[string]any{"points": 1000, "delay": 10}), inst, nil, nil)
	require.NoError(t, err)
	assert.Same(t, s, r.Active())
	assert.Equal(t, Running, s.Outcome())

	_, err = r.Start(context.Background(), diagnostic(t, nil), inst, nil, nil)
	assert.ErrorIs(t, err, ErrRunInProgress)
	var cerr *method.ConfigurationError
	assert.ErrorAs(t, err, &cerr)

	assert.True(t, r.Cancel())
	outcome, err := s.Wait()
	assert.Equal(t, Cancelled, outcome)
	assert.NoError(t, err)
	assert.Equal(t, 1, rec.Count("SETE 0"))

	assert.False(t, r.Cancel())

	// the runner accepts a new session once the previous one is done
	s, err = r.Start(context.Background(), diagnostic(t, map[string]any{"points": 2, "delay": 0}), inst, nil, nil)
	require.NoError(t, err)
	outcome, _ = s.Wait()
	assert.Equal(t, Completed, outcome)
}

func TestRunner_ContextCancelled(t *testing.T) {
	r := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := method.Default.Build("cc", nil)
	require.NoError(t, err)

	rec := &transporttest.Recorder{}
	s, err := r.Start(ctx, m, instrument.NewDriver(rec), nil, nil)
	require.NoError(t, err)

	outcome, err := s.Wait()
	assert.Equal(t, Cancelled, outcome)
	assert.NoError(t, err)
	assert.Equal(t, 0, s.Points())
	assert.Equal(t, 1, rec.Count("SETI 0 -6"))
}

func TestRunner_Failed(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newRunner(t, WithRegisterer(reg))
	rec := &transporttest.Recorder{Reply: func(cmd string) (string, bool) { return "garbage", cmd == "READI" }}

	s, err := r.Start(context.Background(), diagnostic(t, map[string]any{"points": 3, "delay": 0}), instrument.NewDriver(rec), nil, nil)
	require.NoError(t, err)

	outcome, err := s.Wait()
	assert.Equal(t, Failed, outcome)
	var perr *instrument.ProtocolError
	assert.ErrorAs(t, err, &perr)
	assert.NotEmpty(t, s.Status().Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.runs.WithLabelValues("Diagnostic", "failed")))
}

type panicky struct{ method.Method }

func (panicky) Run(context.Context, method.Instrument, method.EmitFunc, method.ProgressFunc) error {
	panic("boom")
}

func TestRunner_Panic(t *testing.T) {
	r := newRunner(t)
	s, err := r.Start(context.Background(), panicky{diagnostic(t, nil)}, instrument.NewDriver(&transporttest.Recorder{}), nil, nil)
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not finish")
	}
	assert.Equal(t, Failed, s.Outcome())
	assert.EqualError(t, s.Err(), "method panicked: boom")
}

func TestOutcome_Text(t *testing.T) {
	var o Outcome
	assert.NoError(t, o.UnmarshalText([]byte("Cancelled")))
	assert.Equal(t, Cancelled, o)
	assert.Error(t, o.UnmarshalText([]byte("paused")))

	b, err := Failed.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "failed", string(b))
	assert.False(t, errors.Is(ErrRunInProgress, context.Canceled))
}
