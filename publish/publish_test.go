package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSample_Encode(t *testing.T) {
	s := Sample{
		RunID:     "5d1c0f9e-0000-4000-8000-000000000001",
		Method:    "cv",
		Index:     3,
		X:         -0.25,
		Y:         1.5e-6,
		Timestamp: time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC),
	}
	data, err := s.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"run_id": "5d1c0f9e-0000-4000-8000-000000000001",
		"method": "cv",
		"index": 3,
		"x": -0.25,
		"y": 1.5e-6,
		"timestamp": "2024-03-09T14:05:07Z"
	}`, string(data))

	assert.Equal(t, "echem:run:abc:samples", historyKey("abc"))
}

type memPublisher struct {
	mx      sync.Mutex
	samples []Sample
	block   chan struct{}
	err     error
}

func (p *memPublisher) Publish(ctx context.Context, s Sample) error {
	if p.block != nil {
		<-p.block
	}
	p.mx.Lock()
	defer p.mx.Unlock()
	p.samples = append(p.samples, s)
	return p.err
}

func TestRunSink(t *testing.T) {
	p := &memPublisher{}
	l, _ := logtest.NewNullLogger()
	s := NewRunSink(p, "run-1", "diagnostic", l)

	for i := 0; i < 5; i++ {
		s.Emit(float64(i), float64(i)*2)
	}
	assert.Equal(t, 0, s.Close())
	assert.Equal(t, 0, s.Close())

	// emitting after close is a no-op
	s.Emit(9, 9)

	require.Len(t, p.samples, 5)
	for i, sample := range p.samples {
		assert.Equal(t, i, sample.Index)
		assert.Equal(t, float64(i), sample.X)
		assert.Equal(t, float64(i)*2, sample.Y)
		assert.Equal(t, "run-1", sample.RunID)
		assert.Equal(t, "diagnostic", sample.Method)
	}
}

func TestRunSink_Drops(t *testing.T) {
	p := &memPublisher{block: make(chan struct{}), err: errors.New("no subscriber")}
	l, hook := logtest.NewNullLogger()
	s := NewRunSink(p, "run-2", "cc", l)

	// one sample may be held by the publishing goroutine, the rest fill the queue
	total := DefaultQueueSize + 10
	for i := 0; i < total; i++ {
		s.Emit(float64(i), 0)
	}
	close(p.block)
	dropped := s.Close()

	assert.GreaterOrEqual(t, dropped, 9)
	assert.LessOrEqual(t, dropped, 10)
	assert.Len(t, p.samples, total-dropped)
	assert.NotEmpty(t, hook.AllEntries())
}
