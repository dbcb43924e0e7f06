// Package publish streams run samples to external subscribers.
package publish

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Sample is the published form of one measured point.
type Sample struct {
	RunID     string    `json:"run_id"`
	Method    string    `json:"method"`
	Index     int       `json:"index"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Timestamp time.Time `json:"timestamp"`
}

// Encode returns the JSON payload for s.
func (s Sample) Encode() ([]byte, error) { return json.Marshal(s) }

// A Publisher delivers samples.
type Publisher interface {
	Publish(ctx context.Context, s Sample) error
}

// DefaultQueueSize is the number of samples a RunSink buffers.
const DefaultQueueSize = 256

const publishTimeout = 2 * time.Second

// RunSink forwards the samples of one run to a Publisher from its own
// goroutine so a slow subscriber never stalls acquisition. Samples that do
// not fit in the queue are dropped and counted.
type RunSink struct {
	p      Publisher
	runID  string
	method string
	log    logrus.FieldLogger

	ch   chan Sample
	done chan struct{}

	mx      sync.Mutex
	index   int
	dropped int
	closed  bool
}

// NewRunSink starts a sink for a single run. Close must be called when the
// run is done.
func NewRunSink(p Publisher, runID, method string, log logrus.FieldLogger) *RunSink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &RunSink{
		p:      p,
		runID:  runID,
		method: method,
		log:    log.WithField("run", runID),
		ch:     make(chan Sample, DefaultQueueSize),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *RunSink) loop() {
	defer close(s.done)
	for sample := range s.ch {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := s.p.Publish(ctx, sample)
		cancel()
		if err != nil {
			s.log.WithError(err).WithField("index", sample.Index).Warn("publish sample")
		}
	}
}

// Emit queues a sample. It matches method.EmitFunc.
func (s *RunSink) Emit(x, y float64) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.closed {
		return
	}
	sample := Sample{
		RunID:     s.runID,
		Method:    s.method,
		Index:     s.index,
		X:         x,
		Y:         y,
		Timestamp: time.Now().UTC(),
	}
	s.index++
	select {
	case s.ch <- sample:
	default:
		s.dropped++
	}
}

// Close stops accepting samples and waits for queued ones to be published.
// It returns the number of dropped samples.
func (s *RunSink) Close() int {
	s.mx.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	dropped := s.dropped
	s.mx.Unlock()

	<-s.done
	if dropped > 0 {
		s.log.WithField("dropped", dropped).Warn("samples dropped by publisher")
	}
	return dropped
}
