package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mastercactapus/echem/method"
)

// Outcome is the state a session ends in.
type Outcome int

const (
	Running Outcome = iota
	Completed
	Cancelled
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(data []byte) error {
	for _, v := range []Outcome{Running, Completed, Cancelled, Failed} {
		if strings.EqualFold(string(data), v.String()) {
			*o = v
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", string(data))
}

// Session is a single execution of a method.
type Session struct {
	ID      uuid.UUID
	Method  method.Method
	Params  method.Params
	Started time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mx      sync.Mutex
	stopped time.Time
	points  int
	outcome Outcome
	err     error
}

// Done is closed once the method has returned, its safety shutdown has run
// and no further sink calls will be made.
func (s *Session) Done() <-chan struct{} { return s.done }

// Cancel requests the run to stop. It does not wait.
func (s *Session) Cancel() { s.cancel() }

// Wait blocks until the session is done and returns its outcome and error.
func (s *Session) Wait() (Outcome, error) {
	<-s.done
	return s.Outcome(), s.Err()
}

// Outcome returns Running until the session is done.
func (s *Session) Outcome() Outcome {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.outcome
}

// Err returns the failure of a Failed session.
func (s *Session) Err() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.err
}

// Points returns the number of samples emitted so far.
func (s *Session) Points() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.points
}

// Stopped returns when the session finished, or the zero time while it runs.
func (s *Session) Stopped() time.Time {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.stopped
}

// Status is a point-in-time view of a session.
type Status struct {
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Mode    string        `json:"mode"`
	Params  method.Params `json:"params"`
	Started time.Time     `json:"started"`
	Stopped *time.Time    `json:"stopped,omitempty"`
	Points  int           `json:"points"`
	Outcome Outcome       `json:"outcome"`
	Error   string        `json:"error,omitempty"`
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mx.Lock()
	defer s.mx.Unlock()
	st := Status{
		ID:      s.ID.String(),
		Method:  s.Method.Name(),
		Mode:    s.Method.Mode().String(),
		Params:  s.Params.Clone(),
		Started: s.Started,
		Points:  s.points,
		Outcome: s.outcome,
	}
	if !s.stopped.IsZero() {
		stopped := s.stopped
		st.Stopped = &stopped
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	return st
}
