// Package transporttest provides an in-memory Transport for tests.
package transporttest

import (
	"strings"
	"sync"

	"github.com/mastercactapus/echem/transport"
)

// Recorder is a Transport that records every written line and answers
// queries through Reply.
type Recorder struct {
	mx      sync.Mutex
	lines   []string
	pending []string

	// Reply returns the reply line for a written command, or ok=false if
	// the command has no reply. A nil Reply answers READI with "1,-6" and
	// READE with "0.5".
	Reply func(cmd string) (reply string, ok bool)

	// WriteErr, when set, is returned for commands it returns non-nil for.
	WriteErr func(cmd string) error
}

var _ transport.Transport = &Recorder{}

func defaultReply(cmd string) (string, bool) {
	switch cmd {
	case "READI":
		return "1,-6", true
	case "READE":
		return "0.5", true
	}
	return "", false
}

func (r *Recorder) WriteLine(line string) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.WriteErr != nil {
		if err := r.WriteErr(line); err != nil {
			return err
		}
	}
	r.lines = append(r.lines, line)
	reply := r.Reply
	if reply == nil {
		reply = defaultReply
	}
	if s, ok := reply(line); ok {
		r.pending = append(r.pending, s)
	}
	return nil
}

func (r *Recorder) ReadLine() (string, error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if len(r.pending) == 0 {
		return "", transport.ErrTimeout
	}
	s := r.pending[0]
	r.pending = r.pending[1:]
	return s, nil
}

// Lines returns a copy of every line written so far.
func (r *Recorder) Lines() []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]string(nil), r.lines...)
}

// Count returns how many written lines equal line.
func (r *Recorder) Count(line string) int {
	var n int
	for _, l := range r.Lines() {
		if l == line {
			n++
		}
	}
	return n
}

// CountPrefix returns how many written lines start with prefix.
func (r *Recorder) CountPrefix(prefix string) int {
	var n int
	for _, l := range r.Lines() {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}
