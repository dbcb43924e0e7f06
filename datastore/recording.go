package datastore

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/mastercactapus/echem/method"
	"go.uber.org/multierr"
)

const separator = "# ----------------------------------"

// Header describes the run a recording belongs to.
type Header struct {
	// MethodID is the registry identifier used in the file name.
	MethodID string
	Method   method.Method

	User       string
	Project    string
	Experiment string
}

// Recording is an open CSV file receiving samples.
type Recording struct {
	Path string
	// Rel is Path relative to the store root, with forward slashes.
	Rel       string
	Timestamp time.Time

	mx   sync.Mutex
	f    *os.File
	w    *csv.Writer
	rows int
	err  error
}

// Create opens a new recording and writes its metadata header. Parameters
// are written in declaration order.
func (s *Store) Create(h Header) (*Recording, error) {
	if h.Experiment == "" {
		h.Experiment = DefaultExperiment
	}
	experiment, err := cleanSegment(h.Experiment)
	if err != nil {
		return nil, fmt.Errorf("experiment %q: %w", h.Experiment, err)
	}
	methodID, err := cleanSegment(h.MethodID)
	if err != nil {
		return nil, fmt.Errorf("method %q: %w", h.MethodID, err)
	}
	dir, err := s.mkdir(h.User, h.Project)
	if err != nil {
		return nil, err
	}

	ts := s.now()
	name := filepath.Join(dir, fmt.Sprintf("%s_%s_%s.csv", experiment, methodID, ts.Format(TimestampFormat)))

	// never overwrite an earlier recording
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}

	rel, err := filepath.Rel(s.dir, name)
	if err != nil {
		rel = filepath.Base(name)
	}
	r := &Recording{
		Path:      name,
		Rel:       filepath.ToSlash(rel),
		Timestamp: ts,
		f:         f,
		w:         csv.NewWriter(f),
	}
	if err := r.writeHeader(h, ts); err != nil {
		return nil, multierr.Append(err, f.Close())
	}
	s.log.WithField("path", name).Info("recording started")
	return r, nil
}

func (r *Recording) writeHeader(h Header, ts time.Time) error {
	m := h.Method
	rows := [][]string{
		{"# Method: " + m.Name()},
		{"# Mode: " + m.Mode().String()},
		{"# Timestamp: " + ts.Format(TimestampFormat)},
		{"# User: " + h.User},
		{"# Project: " + h.Project},
		{separator},
		{"# PARAMETERS"},
	}

	params := m.Params()
	if params == nil {
		params = m.Parameters().Defaults()
	}
	for _, p := range m.Parameters() {
		rows = append(rows, []string{p.Name, formatFloat(params[p.Name])})
	}

	rows = append(rows,
		[]string{separator},
		[]string{"# DATA"},
		[]string{m.XLabel(), m.YLabel()},
	)
	if err := r.w.WriteAll(rows); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// Record appends a sample row and flushes it to disk. After the first
// failure every call returns that failure.
func (r *Recording) Record(x, y float64) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.f == nil {
		return os.ErrClosed
	}
	if err := r.w.Write([]string{formatFloat(x), formatFloat(y)}); err != nil {
		r.err = err
		return err
	}
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		r.err = err
		return err
	}
	r.rows++
	return nil
}

// Rows returns how many samples were recorded.
func (r *Recording) Rows() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.rows
}

// Close flushes and closes the file. It returns the first write failure, if
// any, together with any close failure.
func (r *Recording) Close() error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.f == nil {
		return r.err
	}
	r.w.Flush()
	err := multierr.Combine(r.err, r.w.Error(), r.f.Close())
	r.f = nil
	return err
}
