package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/mastercactapus/echem/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRun_HeaderFirst(t *testing.T) {
	tl := newTestLab(t)

	var out bytes.Buffer
	s, recorded, err := startRun(context.Background(), tl.lab, &out, runRequest{
		Method:  "diagnostic",
		Params:  map[string]any{"points": 5, "delay": 0},
		User:    "alice",
		Project: "cells",
	})
	require.NoError(t, err)

	outcome, err := s.Wait()
	require.NoError(t, err)
	assert.Equal(t, runner.Completed, outcome)
	path := <-recorded
	assert.Contains(t, path, "experiment_diagnostic_")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "# Point index\tCurrent (A)", lines[0])
	assert.Equal(t, "0\t1e-06", lines[1])
	assert.Equal(t, "4\t1e-06", lines[5])
}

func TestStartRun_BadParams(t *testing.T) {
	tl := newTestLab(t)

	var out bytes.Buffer
	_, _, err := startRun(context.Background(), tl.lab, &out, runRequest{
		Method:  "cv",
		Params:  map[string]any{"cycles": "1.5"},
		User:    "alice",
		Project: "cells",
	})
	assert.Error(t, err)
	assert.Empty(t, out.String())
	assert.Empty(t, tl.rec.Lines())
}
