package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flocksim/flock/exe"
	"github.com/flocksim/flock/model"
	"github.com/flocksim/flock/pop"
)

// Exit codes are the CLI contract: each failure class must stay
// distinguishable from the others.
func TestExitCodeFor(t *testing.T) {
	wrap := func(err error) error {
		return fmt.Errorf("context: %w", err)
	}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, exitOK},
		{"generic", errors.New("boom"), exitFailure},
		{"model validation", wrap(model.ErrModelValidation), exitModelInvalid},
		{"missing file", wrap(pop.ErrIO), exitIO},
		{"schema", wrap(pop.ErrSchema), exitSchema},
		{"unknown agent", wrap(pop.ErrUnknownAgent), exitUnknownAgent},
		{"unknown variable", wrap(pop.ErrUnknownVariable), exitUnknownVar},
		{"bad value", wrap(pop.ErrBadValue), exitBadValue},
		{"hdf5", wrap(pop.ErrNotImplemented), exitNotImplemented},
		{"unknown format", wrap(pop.ErrUnknownFormat), exitNotImplemented},
		{"time condition", wrap(model.ErrNotImplemented), exitNotImplemented},
		{"task failure", &exe.TaskError{Name: "f", Owner: "A", Err: errors.New("user")}, exitRuntime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}

	// the failure classes S6 cares about stay pairwise distinct
	distinct := []int{exitSchema, exitIO, exitUnknownAgent, exitBadValue}
	seen := map[int]struct{}{}
	for _, c := range distinct {
		if _, dup := seen[c]; dup {
			t.Fatalf("exit code %d reused", c)
		}
		seen[c] = struct{}{}
	}
}
