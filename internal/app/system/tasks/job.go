// Package tasks defines the periodic background jobs of the buddy service.
// internal/app/system/workers runs them.
package tasks

import (
	"context"
	"time"
)

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single execution. Zero means no bound beyond the
	// runner's own lifetime.
	Timeout time.Duration
	// RunOnStart executes the job once immediately instead of waiting for
	// the first tick.
	RunOnStart bool
	Run        func(ctx context.Context) error
}
