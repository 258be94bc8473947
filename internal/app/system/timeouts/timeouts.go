// Package timeouts provides centralized timeout values for buddy operations.
//
// Timeouts can be configured at startup using Configure(). If not configured,
// the defaults below are used.
//
// Guidelines for choosing a timeout:
//   - Ping: health checks and connectivity verification
//   - Short: single reads and small writes (HTTP validation of one group)
//   - Repair: one mid-cycle join or leave, including waiting for the group lock
//   - Run: a whole cycle run or integrity pass across every group
package timeouts

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultRepair = 30 * time.Second
	DefaultRun    = 10 * time.Minute
)

var mu sync.RWMutex

var (
	ping   = DefaultPing
	short  = DefaultShort
	repair = DefaultRepair
	run    = DefaultRun
)

// Ping returns the timeout for health checks.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Short returns the timeout for single reads and small writes.
func Short() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return short
}

// Repair returns the timeout for one mid-cycle join or leave.
func Repair() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return repair
}

// Run returns the timeout for a full cycle run or integrity pass.
func Run() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return run
}

// Config holds timeout configuration values.
// Zero values are ignored (defaults are kept).
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Repair time.Duration
	Run    time.Duration
}

// Configure sets custom timeout values. Zero values in the config are ignored,
// keeping the current (or default) values. Call it during startup before
// handlers and jobs are built.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Short > 0 {
		short = cfg.Short
	}
	if cfg.Repair > 0 {
		repair = cfg.Repair
	}
	if cfg.Run > 0 {
		run = cfg.Run
	}
}

// Reset restores all timeouts to their default values.
// Useful for testing.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	short = DefaultShort
	repair = DefaultRepair
	run = DefaultRun
}

// ConfigureFromEnv reads BUDDYHUB_TIMEOUT_PING, BUDDYHUB_TIMEOUT_SHORT,
// BUDDYHUB_TIMEOUT_REPAIR and BUDDYHUB_TIMEOUT_RUN (Go durations such as
// "500ms" or "15m"). Unset or invalid values are skipped.
//
// Returns the number of timeouts successfully configured from environment.
func ConfigureFromEnv() int {
	mu.Lock()
	defer mu.Unlock()

	configured := 0
	for _, v := range []struct {
		env string
		dst *time.Duration
	}{
		{"BUDDYHUB_TIMEOUT_PING", &ping},
		{"BUDDYHUB_TIMEOUT_SHORT", &short},
		{"BUDDYHUB_TIMEOUT_REPAIR", &repair},
		{"BUDDYHUB_TIMEOUT_RUN", &run},
	} {
		raw := os.Getenv(v.env)
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			*v.dst = d
			configured++
		}
	}
	return configured
}

// Current returns the current timeout configuration as a Config struct.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{Ping: ping, Short: short, Repair: repair, Run: run}
}

// WithTimeout creates a context with timeout and returns a cancel function that
// logs a warning if the context ended because the deadline passed.
//
// Example:
//
//	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Run(), h.Log, "buddy cycle run")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
