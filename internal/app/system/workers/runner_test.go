package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/system/tasks"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRunner_RunsJobsPeriodically(t *testing.T) {
	var ticks atomic.Int32
	r := NewRunner(zap.NewNop(), tasks.Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			ticks.Add(1)
			return nil
		},
	})
	r.Start()
	waitFor(t, func() bool { return ticks.Load() >= 3 })
	r.Stop()

	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	if ticks.Load() != after {
		t.Errorf("job ran after Stop: %d -> %d", after, ticks.Load())
	}
}

func TestRunner_RunOnStart(t *testing.T) {
	var ran atomic.Bool
	r := NewRunner(zap.NewNop(), tasks.Job{
		Name:       "startup",
		Interval:   time.Hour,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			ran.Store(true)
			return nil
		},
	})
	r.Start()
	defer r.Stop()
	waitFor(t, ran.Load)
}

func TestRunner_StopCancelsInFlightJob(t *testing.T) {
	started := make(chan struct{})
	var cancelled atomic.Bool
	r := NewRunner(zap.NewNop(), tasks.Job{
		Name:       "slow",
		Interval:   time.Hour,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			cancelled.Store(true)
			return ctx.Err()
		},
	})
	r.Start()
	<-started
	r.Stop()
	if !cancelled.Load() {
		t.Error("in-flight job should observe cancellation before Stop returns")
	}
	r.Stop() // second call is a no-op
}

func TestRunner_LogsFailuresAndPanics(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var calls atomic.Int32
	r := NewRunner(zap.New(core),
		tasks.Job{
			Name:       "fails",
			Interval:   time.Hour,
			RunOnStart: true,
			Run: func(ctx context.Context) error {
				calls.Add(1)
				return errors.New("boom")
			},
		},
		tasks.Job{
			Name:       "panics",
			Interval:   time.Hour,
			RunOnStart: true,
			Run: func(ctx context.Context) error {
				calls.Add(1)
				panic("bad job")
			},
		},
	)
	r.Start()
	waitFor(t, func() bool {
		return logs.FilterMessage("background job failed").Len() == 1 &&
			logs.FilterMessage("background job panicked").Len() == 1
	})
	r.Stop()
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestRunner_IgnoresInvalidJobs(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewRunner(zap.New(core),
		tasks.Job{Name: "no-interval", Run: func(context.Context) error { return nil }},
		tasks.Job{Name: "no-func", Interval: time.Second},
	)
	if len(r.jobs) != 0 {
		t.Errorf("jobs = %d, want 0", len(r.jobs))
	}
	if logs.Len() != 2 {
		t.Errorf("warnings = %d, want 2", logs.Len())
	}
	r.Start()
	r.Stop()
}
