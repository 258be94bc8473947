// internal/app/system/workers/runner.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/system/tasks"
	"go.uber.org/zap"
)

// Runner is a background worker that executes periodic jobs, each on its own
// ticker. A job never overlaps with itself: a slow execution delays the next
// tick instead of running concurrently with it.
type Runner struct {
	jobs   []tasks.Job
	log    *zap.Logger
	stopCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewRunner creates a runner for jobs. Jobs with a non-positive interval or a
// nil Run func are ignored.
func NewRunner(logger *zap.Logger, jobs ...tasks.Job) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		log:    logger,
		stopCh: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, j := range jobs {
		if j.Interval <= 0 || j.Run == nil {
			logger.Warn("ignoring invalid background job", zap.String("job", j.Name))
			continue
		}
		r.jobs = append(r.jobs, j)
	}
	return r
}

// Start begins one loop per job.
func (r *Runner) Start() {
	for _, j := range r.jobs {
		r.wg.Add(1)
		go r.run(j)
		r.log.Info("background job started",
			zap.String("job", j.Name),
			zap.Duration("interval", j.Interval))
	}
}

// Stop signals every loop to stop, cancels in-flight executions, and waits
// for them to finish. It is safe to call more than once.
func (r *Runner) Stop() {
	r.once.Do(func() {
		close(r.stopCh)
		r.cancel()
		r.wg.Wait()
		r.log.Info("background jobs stopped")
	})
}

func (r *Runner) run(j tasks.Job) {
	defer r.wg.Done()

	if j.RunOnStart {
		r.execute(j)
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.execute(j)
		}
	}
}

func (r *Runner) execute(j tasks.Job) {
	ctx := r.ctx
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("background job panicked",
				zap.String("job", j.Name),
				zap.Any("panic", rec))
		}
	}()

	started := time.Now()
	if err := j.Run(ctx); err != nil {
		r.log.Error("background job failed",
			zap.String("job", j.Name),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return
	}
	r.log.Debug("background job finished",
		zap.String("job", j.Name),
		zap.Duration("elapsed", time.Since(started)))
}
