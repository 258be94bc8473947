package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	"github.com/dalemusser/buddyhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// CycleRunner is the part of the buddy engine the cycle job needs.
type CycleRunner interface {
	RunCycle(ctx context.Context, groupID string) (buddy.RunReport, error)
}

// Validator is the part of the buddy engine the integrity job needs.
type Validator interface {
	Validate(ctx context.Context, groupID string) (buddy.ValidationReport, error)
}

// BuddyCycleJob creates a job that ensures the current cycle exists for every
// active group. Runs inside an existing cycle are cheap no-ops, so the interval
// only controls how soon after a boundary the new cycle is built.
func BuddyCycleJob(engine CycleRunner, logger *zap.Logger, interval time.Duration) Job {
	if interval <= 0 {
		interval = time.Hour
	}
	return Job{
		Name:       "buddy-cycle",
		Interval:   interval,
		Timeout:    timeouts.Run(),
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			report, err := engine.RunCycle(ctx, "")
			if err != nil {
				return err
			}
			if report.GroupsProcessed > 0 || len(report.FailedGroups) > 0 {
				logger.Info("buddy cycle job created cycles",
					zap.Time("cycle_start", report.CycleStart),
					zap.Int("groups_processed", report.GroupsProcessed),
					zap.Int("pairings_created", report.PairingsCreated),
					zap.Strings("failed_groups", report.FailedGroups))
			}
			return nil
		},
	}
}

// IntegrityCheckJob creates a job that validates every active group's current
// cycle and logs each violation. It never repairs anything.
func IntegrityCheckJob(engine Validator, logger *zap.Logger, interval time.Duration) Job {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return Job{
		Name:     "buddy-integrity-check",
		Interval: interval,
		Timeout:  timeouts.Run(),
		Run: func(ctx context.Context) error {
			report, err := engine.Validate(ctx, "")
			if err != nil {
				return err
			}
			if report.Valid {
				return nil
			}
			for _, g := range report.Groups {
				if g.Error != "" {
					logger.Warn("buddy integrity check failed for group",
						zap.String("group_id", g.GroupID),
						zap.String("error", g.Error))
				}
				for _, v := range g.Violations {
					logger.Warn("buddy integrity violation",
						zap.String("kind", string(v.Kind)),
						zap.String("group_id", v.GroupID),
						zap.String("member_id", v.MemberID),
						zap.String("pairing_id", v.PairingID),
						zap.String("detail", v.Detail))
				}
			}
			return nil
		},
	}
}
