// internal/app/bootstrap/engine.go
package bootstrap

import (
	"time"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	channelstore "github.com/dalemusser/buddyhub/internal/app/store/channels"
	cyclestore "github.com/dalemusser/buddyhub/internal/app/store/cycles"
	memberstatestore "github.com/dalemusser/buddyhub/internal/app/store/memberstates"
	pairingstore "github.com/dalemusser/buddyhub/internal/app/store/pairings"
	"github.com/dalemusser/buddyhub/internal/app/store/queries/groupmembers"
	"github.com/dalemusser/buddyhub/internal/app/system/grouplock"
	"github.com/dalemusser/buddyhub/internal/app/system/txn"
	"go.uber.org/zap"
)

// NewEngine builds the buddy engine over the Mongo stores in deps. Group locks
// go through Redis when deps.Redis is set.
func NewEngine(deps DBDeps, appCfg AppConfig, logger *zap.Logger) *buddy.Engine {
	db := deps.BuddyHubMongoDatabase

	var locker buddy.Locker
	if deps.Redis != nil {
		locker = grouplock.NewRedis(deps.Redis, appCfg.LockTTL, logger)
	} else {
		locker = grouplock.NewLocal()
	}

	opts := buddy.Options{
		Schedule:     buddy.Schedule{Anchor: appCfg.CycleAnchor, Days: appCfg.CycleLengthDays},
		HistoryWeeks: appCfg.HistoryWeeks,
		Concurrency:  appCfg.RunConcurrency,
		Partitioner:  buddy.NewSeededPartitioner(uint64(time.Now().UnixNano()), appCfg.MaxAttempts),
		Locker:       locker,
		Tx:           txn.New(deps.BuddyHubMongoClient, logger),
	}
	if deps.Gateway != nil {
		opts.Gateway = deps.Gateway
	}

	return buddy.NewEngine(buddy.Stores{
		Cycles:    cyclestore.New(db),
		Pairings:  pairingstore.New(db),
		Channels:  channelstore.New(db),
		States:    memberstatestore.New(db),
		Directory: groupmembers.NewDirectory(db),
	}, opts, logger)
}
