package buddy

import (
	"context"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/system/grouplock"
	"go.uber.org/zap"
)

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Schedule     Schedule
	HistoryWeeks int
	// Concurrency is the number of groups a run processes in parallel.
	Concurrency int
	Partitioner *Partitioner
	Locker      Locker
	Tx          Transactor
	// Gateway receives post-commit events. Nil drops them.
	Gateway Gateway
	Now     func() time.Time
}

// Engine runs buddy cycles, mid-cycle repairs, and integrity checks against
// one set of stores.
type Engine struct {
	cycles   CycleStore
	pairings PairingStore
	channels ChannelStore
	states   MemberStateStore
	dir      Directory

	schedule     Schedule
	historyWeeks int
	concurrency  int
	part         *Partitioner
	locker       Locker
	tx           Transactor
	gateway      Gateway
	now          func() time.Time
	log          *zap.Logger
}

// NewEngine builds an Engine over stores.
func NewEngine(stores Stores, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cycles:       stores.Cycles,
		pairings:     stores.Pairings,
		channels:     stores.Channels,
		states:       stores.States,
		dir:          stores.Directory,
		schedule:     opts.Schedule,
		historyWeeks: opts.HistoryWeeks,
		concurrency:  opts.Concurrency,
		part:         opts.Partitioner,
		locker:       opts.Locker,
		tx:           opts.Tx,
		gateway:      opts.Gateway,
		now:          opts.Now,
		log:          logger,
	}
	if e.schedule.Days <= 0 || e.schedule.Anchor.IsZero() {
		e.schedule = DefaultSchedule()
	}
	if e.historyWeeks <= 0 {
		e.historyWeeks = DefaultHistoryWeeks
	}
	if e.concurrency <= 0 {
		e.concurrency = 1
	}
	if e.part == nil {
		e.part = NewSeededPartitioner(uint64(time.Now().UnixNano()), DefaultMaxAttempts)
	}
	if e.locker == nil {
		e.locker = grouplock.NewLocal()
	}
	if e.tx == nil {
		e.tx = directTx{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Boundary returns the cycle boundary that contains the engine's current time.
func (e *Engine) Boundary() (start, end time.Time) {
	return e.schedule.Boundary(e.now())
}

// lockGroup takes the per-group lock shared by cycle runs and repairs.
func (e *Engine) lockGroup(ctx context.Context, groupID string) (func(), error) {
	return e.locker.Lock(ctx, "buddy:group:"+groupID)
}

// dispatch hands events to the gateway. Delivery failures are logged and
// otherwise ignored; persistence has already committed.
func (e *Engine) dispatch(ctx context.Context, events []Event) {
	if e.gateway == nil || len(events) == 0 {
		return
	}
	for _, ev := range events {
		var err error
		switch ev.Kind {
		case EventChannelCreated:
			err = e.gateway.CreateChannel(ctx, ev)
		case EventChannelUpdated:
			err = e.gateway.UpdateChannel(ctx, ev)
		case EventChannelArchived:
			err = e.gateway.ArchiveChannel(ctx, ev)
		case EventNotify:
			err = e.gateway.Notify(ctx, ev)
		default:
			e.log.Warn("unknown buddy event kind", zap.String("kind", string(ev.Kind)))
			continue
		}
		if err != nil {
			e.log.Warn("gateway delivery failed",
				zap.String("kind", string(ev.Kind)),
				zap.String("group_id", ev.GroupID),
				zap.String("channel_id", ev.ChannelID),
				zap.String("member_id", ev.MemberID),
				zap.Error(err))
		}
	}
}
