package buddy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dalemusser/buddyhub/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunReport aggregates the outcome of one cycle run.
type RunReport struct {
	CycleStart time.Time `json:"cycle_start"`
	CycleEnd   time.Time `json:"cycle_end"`

	// GroupsProcessed counts groups for which this run created the cycle,
	// including groups with too few members to pair.
	GroupsProcessed int `json:"groups_processed"`
	// GroupsSkipped counts groups whose cycle already existed.
	GroupsSkipped       int      `json:"groups_skipped"`
	InsufficientGroups  []string `json:"insufficient_groups"`
	DegradedGroups      []string `json:"degraded_groups"`
	FailedGroups        []string `json:"failed_groups"`
	PairingsCreated     int      `json:"pairings_created"`
	NotificationsQueued int      `json:"notifications_queued"`

	// Events are the post-commit side effects of the run, already handed to
	// the gateway when one is configured.
	Events []Event `json:"-"`
}

type groupStatus int

const (
	statusFailed groupStatus = iota
	statusProcessed
	statusSkipped
	statusInsufficient
)

type groupOutcome struct {
	groupID  string
	status   groupStatus
	pairings int
	degraded bool
	events   []Event
}

// RunCycle ensures the current cycle exists for one group (groupID != "") or
// for every active group.
//
// Per-group failures are logged and listed in FailedGroups; the run carries
// on with the next group. An error is returned only when the run cannot
// proceed at all: the group list cannot be read, the requested group does not
// exist or is inactive, or ctx ends.
func (e *Engine) RunCycle(ctx context.Context, groupID string) (RunReport, error) {
	start, end := e.Boundary()
	report := RunReport{
		CycleStart:         start,
		CycleEnd:           end,
		InsufficientGroups: []string{},
		DegradedGroups:     []string{},
		FailedGroups:       []string{},
	}

	groupIDs, err := e.groupsToRun(ctx, groupID)
	if err != nil {
		return report, err
	}

	outcomes := make([]groupOutcome, len(groupIDs))
	if e.concurrency > 1 && len(groupIDs) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.concurrency)
		for i, gid := range groupIDs {
			g.Go(func() error {
				outcomes[i] = e.runGroup(gctx, gid, start, end)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return report, fmt.Errorf("buddy cycle run aborted: %w", err)
		}
	} else {
		for i, gid := range groupIDs {
			if err := ctx.Err(); err != nil {
				return report, fmt.Errorf("buddy cycle run aborted: %w", err)
			}
			outcomes[i] = e.runGroup(ctx, gid, start, end)
		}
	}

	for _, out := range outcomes {
		switch out.status {
		case statusProcessed:
			report.GroupsProcessed++
		case statusInsufficient:
			report.GroupsProcessed++
			report.InsufficientGroups = append(report.InsufficientGroups, out.groupID)
		case statusSkipped:
			report.GroupsSkipped++
		default:
			report.FailedGroups = append(report.FailedGroups, out.groupID)
		}
		if out.degraded {
			report.DegradedGroups = append(report.DegradedGroups, out.groupID)
		}
		report.PairingsCreated += out.pairings
		for _, ev := range out.events {
			if ev.Kind == EventNotify {
				report.NotificationsQueued++
			}
		}
		report.Events = append(report.Events, out.events...)
	}

	e.log.Info("buddy cycle run finished",
		zap.Time("cycle_start", start),
		zap.Int("groups_processed", report.GroupsProcessed),
		zap.Int("groups_skipped", report.GroupsSkipped),
		zap.Int("groups_insufficient", len(report.InsufficientGroups)),
		zap.Int("groups_failed", len(report.FailedGroups)),
		zap.Int("pairings_created", report.PairingsCreated))

	e.dispatch(ctx, report.Events)
	return report, nil
}

func (e *Engine) groupsToRun(ctx context.Context, groupID string) ([]string, error) {
	if groupID == "" {
		ids, err := e.dir.ActiveGroupIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active groups: %w", err)
		}
		return ids, nil
	}
	g, err := e.dir.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load group %s: %w", groupID, err)
	}
	if g.Status != models.GroupActive {
		return nil, fmt.Errorf("group %s is %q: %w", groupID, g.Status, ErrInvalidInput)
	}
	return []string{groupID}, nil
}

// runGroup performs the whole unit of work for one group under its lock.
func (e *Engine) runGroup(ctx context.Context, groupID string, start, end time.Time) groupOutcome {
	log := e.log.With(zap.String("group_id", groupID), zap.Time("cycle_start", start))
	failed := groupOutcome{groupID: groupID, status: statusFailed}

	unlock, err := e.lockGroup(ctx, groupID)
	if err != nil {
		log.Error("acquire group lock failed", zap.Error(err))
		return failed
	}
	defer unlock()

	exists, err := e.cycles.Exists(ctx, groupID, start)
	if err != nil {
		log.Error("cycle existence check failed", zap.Error(err))
		return failed
	}
	if exists {
		log.Debug("cycle already exists; skipping group")
		return groupOutcome{groupID: groupID, status: statusSkipped}
	}

	var out groupOutcome
	err = e.tx.Run(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.buildCycle(ctx, groupID, start, end, log)
		return err
	})
	if err != nil {
		log.Error("buddy cycle for group failed", zap.Error(err))
		return failed
	}
	return out
}

// buildCycle creates the cycle, archives the previous channels, and persists
// its pairings, channels, and member states. Nothing is written when another
// run created the cycle first.
func (e *Engine) buildCycle(ctx context.Context, groupID string, start, end time.Time, log *zap.Logger) (groupOutcome, error) {
	out := groupOutcome{groupID: groupID}
	now := e.now().UTC()

	prevStart := time.Time{}
	if prev, err := e.cycles.Latest(ctx, groupID); err == nil {
		prevStart = prev.CycleStartDate
	} else if !errors.Is(err, ErrNotFound) {
		return out, fmt.Errorf("load previous cycle: %w", err)
	}

	cycle, created, err := e.cycles.CreateIfAbsent(ctx, models.Cycle{
		ID:             uuid.NewString(),
		GroupID:        groupID,
		CycleStartDate: start,
		CycleEndDate:   end,
		CreatedAt:      now,
	})
	if err != nil {
		return out, fmt.Errorf("create cycle: %w", err)
	}
	if !created {
		log.Info("cycle created concurrently; skipping group")
		out.status = statusSkipped
		return out, nil
	}

	// Only the run that created the cycle retires the previous channels.
	archived, err := e.channels.ArchiveActive(ctx, groupID, now)
	if err != nil {
		return out, fmt.Errorf("archive channels: %w", err)
	}
	for _, id := range archived {
		out.events = append(out.events, Event{Kind: EventChannelArchived, GroupID: groupID, ChannelID: id})
	}

	memberships, err := e.dir.ActiveMembers(ctx, groupID)
	if err != nil {
		return out, fmt.Errorf("load active members: %w", err)
	}
	members := make([]string, 0, len(memberships))
	for _, m := range memberships {
		members = append(members, m.MemberID)
	}
	sort.Strings(members)

	late, err := e.lateJoiners(ctx, groupID, memberships, prevStart)
	if err != nil {
		return out, err
	}
	history, err := e.recentGroups(ctx, groupID, start)
	if err != nil {
		return out, err
	}

	res := e.part.Partition(PartitionInput{Members: members, LateJoiners: late, History: history})
	if res.Insufficient {
		log.Info("not enough active members to pair", zap.Int("active_members", len(members)))
		out.status = statusInsufficient
		return out, nil
	}
	if !res.RepeatFree {
		log.Warn("no repeat-free partition found; using best effort",
			zap.Int("attempts", res.Attempts),
			zap.Int("active_members", len(members)))
		out.degraded = true
	}

	for _, group := range res.Groups {
		p := models.Pairing{
			ID:                 uuid.NewString(),
			CycleID:            cycle.ID,
			GroupID:            groupID,
			CycleStartDate:     start,
			Members:            group,
			Type:               models.PairingTypeFor(len(group)),
			Status:             models.PairingActive,
			LastAssignmentDate: start,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := e.pairings.Insert(ctx, p); err != nil {
			return out, fmt.Errorf("insert pairing: %w", err)
		}

		ch := newChannel(cycle, p, now)
		if err := e.channels.Insert(ctx, ch); err != nil {
			return out, fmt.Errorf("insert channel: %w", err)
		}
		out.events = append(out.events, channelEvent(EventChannelCreated, ch))

		for _, m := range group {
			st := models.MemberState{
				MemberID:           m,
				GroupID:            groupID,
				CurrentBuddyGroup:  cloneIDs(group),
				LastAssignmentDate: start,
				WasLateJoiner:      false,
				UpdatedAt:          now,
			}
			if err := e.states.Upsert(ctx, st); err != nil {
				return out, fmt.Errorf("upsert member state %s: %w", m, err)
			}
			msg := msgNewBuddies
			if late[m] {
				msg = msgLateJoinerCycle
			}
			out.events = append(out.events, notifyEvent(groupID, cycle.ID, m, msg))
		}
		out.pairings++
	}

	log.Info("buddy cycle created",
		zap.String("cycle_id", cycle.ID),
		zap.Int("active_members", len(members)),
		zap.Int("pairings", out.pairings),
		zap.Int("late_joiners", len(late)),
		zap.Int("attempts", res.Attempts))
	out.status = statusProcessed
	return out, nil
}

// lateJoiners flags members whose state says they were placed late, and
// members without any state who joined after the previous cycle began.
func (e *Engine) lateJoiners(ctx context.Context, groupID string, memberships []models.GroupMembership, prevStart time.Time) (map[string]bool, error) {
	states, err := e.states.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load member states: %w", err)
	}
	byMember := make(map[string]models.MemberState, len(states))
	for _, st := range states {
		byMember[st.MemberID] = st
	}

	late := make(map[string]bool)
	for _, m := range memberships {
		st, ok := byMember[m.MemberID]
		switch {
		case ok && st.WasLateJoiner:
			late[m.MemberID] = true
		case !ok && !prevStart.IsZero() && m.JoinedAt.After(prevStart):
			late[m.MemberID] = true
		}
	}
	return late, nil
}

// recentGroups returns the member sets of the group's pairings from the
// history window before start.
func (e *Engine) recentGroups(ctx context.Context, groupID string, start time.Time) ([][]string, error) {
	since := start.AddDate(0, 0, -7*e.historyWeeks)
	prev, err := e.pairings.ListSince(ctx, groupID, since)
	if err != nil {
		return nil, fmt.Errorf("load pairing history: %w", err)
	}
	history := make([][]string, 0, len(prev))
	for _, p := range prev {
		if !p.CycleStartDate.Before(start) {
			continue
		}
		history = append(history, p.Members)
	}
	return history, nil
}

func newChannel(cycle models.Cycle, p models.Pairing, now time.Time) models.Channel {
	return models.Channel{
		ID:             uuid.NewString(),
		GroupID:        p.GroupID,
		CycleID:        cycle.ID,
		PairingID:      p.ID,
		Members:        cloneIDs(p.Members),
		Name:           models.ChannelNameFor(len(p.Members)),
		Type:           p.Type,
		CycleStartDate: cycle.CycleStartDate,
		CycleEndDate:   cycle.CycleEndDate,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
