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
)

// Repair operation names.
const (
	OpAssignMidCycle = "assign_mid_cycle"
	OpHandleLeave    = "handle_leave"
)

// Reasons a repair did nothing.
const (
	ReasonNoCurrentCycle  = "no_current_cycle"
	ReasonNoPairings      = "no_pairings"
	ReasonAlreadyAssigned = "already_assigned"
	ReasonNotAssigned     = "not_assigned"
)

// RepairOutcome describes what a mid-cycle repair did. When Applied is false
// Reason names the missing relationship state and no pairing or channel was
// changed. A no-op leave still clears the leaver's own CurrentBuddyGroup.
type RepairOutcome struct {
	Operation string `json:"operation"`
	GroupID   string `json:"group_id"`
	MemberID  string `json:"member_id"`
	Applied   bool   `json:"applied"`
	Reason    string `json:"reason,omitempty"`
	CycleID   string `json:"cycle_id,omitempty"`

	// PairingID and Members describe the buddy group the member ended up in
	// (join) or the group the remaining member ended up in (leave).
	PairingID string   `json:"pairing_id,omitempty"`
	Members   []string `json:"members,omitempty"`

	// Split is set when every group was a trio and one was split into two
	// pairs to make room.
	Split bool `json:"split,omitempty"`
	// Merged is set when a leave left a single member who was moved into
	// another group.
	Merged bool `json:"merged,omitempty"`
	// Degenerate is set when a leave left a single member with no group to
	// merge into.
	Degenerate bool `json:"degenerate,omitempty"`

	Events []Event `json:"-"`
}

// AssignMidCycle attaches a member who became active between cycle
// boundaries to a buddy group of the group's current cycle. The joiner ends up
// in exactly one buddy group and no other member's group changes, with one
// exception: when every group is already a trio, the chosen trio's last member
// is moved into a new pair with the joiner so that no group exceeds three.
// RepairOutcome.Split reports that case.
func (e *Engine) AssignMidCycle(ctx context.Context, memberID, groupID string) (RepairOutcome, error) {
	if memberID == "" || groupID == "" {
		return RepairOutcome{}, fmt.Errorf("member_id and group_id are required: %w", ErrInvalidInput)
	}
	unlock, err := e.lockGroup(ctx, groupID)
	if err != nil {
		return RepairOutcome{}, fmt.Errorf("acquire group lock: %w", err)
	}
	defer unlock()

	date := dateOnly(e.now())
	var out RepairOutcome
	err = e.tx.Run(ctx, func(ctx context.Context) error {
		out = RepairOutcome{Operation: OpAssignMidCycle, GroupID: groupID, MemberID: memberID}

		cycle, err := e.cycles.Latest(ctx, groupID)
		if errors.Is(err, ErrNotFound) {
			out.Reason = ReasonNoCurrentCycle
			return nil
		}
		if err != nil {
			return fmt.Errorf("load current cycle: %w", err)
		}
		out.CycleID = cycle.ID

		pairings, err := e.pairings.ListActiveByCycle(ctx, cycle.ID)
		if err != nil {
			return fmt.Errorf("load pairings: %w", err)
		}
		for _, p := range pairings {
			if p.HasMember(memberID) {
				out.Reason = ReasonAlreadyAssigned
				out.PairingID = p.ID
				out.Members = cloneIDs(p.Members)
				return nil
			}
		}
		if len(pairings) == 0 {
			out.Reason = ReasonNoPairings
			return nil
		}

		joined, err := e.place(ctx, cycle, pairings, memberID, date, &out)
		if err != nil {
			return err
		}
		if err := e.states.Upsert(ctx, models.MemberState{
			MemberID:           memberID,
			GroupID:            groupID,
			CurrentBuddyGroup:  cloneIDs(joined.Members),
			LastAssignmentDate: date,
			WasLateJoiner:      true,
			UpdatedAt:          e.now().UTC(),
		}); err != nil {
			return fmt.Errorf("upsert joiner state: %w", err)
		}
		out.Events = append(out.Events, notifyEvent(groupID, cycle.ID, memberID, msgJoinedMidCycle))
		out.PairingID = joined.ID
		out.Members = cloneIDs(joined.Members)
		out.Applied = true
		return nil
	})
	if err != nil {
		e.log.Error("mid-cycle assignment failed",
			zap.String("group_id", groupID), zap.String("member_id", memberID), zap.Error(err))
		return RepairOutcome{}, err
	}

	e.logRepair(out)
	e.dispatch(ctx, out.Events)
	return out, nil
}

// HandleLeave removes a member who became inactive from their buddy group.
// A group reduced to one member is merged into another group of the cycle,
// or kept as a degenerate one-member group when there is no other group.
func (e *Engine) HandleLeave(ctx context.Context, memberID, groupID string) (RepairOutcome, error) {
	if memberID == "" || groupID == "" {
		return RepairOutcome{}, fmt.Errorf("member_id and group_id are required: %w", ErrInvalidInput)
	}
	unlock, err := e.lockGroup(ctx, groupID)
	if err != nil {
		return RepairOutcome{}, fmt.Errorf("acquire group lock: %w", err)
	}
	defer unlock()

	date := dateOnly(e.now())
	var out RepairOutcome
	err = e.tx.Run(ctx, func(ctx context.Context) error {
		out = RepairOutcome{Operation: OpHandleLeave, GroupID: groupID, MemberID: memberID}

		cycle, err := e.cycles.Latest(ctx, groupID)
		if errors.Is(err, ErrNotFound) {
			out.Reason = ReasonNoCurrentCycle
			return e.clearState(ctx, groupID, memberID)
		}
		if err != nil {
			return fmt.Errorf("load current cycle: %w", err)
		}
		out.CycleID = cycle.ID

		pairings, err := e.pairings.ListActiveByCycle(ctx, cycle.ID)
		if err != nil {
			return fmt.Errorf("load pairings: %w", err)
		}
		var (
			current models.Pairing
			found   bool
			others  []models.Pairing
		)
		for _, p := range pairings {
			if !found && p.HasMember(memberID) {
				current, found = p, true
				continue
			}
			others = append(others, p)
		}
		if !found {
			out.Reason = ReasonNotAssigned
			return e.clearState(ctx, groupID, memberID)
		}

		if err := e.leavePairing(ctx, cycle, current, others, memberID, date, &out); err != nil {
			return err
		}
		if err := e.clearState(ctx, groupID, memberID); err != nil {
			return err
		}
		out.Applied = true
		return nil
	})
	if err != nil {
		e.log.Error("mid-cycle leave failed",
			zap.String("group_id", groupID), zap.String("member_id", memberID), zap.Error(err))
		return RepairOutcome{}, err
	}

	e.logRepair(out)
	e.dispatch(ctx, out.Events)
	return out, nil
}

func (e *Engine) leavePairing(ctx context.Context, cycle models.Cycle, p models.Pairing, others []models.Pairing, memberID string, date time.Time, out *RepairOutcome) error {
	remaining := make([]string, 0, len(p.Members))
	for _, m := range p.Members {
		if m != memberID {
			remaining = append(remaining, m)
		}
	}

	switch {
	case len(remaining) >= 2:
		p.Members = remaining
		p.LastAssignmentDate = date
		if err := e.rewritePairing(ctx, p, out); err != nil {
			return err
		}
		for _, m := range remaining {
			if err := e.setBuddyGroup(ctx, p.GroupID, m, remaining, time.Time{}); err != nil {
				return err
			}
			out.Events = append(out.Events, notifyEvent(p.GroupID, cycle.ID, m, msgBuddyLeft))
		}
		out.PairingID = p.ID
		out.Members = cloneIDs(remaining)
		return nil

	case len(remaining) == 1 && len(others) > 0:
		stray := remaining[0]
		if err := e.retirePairing(ctx, p, out); err != nil {
			return err
		}
		target, err := e.place(ctx, cycle, others, stray, date, out)
		if err != nil {
			return err
		}
		if err := e.setBuddyGroup(ctx, p.GroupID, stray, target.Members, date); err != nil {
			return err
		}
		out.Events = append(out.Events, notifyEvent(p.GroupID, cycle.ID, stray, msgRegrouped))
		out.PairingID = target.ID
		out.Members = cloneIDs(target.Members)
		out.Merged = true
		return nil

	case len(remaining) == 1:
		stray := remaining[0]
		p.Members = remaining
		p.Degenerate = true
		p.LastAssignmentDate = date
		if err := e.rewritePairing(ctx, p, out); err != nil {
			return err
		}
		st, err := e.stateFor(ctx, p.GroupID, stray)
		if err != nil {
			return err
		}
		st.CurrentBuddyGroup = cloneIDs(remaining)
		st.WasLateJoiner = true
		st.UpdatedAt = e.now().UTC()
		if err := e.states.Upsert(ctx, st); err != nil {
			return fmt.Errorf("upsert member state %s: %w", stray, err)
		}
		out.Events = append(out.Events, notifyEvent(p.GroupID, cycle.ID, stray, msgWaitingForBuddy))
		out.PairingID = p.ID
		out.Members = cloneIDs(remaining)
		out.Degenerate = true
		return nil

	default:
		// The member was alone in a degenerate group.
		return e.retirePairing(ctx, p, out)
	}
}

// place puts memberID into one of the candidate pairings.
//
// The smallest candidate is chosen, ties going to the oldest
// LastAssignmentDate and then the lowest id. A candidate with fewer than three
// members simply gains memberID. When the chosen candidate is already a trio,
// its last member is split off into a new pair with memberID so that no group
// grows past three. The caller owns memberID's own MemberState.
func (e *Engine) place(ctx context.Context, cycle models.Cycle, candidates []models.Pairing, memberID string, date time.Time, out *RepairOutcome) (models.Pairing, error) {
	target := smallestPairing(candidates)

	if len(target.Members) < 3 {
		existing := cloneIDs(target.Members)
		target.Members = append(cloneIDs(target.Members), memberID)
		target.Degenerate = false
		target.LastAssignmentDate = date
		if err := e.rewritePairing(ctx, target, out); err != nil {
			return models.Pairing{}, err
		}
		for _, m := range existing {
			if err := e.setBuddyGroup(ctx, target.GroupID, m, target.Members, time.Time{}); err != nil {
				return models.Pairing{}, err
			}
			out.Events = append(out.Events, notifyEvent(target.GroupID, cycle.ID, m, msgBuddyJoined))
		}
		return target, nil
	}

	moved := target.Members[len(target.Members)-1]
	target.Members = cloneIDs(target.Members[:len(target.Members)-1])
	target.LastAssignmentDate = date
	if err := e.rewritePairing(ctx, target, out); err != nil {
		return models.Pairing{}, err
	}
	for _, m := range target.Members {
		if err := e.setBuddyGroup(ctx, target.GroupID, m, target.Members, time.Time{}); err != nil {
			return models.Pairing{}, err
		}
		out.Events = append(out.Events, notifyEvent(target.GroupID, cycle.ID, m, msgRegrouped))
	}

	now := e.now().UTC()
	p := models.Pairing{
		ID:                 uuid.NewString(),
		CycleID:            cycle.ID,
		GroupID:            cycle.GroupID,
		CycleStartDate:     cycle.CycleStartDate,
		Members:            []string{moved, memberID},
		Type:               models.PairingTypePair,
		Status:             models.PairingActive,
		LastAssignmentDate: date,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := e.pairings.Insert(ctx, p); err != nil {
		return models.Pairing{}, fmt.Errorf("insert split pairing: %w", err)
	}
	ch := newChannel(cycle, p, now)
	if err := e.channels.Insert(ctx, ch); err != nil {
		return models.Pairing{}, fmt.Errorf("insert split channel: %w", err)
	}
	out.Events = append(out.Events, channelEvent(EventChannelCreated, ch))

	if err := e.setBuddyGroup(ctx, cycle.GroupID, moved, p.Members, date); err != nil {
		return models.Pairing{}, err
	}
	out.Events = append(out.Events, notifyEvent(cycle.GroupID, cycle.ID, moved, msgRegrouped))
	out.Split = true
	return p, nil
}

// rewritePairing stores p's new membership and mirrors it onto its channel.
func (e *Engine) rewritePairing(ctx context.Context, p models.Pairing, out *RepairOutcome) error {
	now := e.now().UTC()
	p.Type = models.PairingTypeFor(len(p.Members))
	p.UpdatedAt = now
	if err := e.pairings.Update(ctx, p); err != nil {
		return fmt.Errorf("update pairing %s: %w", p.ID, err)
	}

	ch, err := e.channels.GetByPairing(ctx, p.ID)
	if errors.Is(err, ErrNotFound) {
		e.log.Warn("pairing has no channel; channel membership not updated",
			zap.String("group_id", p.GroupID), zap.String("pairing_id", p.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load channel for pairing %s: %w", p.ID, err)
	}
	ch.Members = cloneIDs(p.Members)
	ch.Name = models.ChannelNameFor(len(p.Members))
	ch.Type = p.Type
	ch.UpdatedAt = now
	if err := e.channels.Update(ctx, ch); err != nil {
		return fmt.Errorf("update channel %s: %w", ch.ID, err)
	}
	out.Events = append(out.Events, channelEvent(EventChannelUpdated, ch))
	return nil
}

// retirePairing supersedes p and archives its channel.
func (e *Engine) retirePairing(ctx context.Context, p models.Pairing, out *RepairOutcome) error {
	now := e.now().UTC()
	if err := e.pairings.Supersede(ctx, p.ID, now); err != nil {
		return fmt.Errorf("supersede pairing %s: %w", p.ID, err)
	}
	ch, err := e.channels.GetByPairing(ctx, p.ID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load channel for pairing %s: %w", p.ID, err)
	}
	ch.IsActive = false
	ch.UpdatedAt = now
	if err := e.channels.Update(ctx, ch); err != nil {
		return fmt.Errorf("archive channel %s: %w", ch.ID, err)
	}
	out.Events = append(out.Events, channelEvent(EventChannelArchived, ch))
	return nil
}

// setBuddyGroup points a member's state at group. A non-zero date also moves
// the member's last assignment date.
func (e *Engine) setBuddyGroup(ctx context.Context, groupID, memberID string, group []string, date time.Time) error {
	st, err := e.stateFor(ctx, groupID, memberID)
	if err != nil {
		return err
	}
	st.CurrentBuddyGroup = cloneIDs(group)
	if !date.IsZero() {
		st.LastAssignmentDate = date
	}
	st.UpdatedAt = e.now().UTC()
	if err := e.states.Upsert(ctx, st); err != nil {
		return fmt.Errorf("upsert member state %s: %w", memberID, err)
	}
	return nil
}

// clearState drops the member's association with their buddy group. Members
// without a state row are left alone.
func (e *Engine) clearState(ctx context.Context, groupID, memberID string) error {
	st, err := e.states.Get(ctx, groupID, memberID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load member state %s: %w", memberID, err)
	}
	if len(st.CurrentBuddyGroup) == 0 {
		return nil
	}
	st.CurrentBuddyGroup = nil
	st.UpdatedAt = e.now().UTC()
	if err := e.states.Upsert(ctx, st); err != nil {
		return fmt.Errorf("clear member state %s: %w", memberID, err)
	}
	return nil
}

// stateFor loads a member's state, or a fresh one if none is stored yet.
func (e *Engine) stateFor(ctx context.Context, groupID, memberID string) (models.MemberState, error) {
	st, err := e.states.Get(ctx, groupID, memberID)
	if errors.Is(err, ErrNotFound) {
		return models.MemberState{MemberID: memberID, GroupID: groupID}, nil
	}
	if err != nil {
		return models.MemberState{}, fmt.Errorf("load member state %s: %w", memberID, err)
	}
	return st, nil
}

func (e *Engine) logRepair(out RepairOutcome) {
	fields := []zap.Field{
		zap.String("operation", out.Operation),
		zap.String("group_id", out.GroupID),
		zap.String("member_id", out.MemberID),
	}
	if !out.Applied {
		e.log.Info("mid-cycle repair was a no-op", append(fields, zap.String("reason", out.Reason))...)
		return
	}
	e.log.Info("mid-cycle repair applied", append(fields,
		zap.String("pairing_id", out.PairingID),
		zap.Strings("members", out.Members),
		zap.Bool("split", out.Split),
		zap.Bool("merged", out.Merged),
		zap.Bool("degenerate", out.Degenerate))...)
}

// smallestPairing picks the smallest pairing, then the one whose membership
// changed longest ago, then the lowest id.
func smallestPairing(ps []models.Pairing) models.Pairing {
	sorted := append([]models.Pairing(nil), ps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if len(a.Members) != len(b.Members) {
			return len(a.Members) < len(b.Members)
		}
		if !a.LastAssignmentDate.Equal(b.LastAssignmentDate) {
			return a.LastAssignmentDate.Before(b.LastAssignmentDate)
		}
		return a.ID < b.ID
	})
	return sorted[0]
}
