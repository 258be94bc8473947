package buddy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dalemusser/buddyhub/internal/domain/models"
	"go.uber.org/zap"
)

// ViolationKind names one kind of inconsistency found by Validate.
type ViolationKind string

const (
	ViolationNoCurrentCycle         ViolationKind = "no_current_cycle"
	ViolationInvalidPairingSize     ViolationKind = "invalid_pairing_size"
	ViolationDegeneratePairing      ViolationKind = "degenerate_pairing"
	ViolationDuplicateMember        ViolationKind = "duplicate_member"
	ViolationUncoveredMember        ViolationKind = "uncovered_member"
	ViolationInactiveMemberAssigned ViolationKind = "inactive_member_assigned"
	ViolationMissingMemberState     ViolationKind = "missing_member_state"
	ViolationBuddyGroupMismatch     ViolationKind = "buddy_group_mismatch"
	ViolationMissingChannel         ViolationKind = "missing_channel"
	ViolationChannelMismatch        ViolationKind = "channel_mismatch"
)

// Violation is one inconsistency in a group's persisted buddy state.
type Violation struct {
	Kind      ViolationKind `json:"kind"`
	GroupID   string        `json:"group_id"`
	MemberID  string        `json:"member_id,omitempty"`
	PairingID string        `json:"pairing_id,omitempty"`
	Detail    string        `json:"detail"`
}

// GroupReport is the validation result for one group.
type GroupReport struct {
	GroupID       string      `json:"group_id"`
	CycleID       string      `json:"cycle_id,omitempty"`
	ActiveMembers int         `json:"active_members"`
	Pairings      int         `json:"pairings"`
	Violations    []Violation `json:"violations"`
	// Error is set when the group's state could not be read.
	Error string `json:"error,omitempty"`
}

// ValidationReport aggregates GroupReports.
type ValidationReport struct {
	GroupsChecked  int           `json:"groups_checked"`
	Valid          bool          `json:"valid"`
	ViolationCount int           `json:"violation_count"`
	Groups         []GroupReport `json:"groups"`
}

// Validate checks the current cycle of one group (groupID != "") or of every
// active group. It only reads; nothing is repaired.
func (e *Engine) Validate(ctx context.Context, groupID string) (ValidationReport, error) {
	groupIDs, err := e.groupsToRun(ctx, groupID)
	if err != nil {
		return ValidationReport{}, err
	}

	report := ValidationReport{Valid: true, Groups: make([]GroupReport, 0, len(groupIDs))}
	for _, gid := range groupIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		gr := e.validateGroup(ctx, gid)
		report.GroupsChecked++
		report.ViolationCount += len(gr.Violations)
		if len(gr.Violations) > 0 || gr.Error != "" {
			report.Valid = false
		}
		report.Groups = append(report.Groups, gr)
	}

	e.log.Info("buddy integrity check finished",
		zap.Int("groups_checked", report.GroupsChecked),
		zap.Int("violations", report.ViolationCount),
		zap.Bool("valid", report.Valid))
	return report, nil
}

func (e *Engine) validateGroup(ctx context.Context, groupID string) GroupReport {
	gr := GroupReport{GroupID: groupID, Violations: []Violation{}}
	add := func(kind ViolationKind, memberID, pairingID, detail string) {
		gr.Violations = append(gr.Violations, Violation{
			Kind: kind, GroupID: groupID, MemberID: memberID, PairingID: pairingID, Detail: detail,
		})
	}
	fail := func(err error) GroupReport {
		e.log.Warn("integrity check could not read group state",
			zap.String("group_id", groupID), zap.Error(err))
		gr.Error = err.Error()
		return gr
	}

	memberships, err := e.dir.ActiveMembers(ctx, groupID)
	if err != nil {
		return fail(fmt.Errorf("load active members: %w", err))
	}
	active := make(map[string]bool, len(memberships))
	for _, m := range memberships {
		active[m.MemberID] = true
	}
	gr.ActiveMembers = len(active)

	cycle, err := e.cycles.Latest(ctx, groupID)
	if errors.Is(err, ErrNotFound) {
		if len(active) >= 2 {
			add(ViolationNoCurrentCycle, "", "", "group has active members but no buddy cycle")
		}
		return gr
	}
	if err != nil {
		return fail(fmt.Errorf("load current cycle: %w", err))
	}
	gr.CycleID = cycle.ID

	pairings, err := e.pairings.ListActiveByCycle(ctx, cycle.ID)
	if err != nil {
		return fail(fmt.Errorf("load pairings: %w", err))
	}
	gr.Pairings = len(pairings)

	states, err := e.states.ListByGroup(ctx, groupID)
	if err != nil {
		return fail(fmt.Errorf("load member states: %w", err))
	}
	stateOf := make(map[string]models.MemberState, len(states))
	for _, st := range states {
		stateOf[st.MemberID] = st
	}

	// Pairing shape and membership.
	assigned := make(map[string]string)
	for _, p := range pairings {
		n := len(p.Members)
		switch {
		case n == 1 && p.Degenerate:
			add(ViolationDegeneratePairing, p.Members[0], p.ID, "member is alone until the next cycle")
		case n < 2 || n > 3:
			add(ViolationInvalidPairingSize, "", p.ID, fmt.Sprintf("pairing has %d members", n))
		}

		for _, m := range p.Members {
			if other, dup := assigned[m]; dup {
				add(ViolationDuplicateMember, m, p.ID, "member also belongs to pairing "+other)
				continue
			}
			assigned[m] = p.ID

			if !active[m] {
				add(ViolationInactiveMemberAssigned, m, p.ID, "member is not active in the group")
				continue
			}
			st, ok := stateOf[m]
			switch {
			case !ok:
				add(ViolationMissingMemberState, m, p.ID, "no member state for assigned member")
			case !sameMembers(st.CurrentBuddyGroup, p.Members):
				add(ViolationBuddyGroupMismatch, m, p.ID, fmt.Sprintf(
					"member state lists [%s], pairing holds [%s]",
					joinSorted(st.CurrentBuddyGroup), joinSorted(p.Members)))
			}
		}

		ch, err := e.channels.GetByPairing(ctx, p.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			add(ViolationMissingChannel, "", p.ID, "pairing has no channel")
		case err != nil:
			return fail(fmt.Errorf("load channel for pairing %s: %w", p.ID, err))
		case !ch.IsActive:
			add(ViolationChannelMismatch, "", p.ID, "channel "+ch.ID+" is archived")
		case !sameMembers(ch.Members, p.Members):
			add(ViolationChannelMismatch, "", p.ID, fmt.Sprintf(
				"channel %s holds [%s], pairing holds [%s]",
				ch.ID, joinSorted(ch.Members), joinSorted(p.Members)))
		}
	}

	// Coverage: with two or more active members every one must be placed.
	if len(active) >= 2 {
		ids := make([]string, 0, len(active))
		for m := range active {
			ids = append(ids, m)
		}
		sort.Strings(ids)
		for _, m := range ids {
			if _, ok := assigned[m]; !ok {
				add(ViolationUncoveredMember, m, "", "active member is not in any buddy group")
			}
		}
	}
	return gr
}

func joinSorted(ids []string) string {
	sorted := cloneIDs(ids)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
