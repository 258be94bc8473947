package buddy_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	"github.com/dalemusser/buddyhub/internal/domain/models"
	"github.com/stretchr/testify/require"
)

func findPairing(ps []models.Pairing, memberID string) (models.Pairing, bool) {
	for _, p := range ps {
		if p.HasMember(memberID) {
			return p, true
		}
	}
	return models.Pairing{}, false
}

func requireValid(t *testing.T, h *harness, groupID string) {
	t.Helper()
	rep, err := h.engine.Validate(context.Background(), groupID)
	require.NoError(t, err)
	require.True(t, rep.Valid, "violations: %+v", rep.Groups)
}

func TestAssignMidCycle_JoinsSmallestGroup(t *testing.T) {
	h := newHarness(t, buddy.Options{})
	h.mem.AddMembers("g1", longAgo, "A", "B", "C", "D", "E")
	h.run(t, "g1")

	before := h.mem.ActivePairings("g1")
	var pair, trio models.Pairing
	for _, p := range before {
		if len(p.Members) == 2 {
			pair = p
		} else {
			trio = p
		}
	}

	h.clock.Advance(3 * 24 * time.Hour)
	joinDate := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)
	h.mem.AddMembers("g1", h.clock.Now(), "F")
	h.gw.Reset()

	out, err := h.engine.AssignMidCycle(context.Background(), "F", "g1")
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.False(t, out.Split)
	require.Equal(t, pair.ID, out.PairingID)
	require.ElementsMatch(t, append(pair.Members, "F"), out.Members)

	after := h.mem.ActivePairings("g1")
	require.Len(t, after, 2)
	got, ok := findPairing(after, "F")
	require.True(t, ok)
	require.Equal(t, pair.ID, got.ID)
	require.Equal(t, models.PairingTypeTrio, got.Type)

	// The other group is untouched.
	untouched, ok := findPairing(after, trio.Members[0])
	require.True(t, ok)
	require.Equal(t, trio.Members, untouched.Members)
	for _, m := range trio.Members {
		st, _ := h.mem.State("g1", m)
		require.ElementsMatch(t, trio.Members, st.CurrentBuddyGroup)
	}

	joiner, ok := h.mem.State("g1", "F")
	require.True(t, ok)
	require.True(t, joiner.WasLateJoiner)
	require.Equal(t, joinDate, joiner.LastAssignmentDate)
	require.ElementsMatch(t, got.Members, joiner.CurrentBuddyGroup)

	for _, m := range pair.Members {
		st, _ := h.mem.State("g1", m)
		require.ElementsMatch(t, got.Members, st.CurrentBuddyGroup)
		require.Equal(t, testCycleStart, st.LastAssignmentDate)
	}

	for _, ch := range h.mem.Channels("g1") {
		if ch.PairingID == pair.ID {
			require.ElementsMatch(t, got.Members, ch.Members)
			require.Equal(t, models.ChannelNameTrio, ch.Name)
		}
	}
	require.Equal(t, 1, h.gw.Count(buddy.EventChannelUpdated))
	require.Equal(t, 3, h.gw.Count(buddy.EventNotify))
	requireValid(t, h, "g1")
}

func TestAssignMidCycle_SplitsTrioWhenAllFull(t *testing.T) {
	h := newHarness(t, buddy.Options{})
	h.mem.AddMembers("g1", longAgo, "A", "B", "C")
	h.run(t, "g1")
	trio := h.mem.ActivePairings("g1")[0]
	moved := trio.Members[2]

	h.mem.AddMembers("g1", h.clock.Now(), "D")
	out, err := h.engine.AssignMidCycle(context.Background(), "D", "g1")
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.True(t, out.Split)
	require.ElementsMatch(t, []string{moved, "D"}, out.Members)

	after := h.mem.ActivePairings("g1")
	require.Equal(t, []int{2, 2}, pairingSizes(after))
	kept, ok := findPairing(after, trio.Members[0])
	require.True(t, ok)
	require.Equal(t, trio.ID, kept.ID)
	require.Equal(t, trio.Members[:2], kept.Members)

	st, _ := h.mem.State("g1", moved)
	require.ElementsMatch(t, []string{moved, "D"}, st.CurrentBuddyGroup)
	require.Len(t, h.mem.Channels("g1"), 2)
	requireValid(t, h, "g1")
}

func TestAssignMidCycle_NoOps(t *testing.T) {
	h := newHarness(t, buddy.Options{})
	h.mem.AddMembers("g1", longAgo, "A", "B")

	out, err := h.engine.AssignMidCycle(context.Background(), "C", "g1")
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Equal(t, buddy.ReasonNoCurrentCycle, out.Reason)

	h.run(t, "g1")
	out, err = h.engine.AssignMidCycle(context.Background(), "A", "g1")
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Equal(t, buddy.ReasonAlreadyAssigned, out.Reason)

	h.mem.AddMembers("g2", longAgo, "X")
	h.run(t, "g2")
	out, err = h.engine.AssignMidCycle(context.Background(), "Y", "g2")
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Equal(t, buddy.ReasonNoPairings, out.Reason)

	_, err = h.engine.AssignMidCycle(context.Background(), "", "g1")
	require.ErrorIs(t, err, buddy.ErrInvalidInput)
}

func TestHandleLeave_LastPairLeavesDegenerateSingleton(t *testing.T) {
	h := newHarness(t, buddy.Options{})
	h.mem.AddMembers("g1", longAgo, "A", "B")
	h.run(t, "g1")

	h.mem.Deactivate("g1", "A")
	out, err := h.engine.HandleLeave(context.Background(), "A", "g1")
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.True(t, out.Degenerate)
	require.Equal(t, []string{"B"}, out.Members)

	ps := h.mem.ActivePairings("g1")
	require.Len(t, ps, 1)
	require.True(t, ps[0].Degenerate)
	require.Equal(t, []string{"B"}, ps[0].Members)

	b, _ := h.mem.State("g1", "B")
	require.True(t, b.WasLateJoiner)
	require.Equal(t, []string{"B"}, b.CurrentBuddyGroup)

	a, ok := h.mem.State("g1", "A")
	require.True(t, ok, "leaving member keeps its row")
	require.Empty(t, a.CurrentBuddyGroup)

	rep, err := h.engine.Validate(context.Background(), "g1")
	require.NoError(t, err)
	require.False(t, rep.Valid)
	require.Len(t, rep.Groups[0].Violations, 1)
	require.Equal(t, buddy.ViolationDegeneratePairing, rep.Groups[0].Violations[0].Kind)
}

func TestHandleLeave_SingletonMergesIntoSmallestGroup(t *testing.T) {
	h := newHarness(t, buddy.Options{})
	h.mem.AddMembers("g1", longAgo, "A", "B", "C", "D", "E", "F", "G")
	h.run(t, "g1")

	// Seven members: two pairs and a trio.
	before := h.mem.ActivePairings("g1")
	require.Equal(t, []int{2, 2, 3}, pairingSizes(before))
	var left, other models.Pairing
	for _, p := range before {
		if len(p.Members) != 2 {
			continue
		}
		if left.ID == "" {
			left = p
		} else {
			other = p
		}
	}
	leaver, stray := left.Members[0], left.Members[1]

	h.mem.Deactivate("g1", leaver)
	h.gw.Reset()
	out, err := h.engine.HandleLeave(context.Background(), leaver, "g1")
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.True(t, out.Merged)
	require.Equal(t, other.ID, out.PairingID)
	require.ElementsMatch(t, append(other.Members, stray), out.Members)

	after := h.mem.ActivePairings("g1")
	require.Equal(t, []int{3, 3}, pairingSizes(after))
	_, stillThere := findPairing(after, leaver)
	require.False(t, stillThere)

	for _, p := range h.mem.AllPairings("g1") {
		if p.ID == left.ID {
			require.Equal(t, models.PairingSuperseded, p.Status)
			require.NotNil(t, p.SupersededAt)
		}
	}
	for _, ch := range h.mem.Channels("g1") {
		if ch.PairingID == left.ID {
			require.False(t, ch.IsActive)
		}
	}
	require.Equal(t, 1, h.gw.Count(buddy.EventChannelArchived))
	requireValid(t, h, "g1")
}

func TestHandleLeave_TrioShrinksToPair(t *testing.T) {
	h := newHarness(t, buddy.Options{})
	h.mem.AddMembers("g1", longAgo, "A", "B", "C")
	h.run(t, "g1")

	h.mem.Deactivate("g1", "B")
	out, err := h.engine.HandleLeave(context.Background(), "B", "g1")
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.ElementsMatch(t, []string{"A", "C"}, out.Members)

	ps := h.mem.ActivePairings("g1")
	require.Len(t, ps, 1)
	require.Equal(t, models.PairingTypePair, ps[0].Type)
	chs := h.mem.Channels("g1")
	require.Len(t, chs, 1)
	require.Equal(t, models.ChannelNamePair, chs[0].Name)
	require.ElementsMatch(t, []string{"A", "C"}, chs[0].Members)

	for _, m := range []string{"A", "C"} {
		st, ok := h.mem.State("g1", m)
		require.True(t, ok, "state for %s", m)
		require.ElementsMatch(t, []string{"A", "C"}, st.CurrentBuddyGroup, m)
		require.Equal(t, testCycleStart, st.LastAssignmentDate, m)
	}
	left, ok := h.mem.State("g1", "B")
	require.True(t, ok)
	require.Empty(t, left.CurrentBuddyGroup)
	requireValid(t, h, "g1")
}

func TestHandleLeave_NoOps(t *testing.T) {
	h := newHarness(t, buddy.Options{})
	h.mem.AddMembers("g1", longAgo, "A", "B")

	out, err := h.engine.HandleLeave(context.Background(), "A", "g1")
	require.NoError(t, err)
	require.Equal(t, buddy.ReasonNoCurrentCycle, out.Reason)

	h.run(t, "g1")
	out, err = h.engine.HandleLeave(context.Background(), "Z", "g1")
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Equal(t, buddy.ReasonNotAssigned, out.Reason)

	_, err = h.engine.HandleLeave(context.Background(), "A", "")
	require.ErrorIs(t, err, buddy.ErrInvalidInput)
}

func TestHandleLeave_NoOpClearsStaleState(t *testing.T) {
	h := newHarness(t, buddy.Options{})
	h.mem.AddMembers("g1", longAgo, "A", "B")
	h.run(t, "g1")
	before := h.mem.ActivePairings("g1")

	h.mem.PutState(models.MemberState{
		MemberID:          "Z",
		GroupID:           "g1",
		CurrentBuddyGroup: []string{"Z", "Y"},
	})
	h.gw.Reset()
	out, err := h.engine.HandleLeave(context.Background(), "Z", "g1")
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Equal(t, buddy.ReasonNotAssigned, out.Reason)

	st, ok := h.mem.State("g1", "Z")
	require.True(t, ok)
	require.Empty(t, st.CurrentBuddyGroup)
	require.Equal(t, before, h.mem.ActivePairings("g1"))
	require.Empty(t, h.gw.Events())
}

func TestHandleLeave_SingletonIsPrioritizedNextCycle(t *testing.T) {
	h := newHarness(t, buddy.Options{})
	h.mem.AddMembers("g1", longAgo, "A", "B")
	h.run(t, "g1")
	h.mem.Deactivate("g1", "A")
	_, err := h.engine.HandleLeave(context.Background(), "A", "g1")
	require.NoError(t, err)

	h.mem.AddMembers("g1", longAgo, "C", "D")
	h.clock.Advance(14 * 24 * time.Hour)
	h.gw.Reset()
	h.run(t, "g1")

	msgs := map[string]string{}
	for _, ev := range h.gw.Events() {
		if ev.Kind == buddy.EventNotify {
			msgs[ev.MemberID] = ev.Message
		}
	}
	require.Len(t, msgs, 3)
	require.NotEqual(t, msgs["C"], msgs["B"], "B was flagged as a late joiner")
	requireValid(t, h, "g1")
}
