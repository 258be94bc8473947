// Package buddytest provides in-memory implementations of the buddy store,
// directory, and gateway interfaces for tests.
package buddytest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	"github.com/dalemusser/buddyhub/internal/domain/models"
	"github.com/google/uuid"
)

// Memory holds every record type behind one mutex. Reads return copies.
type Memory struct {
	mu sync.Mutex

	groups      map[string]models.Group
	memberships map[string]map[string]models.GroupMembership // group -> member
	cycles      []models.Cycle
	pairings    []models.Pairing
	channels    []models.Channel
	states      map[string]models.MemberState // group + "/" + member

	// FailPairingInsert, when set, is returned by PairingStore.Insert for the
	// given group id.
	FailPairingInsert map[string]error
}

// New returns an empty Memory.
func New() *Memory {
	return &Memory{
		groups:            make(map[string]models.Group),
		memberships:       make(map[string]map[string]models.GroupMembership),
		states:            make(map[string]models.MemberState),
		FailPairingInsert: make(map[string]error),
	}
}

// Stores returns the buddy.Stores view of m.
func (m *Memory) Stores() buddy.Stores {
	return buddy.Stores{
		Cycles:    cycleStore{m},
		Pairings:  pairingStore{m},
		Channels:  channelStore{m},
		States:    stateStore{m},
		Directory: directory{m},
	}
}

// AddGroup registers an active group.
func (m *Memory) AddGroup(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[id] = models.Group{ID: id, Name: id, Status: models.GroupActive}
	if m.memberships[id] == nil {
		m.memberships[id] = make(map[string]models.GroupMembership)
	}
}

// SetGroupStatus changes a group's status.
func (m *Memory) SetGroupStatus(id, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.groups[id]
	g.Status = status
	m.groups[id] = g
}

// AddMembers adds active members to a group, creating the group if needed.
func (m *Memory) AddMembers(groupID string, joinedAt time.Time, memberIDs ...string) {
	if _, ok := m.group(groupID); !ok {
		m.AddGroup(groupID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range memberIDs {
		m.memberships[groupID][id] = models.GroupMembership{
			ID:       uuid.NewString(),
			GroupID:  groupID,
			MemberID: id,
			Status:   models.MembershipActive,
			JoinedAt: joinedAt,
		}
	}
}

// Deactivate marks a member's membership inactive.
func (m *Memory) Deactivate(groupID, memberID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gm, ok := m.memberships[groupID][memberID]
	if !ok {
		return
	}
	gm.Status = models.MembershipInactive
	m.memberships[groupID][memberID] = gm
}

// Cycles returns every stored cycle of the group.
func (m *Memory) Cycles(groupID string) []models.Cycle {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Cycle
	for _, c := range m.cycles {
		if c.GroupID == groupID {
			out = append(out, c)
		}
	}
	return out
}

// ActivePairings returns the active pairings of the group's latest cycle.
func (m *Memory) ActivePairings(groupID string) []models.Pairing {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest, ok := m.latest(groupID)
	if !ok {
		return nil
	}
	var out []models.Pairing
	for _, p := range m.pairings {
		if p.CycleID == latest.ID && p.Status == models.PairingActive {
			out = append(out, clonePairing(p))
		}
	}
	return out
}

// AllPairings returns every pairing of the group.
func (m *Memory) AllPairings(groupID string) []models.Pairing {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Pairing
	for _, p := range m.pairings {
		if p.GroupID == groupID {
			out = append(out, clonePairing(p))
		}
	}
	return out
}

// Channels returns every channel of the group.
func (m *Memory) Channels(groupID string) []models.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Channel
	for _, ch := range m.channels {
		if ch.GroupID == groupID {
			out = append(out, cloneChannel(ch))
		}
	}
	return out
}

// State returns a member's state.
func (m *Memory) State(groupID, memberID string) (models.MemberState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[stateKey(groupID, memberID)]
	return cloneState(st), ok
}

// StateCount returns the number of member state rows of the group.
func (m *Memory) StateCount(groupID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, st := range m.states {
		if st.GroupID == groupID {
			n++
		}
	}
	return n
}

// PutPairing stores p verbatim, for building corrupted fixtures.
func (m *Memory) PutPairing(p models.Pairing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.pairings {
		if m.pairings[i].ID == p.ID {
			m.pairings[i] = clonePairing(p)
			return
		}
	}
	m.pairings = append(m.pairings, clonePairing(p))
}

// PutState stores st verbatim, for building corrupted fixtures.
func (m *Memory) PutState(st models.MemberState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[stateKey(st.GroupID, st.MemberID)] = cloneState(st)
}

func (m *Memory) group(id string) (models.Group, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	return g, ok
}

func (m *Memory) latest(groupID string) (models.Cycle, bool) {
	var best models.Cycle
	found := false
	for _, c := range m.cycles {
		if c.GroupID != groupID {
			continue
		}
		if !found || c.CycleStartDate.After(best.CycleStartDate) {
			best, found = c, true
		}
	}
	return best, found
}

// cycleStore

type cycleStore struct{ m *Memory }

func (s cycleStore) Exists(_ context.Context, groupID string, start time.Time) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, c := range s.m.cycles {
		if c.GroupID == groupID && c.CycleStartDate.Equal(start) {
			return true, nil
		}
	}
	return false, nil
}

func (s cycleStore) CreateIfAbsent(_ context.Context, c models.Cycle) (models.Cycle, bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.cycles {
		if existing.GroupID == c.GroupID && existing.CycleStartDate.Equal(c.CycleStartDate) {
			return existing, false, nil
		}
	}
	s.m.cycles = append(s.m.cycles, c)
	return c, true, nil
}

func (s cycleStore) Latest(_ context.Context, groupID string) (models.Cycle, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.latest(groupID)
	if !ok {
		return models.Cycle{}, buddy.ErrNotFound
	}
	return c, nil
}

// pairingStore

type pairingStore struct{ m *Memory }

func (s pairingStore) Insert(_ context.Context, p models.Pairing) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.FailPairingInsert[p.GroupID]; err != nil {
		return err
	}
	s.m.pairings = append(s.m.pairings, clonePairing(p))
	return nil
}

func (s pairingStore) ListActiveByCycle(_ context.Context, cycleID string) ([]models.Pairing, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []models.Pairing
	for _, p := range s.m.pairings {
		if p.CycleID == cycleID && p.Status == models.PairingActive {
			out = append(out, clonePairing(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s pairingStore) ListSince(_ context.Context, groupID string, since time.Time) ([]models.Pairing, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []models.Pairing
	for _, p := range s.m.pairings {
		if p.GroupID == groupID && !p.CycleStartDate.Before(since) {
			out = append(out, clonePairing(p))
		}
	}
	return out, nil
}

func (s pairingStore) Update(_ context.Context, p models.Pairing) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i := range s.m.pairings {
		if s.m.pairings[i].ID == p.ID {
			cur := &s.m.pairings[i]
			cur.Members = append([]string(nil), p.Members...)
			cur.Type = p.Type
			cur.Degenerate = p.Degenerate
			cur.LastAssignmentDate = p.LastAssignmentDate
			cur.UpdatedAt = p.UpdatedAt
			return nil
		}
	}
	return buddy.ErrNotFound
}

func (s pairingStore) Supersede(_ context.Context, id string, at time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i := range s.m.pairings {
		if s.m.pairings[i].ID == id {
			t := at
			s.m.pairings[i].Status = models.PairingSuperseded
			s.m.pairings[i].SupersededAt = &t
			s.m.pairings[i].UpdatedAt = at
			return nil
		}
	}
	return buddy.ErrNotFound
}

// channelStore

type channelStore struct{ m *Memory }

func (s channelStore) Insert(_ context.Context, ch models.Channel) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.channels = append(s.m.channels, cloneChannel(ch))
	return nil
}

func (s channelStore) ArchiveActive(_ context.Context, groupID string, at time.Time) ([]string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var ids []string
	for i := range s.m.channels {
		ch := &s.m.channels[i]
		if ch.GroupID == groupID && ch.IsActive {
			ch.IsActive = false
			ch.UpdatedAt = at
			ids = append(ids, ch.ID)
		}
	}
	return ids, nil
}

func (s channelStore) GetByPairing(_ context.Context, pairingID string) (models.Channel, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, ch := range s.m.channels {
		if ch.PairingID == pairingID {
			return cloneChannel(ch), nil
		}
	}
	return models.Channel{}, buddy.ErrNotFound
}

func (s channelStore) Update(_ context.Context, ch models.Channel) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i := range s.m.channels {
		if s.m.channels[i].ID == ch.ID {
			s.m.channels[i] = cloneChannel(ch)
			return nil
		}
	}
	return buddy.ErrNotFound
}

// stateStore

type stateStore struct{ m *Memory }

func (s stateStore) Get(_ context.Context, groupID, memberID string) (models.MemberState, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	st, ok := s.m.states[stateKey(groupID, memberID)]
	if !ok {
		return models.MemberState{}, buddy.ErrNotFound
	}
	return cloneState(st), nil
}

func (s stateStore) ListByGroup(_ context.Context, groupID string) ([]models.MemberState, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []models.MemberState
	for _, st := range s.m.states {
		if st.GroupID == groupID {
			out = append(out, cloneState(st))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func (s stateStore) Upsert(_ context.Context, st models.MemberState) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	key := stateKey(st.GroupID, st.MemberID)
	if existing, ok := s.m.states[key]; ok && st.ID == "" {
		st.ID = existing.ID
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	s.m.states[key] = cloneState(st)
	return nil
}

// directory

type directory struct{ m *Memory }

func (d directory) ActiveGroupIDs(_ context.Context) ([]string, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	var ids []string
	for id, g := range d.m.groups {
		if g.Status == models.GroupActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (d directory) GetGroup(_ context.Context, groupID string) (models.Group, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	g, ok := d.m.groups[groupID]
	if !ok {
		return models.Group{}, buddy.ErrNotFound
	}
	return g, nil
}

func (d directory) ActiveMembers(_ context.Context, groupID string) ([]models.GroupMembership, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	var out []models.GroupMembership
	for _, gm := range d.m.memberships[groupID] {
		if gm.Status == models.MembershipActive {
			out = append(out, gm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func stateKey(groupID, memberID string) string { return groupID + "/" + memberID }

func clonePairing(p models.Pairing) models.Pairing {
	p.Members = append([]string(nil), p.Members...)
	return p
}

func cloneChannel(ch models.Channel) models.Channel {
	ch.Members = append([]string(nil), ch.Members...)
	return ch
}

func cloneState(st models.MemberState) models.MemberState {
	st.CurrentBuddyGroup = append([]string(nil), st.CurrentBuddyGroup...)
	return st
}
