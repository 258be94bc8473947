// Package buddy assigns the members of each group to accountability buddy
// groups (pairs or trios) once per bi-weekly cycle, repairs those assignments
// when members join or leave mid-cycle, and checks the persisted state for
// consistency.
//
// The package owns no storage. Everything it reads and writes goes through the
// interfaces below; internal/app/store provides the Mongo implementations and
// buddytest provides in-memory ones.
package buddy

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/buddyhub/internal/domain/models"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for requests with missing or malformed ids.
	ErrInvalidInput = errors.New("invalid input")
)

// CycleStore persists Cycle records.
type CycleStore interface {
	// Exists reports whether a cycle for (groupID, start) is already stored.
	Exists(ctx context.Context, groupID string, start time.Time) (bool, error)
	// CreateIfAbsent atomically inserts c unless a cycle for the same
	// (group, start) exists. It returns the stored cycle and whether it was
	// created by this call.
	CreateIfAbsent(ctx context.Context, c models.Cycle) (models.Cycle, bool, error)
	// Latest returns the group's cycle with the greatest start date.
	Latest(ctx context.Context, groupID string) (models.Cycle, error)
}

// PairingStore persists Pairing records and serves the pairing history.
type PairingStore interface {
	Insert(ctx context.Context, p models.Pairing) error
	ListActiveByCycle(ctx context.Context, cycleID string) ([]models.Pairing, error)
	// ListSince returns every pairing of the group (active or superseded)
	// whose cycle started at or after since.
	ListSince(ctx context.Context, groupID string, since time.Time) ([]models.Pairing, error)
	// Update replaces the membership fields of an existing pairing.
	Update(ctx context.Context, p models.Pairing) error
	Supersede(ctx context.Context, id string, at time.Time) error
}

// ChannelStore persists Channel records.
type ChannelStore interface {
	Insert(ctx context.Context, ch models.Channel) error
	// ArchiveActive marks every active channel of the group inactive and
	// returns the ids it archived.
	ArchiveActive(ctx context.Context, groupID string, at time.Time) ([]string, error)
	GetByPairing(ctx context.Context, pairingID string) (models.Channel, error)
	Update(ctx context.Context, ch models.Channel) error
}

// MemberStateStore persists MemberState records, one per (group, member).
type MemberStateStore interface {
	Get(ctx context.Context, groupID, memberID string) (models.MemberState, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.MemberState, error)
	Upsert(ctx context.Context, st models.MemberState) error
}

// Directory is the read-only view of groups and memberships owned by the
// surrounding application.
type Directory interface {
	ActiveGroupIDs(ctx context.Context) ([]string, error)
	GetGroup(ctx context.Context, groupID string) (models.Group, error)
	ActiveMembers(ctx context.Context, groupID string) ([]models.GroupMembership, error)
}

// Locker provides per-group mutual exclusion. Lock blocks until the lock is
// held or ctx ends; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Transactor runs fn atomically when the backing database supports it.
// fn may be invoked more than once and must not keep state between calls.
type Transactor interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// Gateway delivers channel and notification side effects. Calls are
// fire-and-forget: failures are logged by the engine and never retried.
type Gateway interface {
	CreateChannel(ctx context.Context, ev Event) error
	UpdateChannel(ctx context.Context, ev Event) error
	ArchiveChannel(ctx context.Context, ev Event) error
	Notify(ctx context.Context, ev Event) error
}

// Stores bundles the persistence dependencies of an Engine.
type Stores struct {
	Cycles    CycleStore
	Pairings  PairingStore
	Channels  ChannelStore
	States    MemberStateStore
	Directory Directory
}

type directTx struct{}

func (directTx) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
