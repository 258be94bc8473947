package testutil

import (
	"context"
	"testing"
	"time"

	groupstore "github.com/dalemusser/buddyhub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/buddyhub/internal/app/store/memberships"
	"github.com/dalemusser/buddyhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data. Groups and
// memberships go through their stores, the same way the surrounding
// application writes them.
type Fixtures struct {
	db          *mongo.Database
	t           *testing.T
	groups      *groupstore.Store
	memberships *membershipstore.Store
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{
		db:          db,
		t:           t,
		groups:      groupstore.New(db),
		memberships: membershipstore.New(db),
	}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateGroup inserts an active group with a generated id.
func (f *Fixtures) CreateGroup(ctx context.Context, name string) models.Group {
	f.t.Helper()

	g, err := f.groups.Create(ctx, models.Group{Name: name})
	if err != nil {
		f.t.Fatalf("failed to create test group: %v", err)
	}
	return g
}

// CreateArchivedGroup inserts a group and archives it.
func (f *Fixtures) CreateArchivedGroup(ctx context.Context, name string) models.Group {
	f.t.Helper()

	g := f.CreateGroup(ctx, name)
	if err := f.groups.SetStatus(ctx, g.ID, models.GroupArchived); err != nil {
		f.t.Fatalf("failed to archive test group: %v", err)
	}
	g.Status = models.GroupArchived
	return g
}

// CreateMembership inserts a membership with the given status.
func (f *Fixtures) CreateMembership(ctx context.Context, groupID, memberID, status string, joinedAt time.Time) models.GroupMembership {
	f.t.Helper()

	gm, err := f.memberships.Add(ctx, groupID, memberID, joinedAt)
	if err != nil {
		f.t.Fatalf("failed to create test membership: %v", err)
	}
	if status != models.MembershipActive {
		if err := f.memberships.SetStatus(ctx, groupID, memberID, status, joinedAt); err != nil {
			f.t.Fatalf("failed to set test membership status: %v", err)
		}
		gm.Status = status
	}
	return gm
}

// CreateActiveMembers inserts active memberships for each member id.
func (f *Fixtures) CreateActiveMembers(ctx context.Context, groupID string, joinedAt time.Time, memberIDs ...string) {
	f.t.Helper()
	for _, id := range memberIDs {
		f.CreateMembership(ctx, groupID, id, models.MembershipActive, joinedAt)
	}
}
