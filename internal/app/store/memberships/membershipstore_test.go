package membershipstore_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	membershipstore "github.com/dalemusser/buddyhub/internal/app/store/memberships"
	"github.com/dalemusser/buddyhub/internal/domain/models"
	"github.com/dalemusser/buddyhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
)

func TestStore_Add(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	group := fixtures.CreateGroup(ctx, "Test Group")
	joined := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)

	gm, err := store.Add(ctx, group.ID, "member-1", joined)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if gm.Status != models.MembershipActive {
		t.Errorf("Status: got %q, want %q", gm.Status, models.MembershipActive)
	}

	// Verify the membership was created
	count, err := db.Collection("group_memberships").CountDocuments(ctx, bson.M{
		"group_id":  group.ID,
		"member_id": "member-1",
	})
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 membership, got %d", count)
	}
}

func TestStore_Add_Duplicate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	group := fixtures.CreateGroup(ctx, "Test Group")
	if _, err := store.Add(ctx, group.ID, "m1", time.Now()); err != nil {
		t.Fatalf("first Add failed: %v", err)
	}
	if _, err := store.Add(ctx, group.ID, "m1", time.Now()); err != membershipstore.ErrDuplicateMembership {
		t.Errorf("expected ErrDuplicateMembership, got %v", err)
	}
}

func TestStore_Add_MissingGroup(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Add(ctx, "no-such-group", "m1", time.Now()); !errors.Is(err, buddy.ErrNotFound) {
		t.Errorf("expected buddy.ErrNotFound, got %v", err)
	}
	if _, err := store.Add(ctx, "", "m1", time.Now()); !errors.Is(err, buddy.ErrInvalidInput) {
		t.Errorf("expected buddy.ErrInvalidInput, got %v", err)
	}
}

func TestStore_SetStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	group := fixtures.CreateGroup(ctx, "Test Group")
	first := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	fixtures.CreateActiveMembers(ctx, group.ID, first, "m1", "m2")

	if err := store.SetStatus(ctx, group.ID, "m1", models.MembershipInactive, time.Now()); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	n, err := store.CountActive(ctx, group.ID)
	if err != nil {
		t.Fatalf("CountActive failed: %v", err)
	}
	if n != 1 {
		t.Errorf("CountActive: got %d, want 1", n)
	}

	// Setting the same status twice is not an error.
	if err := store.SetStatus(ctx, group.ID, "m1", models.MembershipInactive, time.Now()); err != nil {
		t.Errorf("repeat deactivate failed: %v", err)
	}

	back := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	if err := store.SetStatus(ctx, group.ID, "m1", models.MembershipActive, back); err != nil {
		t.Fatalf("reactivate failed: %v", err)
	}
	gm, err := store.Get(ctx, group.ID, "m1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !gm.JoinedAt.Equal(back) {
		t.Errorf("JoinedAt: got %v, want %v", gm.JoinedAt, back)
	}

	if err := store.SetStatus(ctx, group.ID, "ghost", models.MembershipInactive, time.Now()); !errors.Is(err, buddy.ErrNotFound) {
		t.Errorf("expected buddy.ErrNotFound for missing membership, got %v", err)
	}
	if err := store.SetStatus(ctx, group.ID, "m2", "banned", time.Now()); err == nil {
		t.Error("expected error for invalid status")
	}
}
