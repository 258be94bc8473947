package pairingstore_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	pairingstore "github.com/dalemusser/buddyhub/internal/app/store/pairings"
	"github.com/dalemusser/buddyhub/internal/domain/models"
	"github.com/dalemusser/buddyhub/internal/testutil"
)

func pairing(id, cycleID string, start time.Time, members ...string) models.Pairing {
	return models.Pairing{
		ID:                 id,
		CycleID:            cycleID,
		GroupID:            "g1",
		CycleStartDate:     start,
		Members:            members,
		Type:               models.PairingTypeFor(len(members)),
		Status:             models.PairingActive,
		LastAssignmentDate: start,
		CreatedAt:          start,
		UpdatedAt:          start,
	}
}

func TestStore_ListActiveByCycleAndSince(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := pairingstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cur := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	for _, p := range []models.Pairing{
		pairing("p-old", "c0", old, "a", "b"),
		pairing("p2", "c1", cur, "c", "d", "e"),
		pairing("p1", "c1", cur, "a", "b"),
	} {
		if err := store.Insert(ctx, p); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := store.Supersede(ctx, "p2", cur.Add(time.Hour)); err != nil {
		t.Fatalf("Supersede failed: %v", err)
	}

	active, err := store.ListActiveByCycle(ctx, "c1")
	if err != nil {
		t.Fatalf("ListActiveByCycle failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != "p1" {
		t.Errorf("ListActiveByCycle: got %+v, want only p1", active)
	}

	since, err := store.ListSince(ctx, "g1", cur.AddDate(0, 0, -56))
	if err != nil {
		t.Fatalf("ListSince failed: %v", err)
	}
	if len(since) != 2 {
		t.Fatalf("ListSince: got %d pairings, want 2 (superseded included, old excluded)", len(since))
	}
	for _, p := range since {
		if p.ID == "p2" && (p.Status != models.PairingSuperseded || p.SupersededAt == nil) {
			t.Errorf("p2 not superseded: %+v", p)
		}
	}
}

func TestStore_Update(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := pairingstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	start := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	p := pairing("p1", "c1", start, "a", "b")
	if err := store.Insert(ctx, p); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	p.Members = []string{"a", "b", "c"}
	p.Type = models.PairingTypeTrio
	p.LastAssignmentDate = start.AddDate(0, 0, 3)
	if err := store.Update(ctx, p); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.ListActiveByCycle(ctx, "c1")
	if err != nil {
		t.Fatalf("ListActiveByCycle failed: %v", err)
	}
	if len(got) != 1 || len(got[0].Members) != 3 || got[0].Type != models.PairingTypeTrio {
		t.Errorf("Update not applied: %+v", got)
	}
	if !got[0].LastAssignmentDate.Equal(p.LastAssignmentDate) {
		t.Errorf("LastAssignmentDate: got %v, want %v", got[0].LastAssignmentDate, p.LastAssignmentDate)
	}

	missing := pairing("nope", "c1", start, "x", "y")
	if err := store.Update(ctx, missing); !errors.Is(err, buddy.ErrNotFound) {
		t.Errorf("expected buddy.ErrNotFound, got %v", err)
	}
	if err := store.Supersede(ctx, "nope", start); !errors.Is(err, buddy.ErrNotFound) {
		t.Errorf("expected buddy.ErrNotFound from Supersede, got %v", err)
	}
}
