package channelstore_test

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	channelstore "github.com/dalemusser/buddyhub/internal/app/store/channels"
	"github.com/dalemusser/buddyhub/internal/domain/models"
	"github.com/dalemusser/buddyhub/internal/testutil"
)

func channel(id, groupID, pairingID string, members ...string) models.Channel {
	now := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	return models.Channel{
		ID:             id,
		GroupID:        groupID,
		CycleID:        "c1",
		PairingID:      pairingID,
		Members:        members,
		Name:           models.ChannelNameFor(len(members)),
		Type:           models.PairingTypeFor(len(members)),
		CycleStartDate: now,
		CycleEndDate:   now.AddDate(0, 0, 13),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestStore_ArchiveActive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := channelstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for _, ch := range []models.Channel{
		channel("ch1", "g1", "p1", "a", "b"),
		channel("ch2", "g1", "p2", "c", "d", "e"),
		channel("ch3", "g2", "p3", "x", "y"),
	} {
		if err := store.Insert(ctx, ch); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	ids, err := store.ArchiveActive(ctx, "g1", time.Now().UTC())
	if err != nil {
		t.Fatalf("ArchiveActive failed: %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "ch1" || ids[1] != "ch2" {
		t.Errorf("ArchiveActive ids: got %v, want [ch1 ch2]", ids)
	}

	active, err := store.ListActive(ctx, "g1")
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active channels for g1, got %d", len(active))
	}
	other, err := store.ListActive(ctx, "g2")
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(other) != 1 {
		t.Errorf("g2 channels should be untouched, got %d active", len(other))
	}

	// Archived channels are kept, and a second pass touches nothing.
	ch, err := store.GetByPairing(ctx, "p1")
	if err != nil {
		t.Fatalf("GetByPairing failed: %v", err)
	}
	if ch.IsActive {
		t.Error("expected ch1 to be archived")
	}
	ids, err = store.ArchiveActive(ctx, "g1", time.Now().UTC())
	if err != nil {
		t.Fatalf("second ArchiveActive failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("second ArchiveActive: got %v, want none", ids)
	}
}

func TestStore_UpdateAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := channelstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ch := channel("ch1", "g1", "p1", "a", "b")
	if err := store.Insert(ctx, ch); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	ch.Members = append(ch.Members, "c")
	ch.Name = models.ChannelNameFor(3)
	if err := store.Update(ctx, ch); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, err := store.GetByPairing(ctx, "p1")
	if err != nil {
		t.Fatalf("GetByPairing failed: %v", err)
	}
	if len(got.Members) != 3 || got.Name != models.ChannelNameTrio {
		t.Errorf("Update not applied: %+v", got)
	}

	if _, err := store.GetByPairing(ctx, "missing"); !errors.Is(err, buddy.ErrNotFound) {
		t.Errorf("expected buddy.ErrNotFound, got %v", err)
	}
	if err := store.Update(ctx, channel("ghost", "g1", "px", "a", "b")); !errors.Is(err, buddy.ErrNotFound) {
		t.Errorf("expected buddy.ErrNotFound from Update, got %v", err)
	}
}
