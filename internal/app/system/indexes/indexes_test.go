package indexes_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/system/indexes"
	"github.com/dalemusser/buddyhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func indexNames(t *testing.T, ctx context.Context, c *mongo.Collection) map[string]bool {
	t.Helper()
	cur, err := c.Indexes().List(ctx)
	if err != nil {
		t.Fatalf("List indexes failed: %v", err)
	}
	defer cur.Close(ctx)

	names := make(map[string]bool)
	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			continue
		}
		if name, ok := idx["name"].(string); ok {
			names[name] = true
		}
	}
	return names
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// SetupTestDB already ran EnsureAll once.
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("second EnsureAll failed: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("third EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	tests := []struct {
		collection string
		want       []string
	}{
		{"groups", []string{"idx_groups_status__id"}},
		{"group_memberships", []string{"uniq_gm_group_member", "idx_gm_group_status_member"}},
		{"buddy_cycles", []string{"uniq_buddy_cycles_group_start"}},
		{"buddy_pairings", []string{"idx_buddy_pairings_cycle_status", "idx_buddy_pairings_group_start"}},
		{"buddy_channels", []string{"idx_buddy_channels_group_active", "idx_buddy_channels_pairing"}},
		{"buddy_member_states", []string{"uniq_buddy_member_states_group_member"}},
	}

	for _, tt := range tests {
		t.Run(tt.collection, func(t *testing.T) {
			names := indexNames(t, ctx, db.Collection(tt.collection))
			for _, name := range tt.want {
				if !names[name] {
					t.Errorf("expected index %q to exist on %s", name, tt.collection)
				}
			}
		})
	}
}

func TestEnsureAll_RenamesMisnamedIndex(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	c := db.Collection("buddy_channels")
	if _, err := c.Indexes().DropOne(ctx, "idx_buddy_channels_pairing"); err != nil {
		t.Fatalf("DropOne failed: %v", err)
	}
	if _, err := c.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "pairing_id", Value: 1}}}); err != nil {
		t.Fatalf("CreateOne failed: %v", err)
	}

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	names := indexNames(t, ctx, c)
	if !names["idx_buddy_channels_pairing"] {
		t.Error("expected index to be renamed to idx_buddy_channels_pairing")
	}
	if names["pairing_id_1"] {
		t.Error("expected default-named index to be dropped")
	}
}

func TestEnsureAll_UniqueCycleIndexEnforced(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	start := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	c := db.Collection("buddy_cycles")
	if _, err := c.InsertOne(ctx, bson.M{"_id": "c1", "group_id": "g1", "cycle_start_date": start}); err != nil {
		t.Fatalf("Insert cycle failed: %v", err)
	}
	if _, err := c.InsertOne(ctx, bson.M{"_id": "c2", "group_id": "g1", "cycle_start_date": start}); err == nil {
		t.Error("expected duplicate key error for a second cycle with the same group and start")
	}
	if _, err := c.InsertOne(context.Background(), bson.M{"_id": "c3", "group_id": "g2", "cycle_start_date": start}); err != nil {
		t.Errorf("cycle for another group should insert: %v", err)
	}
}
