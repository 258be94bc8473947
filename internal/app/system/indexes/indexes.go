// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
Problems are aggregated so every collection is attempted and startup can
fail fast with the full list.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	steps := []struct {
		name string
		fn   func(context.Context, *mongo.Database) error
	}{
		{"groups", ensureGroups},
		{"group_memberships", ensureGroupMemberships},
		{"buddy_cycles", ensureBuddyCycles},
		{"buddy_pairings", ensureBuddyPairings},
		{"buddy_channels", ensureBuddyChannels},
		{"buddy_member_states", ensureBuddyMemberStates},
	}
	for _, s := range steps {
		if err := s.fn(ctx, db); err != nil {
			problems = append(problems, s.name+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

type desiredIndex struct {
	model  mongo.IndexModel
	name   string
	unique bool
	sig    string
}

func describe(m mongo.IndexModel) desiredIndex {
	d := desiredIndex{model: m, sig: keySig(m.Keys.(bson.D))}
	if m.Options != nil {
		if m.Options.Name != nil {
			d.name = *m.Options.Name
		}
		if m.Options.Unique != nil {
			d.unique = *m.Options.Unique
		}
	}
	return d
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func isUnique(p *bool) bool { return p != nil && *p }

// Best-effort duplicate-detector (works cross-vendors)
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

// Mongo/DocDB sometimes returns IndexOptionsConflict when an index with the
// same keys already exists under a different name (or options differ).
func isOptionsConflictErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "IndexOptionsConflict")
}

// listBySig maps key signature to the collection's existing indexes.
func listBySig(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	out := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return out
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out
}

// recreate drops ex and creates d in its place.
func recreate(ctx context.Context, coll *mongo.Collection, ex existingIndex, d desiredIndex) error {
	if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
		return fmt.Errorf("drop %s failed: %w", ex.Name, err)
	}
	if _, err := coll.Indexes().CreateOne(ctx, d.model); err != nil {
		if isDuplicateKeyErr(err) && d.unique {
			return fmt.Errorf("cannot create unique index (duplicates present on %s)", d.sig)
		}
		return err
	}
	return nil
}

// ensureOne reconciles a single desired index and reports what it did.
func ensureOne(ctx context.Context, coll *mongo.Collection, d desiredIndex) (string, error) {
	ex, ok := listBySig(ctx, coll)[d.sig]
	if ok {
		if d.unique != isUnique(ex.Unique) {
			return "dropped and recreated", recreate(ctx, coll, ex, d)
		}
		if d.name != "" && ex.Name != d.name {
			return "renamed from " + ex.Name, recreate(ctx, coll, ex, d)
		}
		return "reused", nil
	}

	_, err := coll.Indexes().CreateOne(ctx, d.model)
	if err == nil {
		return "created", nil
	}
	if !isOptionsConflictErr(err) {
		return "", err
	}

	// Lost a race with another creator or a vendor reported the keys under a
	// different signature; look again before giving up.
	ex, ok = listBySig(ctx, coll)[d.sig]
	if !ok {
		return "", err
	}
	if d.unique == isUnique(ex.Unique) {
		return "reused (post-conflict)", nil
	}
	return "dropped and recreated (post-conflict)", recreate(ctx, coll, ex, d)
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string

	for _, m := range models {
		d := describe(m)
		start := time.Now()
		fields := []zap.Field{
			zap.String("collection", coll.Name()),
			zap.String("name", d.name),
			zap.String("keys", d.sig),
			zap.Bool("unique", d.unique),
		}

		action, err := ensureOne(ctx, coll, d)
		fields = append(fields, zap.String("took", time.Since(start).String()))
		if err != nil {
			zap.L().Warn("index ensure failed", append(fields, zap.Error(err))...)
			errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), d.name, err))
			continue
		}
		zap.L().Info("index ensured", append(fields, zap.String("action", action))...)
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

// --- groups ---
func ensureGroups(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("groups")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Scheduler: list active groups in id order
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_groups_status__id"),
		},
	})
}

func ensureGroupMemberships(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("group_memberships")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Exactly one membership per (group, member); status changes update the doc
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "member_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_gm_group_member"),
		},
		// Active member list per group, stable order
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "status", Value: 1}, {Key: "member_id", Value: 1}},
			Options: options.Index().SetName("idx_gm_group_status_member"),
		},
	})
}

// --- buddy engine ---
func ensureBuddyCycles(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("buddy_cycles")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// At most one cycle per (group, start). Cycle creation relies on this.
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "cycle_start_date", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_buddy_cycles_group_start"),
		},
	})
}

func ensureBuddyPairings(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("buddy_pairings")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "cycle_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_buddy_pairings_cycle_status"),
		},
		// History window reads
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "cycle_start_date", Value: 1}},
			Options: options.Index().SetName("idx_buddy_pairings_group_start"),
		},
	})
}

func ensureBuddyChannels(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("buddy_channels")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "is_active", Value: 1}},
			Options: options.Index().SetName("idx_buddy_channels_group_active"),
		},
		{
			Keys:    bson.D{{Key: "pairing_id", Value: 1}},
			Options: options.Index().SetName("idx_buddy_channels_pairing"),
		},
	})
}

func ensureBuddyMemberStates(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("buddy_member_states")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "member_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_buddy_member_states_group_member"),
		},
	})
}
