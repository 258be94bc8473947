// internal/app/store/cycles/cyclestore.go
package cyclestore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	"github.com/dalemusser/buddyhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("buddy_cycles")}
}

// Exists reports whether the group already has a cycle starting at start.
func (s *Store) Exists(ctx context.Context, groupID string, start time.Time) (bool, error) {
	n, err := s.c.CountDocuments(ctx,
		bson.M{"group_id": groupID, "cycle_start_date": start},
		options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateIfAbsent upserts on (group_id, cycle_start_date) so the unique index
// decides the winner when two runs race. The returned bool is true only for
// the caller whose upsert inserted the document.
func (s *Store) CreateIfAbsent(ctx context.Context, c models.Cycle) (models.Cycle, bool, error) {
	filter := bson.M{"group_id": c.GroupID, "cycle_start_date": c.CycleStartDate}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":            c.ID,
		"cycle_end_date": c.CycleEndDate,
		"created_at":     c.CreatedAt,
	}}

	res, err := s.c.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil && !wafflemongo.IsDup(err) {
		return models.Cycle{}, false, err
	}
	if err == nil && res.UpsertedCount == 1 {
		return c, true, nil
	}

	var existing models.Cycle
	if err := s.c.FindOne(ctx, filter).Decode(&existing); err != nil {
		return models.Cycle{}, false, err
	}
	return existing, false, nil
}

// Latest returns the group's cycle with the greatest start date.
func (s *Store) Latest(ctx context.Context, groupID string) (models.Cycle, error) {
	var c models.Cycle
	err := s.c.FindOne(ctx,
		bson.M{"group_id": groupID},
		options.FindOne().SetSort(bson.D{{Key: "cycle_start_date", Value: -1}}),
	).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Cycle{}, buddy.ErrNotFound
	}
	if err != nil {
		return models.Cycle{}, err
	}
	return c, nil
}
