// internal/app/store/pairings/pairingstore.go
package pairingstore

import (
	"context"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	"github.com/dalemusser/buddyhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("buddy_pairings")}
}

func (s *Store) Insert(ctx context.Context, p models.Pairing) error {
	_, err := s.c.InsertOne(ctx, p)
	return err
}

// ListActiveByCycle returns the cycle's active pairings in id order.
func (s *Store) ListActiveByCycle(ctx context.Context, cycleID string) ([]models.Pairing, error) {
	return s.find(ctx,
		bson.M{"cycle_id": cycleID, "status": models.PairingActive},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

// ListSince returns every pairing of the group whose cycle started at or
// after since, superseded ones included.
func (s *Store) ListSince(ctx context.Context, groupID string, since time.Time) ([]models.Pairing, error) {
	return s.find(ctx,
		bson.M{"group_id": groupID, "cycle_start_date": bson.M{"$gte": since}},
		options.Find().SetSort(bson.D{{Key: "cycle_start_date", Value: 1}, {Key: "_id", Value: 1}}))
}

// Update rewrites the membership fields of an existing pairing.
func (s *Store) Update(ctx context.Context, p models.Pairing) error {
	res, err := s.c.UpdateByID(ctx, p.ID, bson.M{"$set": bson.M{
		"members":              p.Members,
		"type":                 p.Type,
		"degenerate":           p.Degenerate,
		"last_assignment_date": p.LastAssignmentDate,
		"updated_at":           p.UpdatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return buddy.ErrNotFound
	}
	return nil
}

// Supersede retires a pairing. Superseded pairings stay in the history.
func (s *Store) Supersede(ctx context.Context, id string, at time.Time) error {
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"status":        models.PairingSuperseded,
		"superseded_at": at,
		"updated_at":    at,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return buddy.ErrNotFound
	}
	return nil
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Pairing, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Pairing
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
