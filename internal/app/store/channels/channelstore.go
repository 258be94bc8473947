// internal/app/store/channels/channelstore.go
package channelstore

import (
	"context"
	"errors"
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
	return &Store{c: db.Collection("buddy_channels")}
}

func (s *Store) Insert(ctx context.Context, ch models.Channel) error {
	_, err := s.c.InsertOne(ctx, ch)
	return err
}

// ArchiveActive marks the group's active channels inactive and returns the
// ids it touched. Channels are never deleted.
func (s *Store) ArchiveActive(ctx context.Context, groupID string, at time.Time) ([]string, error) {
	filter := bson.M{"group_id": groupID, "is_active": true}
	cur, err := s.c.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	_, err = s.c.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": at}})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// GetByPairing returns the channel created for a pairing.
func (s *Store) GetByPairing(ctx context.Context, pairingID string) (models.Channel, error) {
	var ch models.Channel
	err := s.c.FindOne(ctx,
		bson.M{"pairing_id": pairingID},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&ch)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Channel{}, buddy.ErrNotFound
	}
	if err != nil {
		return models.Channel{}, err
	}
	return ch, nil
}

func (s *Store) Update(ctx context.Context, ch models.Channel) error {
	res, err := s.c.ReplaceOne(ctx, bson.M{"_id": ch.ID}, ch)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return buddy.ErrNotFound
	}
	return nil
}

// ListActive returns the group's active channels.
func (s *Store) ListActive(ctx context.Context, groupID string) ([]models.Channel, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"group_id": groupID, "is_active": true},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Channel
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
