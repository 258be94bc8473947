// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	"github.com/dalemusser/buddyhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

var (
	ErrDuplicateGroup = errors.New("a group with this id already exists")
	errBadStatus      = errors.New(`status must be "active" or "archived"`)
)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("groups")}
}

func (s *Store) GetByID(ctx context.Context, id string) (models.Group, error) {
	var g models.Group
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Group{}, buddy.ErrNotFound
	}
	if err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// Create inserts g. An empty id is generated; an empty status becomes active.
func (s *Store) Create(ctx context.Context, g models.Group) (models.Group, error) {
	now := time.Now().UTC()
	if strings.TrimSpace(g.ID) == "" {
		g.ID = uuid.NewString()
	}
	if g.Status == "" {
		g.Status = models.GroupActive
	}
	g.CreatedAt = now
	g.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, g); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Group{}, ErrDuplicateGroup
		}
		return models.Group{}, err
	}
	return g, nil
}

// SetStatus activates or archives a group.
func (s *Store) SetStatus(ctx context.Context, id, status string) error {
	if status != models.GroupActive && status != models.GroupArchived {
		return errBadStatus
	}
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return buddy.ErrNotFound
	}
	return nil
}

// ListActiveIDs returns the ids of every active group in id order.
func (s *Store) ListActiveIDs(ctx context.Context) ([]string, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"status": models.GroupActive},
		options.Find().
			SetProjection(bson.M{"_id": 1}).
			SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}
