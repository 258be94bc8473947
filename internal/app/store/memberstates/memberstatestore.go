// internal/app/store/memberstates/memberstatestore.go
package memberstatestore

import (
	"context"
	"errors"

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

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("buddy_member_states")}
}

func (s *Store) Get(ctx context.Context, groupID, memberID string) (models.MemberState, error) {
	var st models.MemberState
	err := s.c.FindOne(ctx, bson.M{"group_id": groupID, "member_id": memberID}).Decode(&st)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.MemberState{}, buddy.ErrNotFound
	}
	if err != nil {
		return models.MemberState{}, err
	}
	return st, nil
}

func (s *Store) ListByGroup(ctx context.Context, groupID string) ([]models.MemberState, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"group_id": groupID},
		options.Find().SetSort(bson.D{{Key: "member_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.MemberState
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert writes the state for (group, member), creating the row on first
// use. The unique index keeps one row per pair; a duplicate-key race between
// two first writers is retried once as an update.
func (s *Store) Upsert(ctx context.Context, st models.MemberState) error {
	buddyGroup := st.CurrentBuddyGroup
	if buddyGroup == nil {
		buddyGroup = []string{}
	}
	filter := bson.M{"group_id": st.GroupID, "member_id": st.MemberID}
	update := bson.M{
		"$set": bson.M{
			"current_buddy_group":  buddyGroup,
			"last_assignment_date": st.LastAssignmentDate,
			"was_late_joiner":      st.WasLateJoiner,
			"updated_at":           st.UpdatedAt,
		},
		"$setOnInsert": bson.M{"_id": uuid.NewString()},
	}

	_, err := s.c.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil && wafflemongo.IsDup(err) {
		_, err = s.c.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	}
	return err
}
