// internal/app/store/memberships/membershipstore.go
package membershipstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	"github.com/dalemusser/buddyhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c      *mongo.Collection
	groups *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		c:      db.Collection("group_memberships"),
		groups: db.Collection("groups"),
	}
}

var (
	errBadStatus = errors.New(`status must be "active" or "inactive"`)

	ErrDuplicateMembership = errors.New("member is already in this group")
)

// Add creates an active membership. The group must exist.
func (s *Store) Add(ctx context.Context, groupID, memberID string, joinedAt time.Time) (models.GroupMembership, error) {
	if groupID == "" || memberID == "" {
		return models.GroupMembership{}, buddy.ErrInvalidInput
	}
	if err := s.groups.FindOne(ctx, bson.M{"_id": groupID}).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.GroupMembership{}, buddy.ErrNotFound
		}
		return models.GroupMembership{}, err
	}

	gm := models.GroupMembership{
		ID:       uuid.NewString(),
		GroupID:  groupID,
		MemberID: memberID,
		Status:   models.MembershipActive,
		JoinedAt: joinedAt.UTC(),
	}
	if _, err := s.c.InsertOne(ctx, gm); err != nil {
		if wafflemongo.IsDup(err) {
			return models.GroupMembership{}, ErrDuplicateMembership
		}
		return models.GroupMembership{}, err
	}
	return gm, nil
}

// Get returns the membership for (groupID, memberID).
func (s *Store) Get(ctx context.Context, groupID, memberID string) (models.GroupMembership, error) {
	var gm models.GroupMembership
	err := s.c.FindOne(ctx, bson.M{"group_id": groupID, "member_id": memberID}).Decode(&gm)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.GroupMembership{}, buddy.ErrNotFound
	}
	if err != nil {
		return models.GroupMembership{}, err
	}
	return gm, nil
}

// SetStatus activates or deactivates a membership. Reactivation resets
// joined_at so the member counts as a late joiner again.
func (s *Store) SetStatus(ctx context.Context, groupID, memberID, status string, at time.Time) error {
	set := bson.M{"status": status}
	switch status {
	case models.MembershipActive:
		set["joined_at"] = at.UTC()
	case models.MembershipInactive:
	default:
		return errBadStatus
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"group_id": groupID, "member_id": memberID, "status": bson.M{"$ne": status}},
		bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Either missing or already in the requested status.
		if _, err := s.Get(ctx, groupID, memberID); err != nil {
			return err
		}
	}
	return nil
}

// CountActive returns the number of active members of a group.
func (s *Store) CountActive(ctx context.Context, groupID string) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"group_id": groupID, "status": models.MembershipActive})
}
