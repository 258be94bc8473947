package groupmembers

import (
	"context"
	"fmt"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	groupstore "github.com/dalemusser/buddyhub/internal/app/store/groups"
	"github.com/dalemusser/buddyhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ListActiveMembers returns the active memberships of a group whose group
// document is itself active, ordered by member id.
func ListActiveMembers(ctx context.Context, db *mongo.Database, groupID string) ([]models.GroupMembership, error) {
	pipe := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"group_id": groupID, "status": models.MembershipActive}}},
		bson.D{{Key: "$lookup", Value: bson.M{
			"from":         "groups",
			"localField":   "group_id",
			"foreignField": "_id",
			"as":           "group",
		}}},
		bson.D{{Key: "$unwind", Value: "$group"}},
		bson.D{{Key: "$match", Value: bson.M{"group.status": models.GroupActive}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "member_id", Value: 1}}}},
		bson.D{{Key: "$project", Value: bson.M{"group": 0}}},
	}

	cur, err := db.Collection("group_memberships").Aggregate(ctx, pipe)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.GroupMembership
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Directory is the Mongo-backed buddy.Directory.
type Directory struct {
	db     *mongo.Database
	groups *groupstore.Store
}

var _ buddy.Directory = (*Directory)(nil)

func NewDirectory(db *mongo.Database) *Directory {
	return &Directory{db: db, groups: groupstore.New(db)}
}

func (d *Directory) ActiveGroupIDs(ctx context.Context) ([]string, error) {
	return d.groups.ListActiveIDs(ctx)
}

func (d *Directory) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	return d.groups.GetByID(ctx, groupID)
}

func (d *Directory) ActiveMembers(ctx context.Context, groupID string) ([]models.GroupMembership, error) {
	out, err := ListActiveMembers(ctx, d.db, groupID)
	if err != nil {
		return nil, fmt.Errorf("list active members of %s: %w", groupID, err)
	}
	return out, nil
}
