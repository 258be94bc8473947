package models

import (
	"time"
)

// Membership statuses.
const (
	MembershipActive   = "active"
	MembershipInactive = "inactive"
)

// GroupMembership is the authoritative join between members and groups.
// Exactly one document per (group_id, member_id). Only memberships with
// status "active" take part in buddy cycles.
type GroupMembership struct {
	ID       string    `bson:"_id,omitempty" json:"id"`
	GroupID  string    `bson:"group_id" json:"group_id"`
	MemberID string    `bson:"member_id" json:"member_id"`
	Status   string    `bson:"status" json:"status"` // "active" | "inactive"
	JoinedAt time.Time `bson:"joined_at" json:"joined_at"`
}
