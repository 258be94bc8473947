package models

import (
	"time"
)

// Group statuses.
const (
	GroupActive   = "active"
	GroupArchived = "archived"
)

// Group is a Moai: the parent community whose members are paired into buddy
// groups. Groups are owned by the surrounding application; the buddy engine
// only reads the id and status.
type Group struct {
	ID     string `bson:"_id" json:"id"`
	Name   string `bson:"name" json:"name"`
	Status string `bson:"status" json:"status"` // "active" | "archived"

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
