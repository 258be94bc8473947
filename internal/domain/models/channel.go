package models

import (
	"time"
)

// Channel names by pairing size.
const (
	ChannelNamePair = "Buddy Chat"
	ChannelNameTrio = "Buddy Group Chat"
)

// Channel is the communication channel for one Pairing, with the same
// membership. Channels of a previous cycle are archived (IsActive=false) when
// the next cycle is created for the group.
type Channel struct {
	ID             string    `bson:"_id" json:"id"`
	GroupID        string    `bson:"group_id" json:"group_id"`
	CycleID        string    `bson:"cycle_id" json:"cycle_id"`
	PairingID      string    `bson:"pairing_id" json:"pairing_id"`
	Members        []string  `bson:"members" json:"members"`
	Name           string    `bson:"name" json:"name"`
	Type           string    `bson:"type" json:"type"`
	CycleStartDate time.Time `bson:"cycle_start_date" json:"cycle_start_date"`
	CycleEndDate   time.Time `bson:"cycle_end_date" json:"cycle_end_date"`
	IsActive       bool      `bson:"is_active" json:"is_active"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// ChannelNameFor returns the display name for a channel with n members.
func ChannelNameFor(n int) string {
	if n >= 3 {
		return ChannelNameTrio
	}
	return ChannelNamePair
}
