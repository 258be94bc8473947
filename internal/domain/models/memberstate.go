package models

import (
	"time"
)

// MemberState is the per-(member, group) assignment record.
//
// CurrentBuddyGroup holds the full member set (including the member itself)
// of the pairing the member currently belongs to; it is empty once the member
// has left. WasLateJoiner marks members placed mid-cycle or left alone by a
// leave repair, so the next full cycle distributes them first.
type MemberState struct {
	ID                 string    `bson:"_id,omitempty" json:"id"`
	MemberID           string    `bson:"member_id" json:"member_id"`
	GroupID            string    `bson:"group_id" json:"group_id"`
	CurrentBuddyGroup  []string  `bson:"current_buddy_group" json:"current_buddy_group"`
	LastAssignmentDate time.Time `bson:"last_assignment_date" json:"last_assignment_date"`
	WasLateJoiner      bool      `bson:"was_late_joiner" json:"was_late_joiner"`
	UpdatedAt          time.Time `bson:"updated_at" json:"updated_at"`
}
