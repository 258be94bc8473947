package models

import (
	"time"
)

// Pairing types, derived from the member count.
const (
	PairingTypePair = "pair"
	PairingTypeTrio = "trio"
)

// Pairing statuses.
const (
	PairingActive     = "active"
	PairingSuperseded = "superseded"
)

// Pairing is one buddy sub-group inside a Cycle.
//
// Active pairings of a cycle partition the group's active members: every
// active member is in exactly one of them. Members holds 2 or 3 ids except for
// a Degenerate pairing, which is a one-member leftover of a leave repair that
// had nowhere to merge.
type Pairing struct {
	ID             string    `bson:"_id" json:"id"`
	CycleID        string    `bson:"cycle_id" json:"cycle_id"`
	GroupID        string    `bson:"group_id" json:"group_id"`
	CycleStartDate time.Time `bson:"cycle_start_date" json:"cycle_start_date"`
	Members        []string  `bson:"members" json:"members"`
	Type           string    `bson:"type" json:"type"`
	Status         string    `bson:"status" json:"status"`
	Degenerate     bool      `bson:"degenerate" json:"degenerate"`

	// LastAssignmentDate is the last time the membership of this pairing
	// changed: the cycle start, or the date of the latest repair.
	LastAssignmentDate time.Time `bson:"last_assignment_date" json:"last_assignment_date"`

	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updated_at"`
	SupersededAt *time.Time `bson:"superseded_at,omitempty" json:"superseded_at,omitempty"`
}

// PairingTypeFor returns the pairing type for a member count.
// Counts other than 3 are reported as pairs.
func PairingTypeFor(n int) string {
	if n == 3 {
		return PairingTypeTrio
	}
	return PairingTypePair
}

// HasMember reports whether memberID belongs to the pairing.
func (p Pairing) HasMember(memberID string) bool {
	for _, m := range p.Members {
		if m == memberID {
			return true
		}
	}
	return false
}
