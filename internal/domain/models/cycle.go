package models

import (
	"time"
)

// Cycle is one bi-weekly pairing period for one group.
//
// At most one Cycle exists per (group_id, cycle_start_date); the unique index
// uniq_buddy_cycles_group_start backs that. A Cycle is never modified after
// creation and is superseded by the next one rather than deleted.
type Cycle struct {
	ID             string    `bson:"_id" json:"id"`
	GroupID        string    `bson:"group_id" json:"group_id"`
	CycleStartDate time.Time `bson:"cycle_start_date" json:"cycle_start_date"`
	CycleEndDate   time.Time `bson:"cycle_end_date" json:"cycle_end_date"` // inclusive last day
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}
