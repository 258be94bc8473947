// Package gateway delivers buddy channel and notification events to the
// systems that own chat channels and member notifications.
package gateway

import (
	"encoding/json"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	"github.com/google/uuid"
)

// Default topic names.
const (
	DefaultChannelTopic      = "buddy.channels"
	DefaultNotificationTopic = "buddy.notifications"
)

// message is the wire form of a buddy event.
type message struct {
	EventID    string    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
	buddy.Event
}

func encode(ev buddy.Event, now time.Time) ([]byte, error) {
	return json.Marshal(message{
		EventID:    uuid.NewString(),
		OccurredAt: now.UTC(),
		Event:      ev,
	})
}
