package buddy

import (
	"github.com/dalemusser/buddyhub/internal/domain/models"
)

// EventKind identifies a post-commit side effect.
type EventKind string

const (
	EventChannelCreated  EventKind = "channel.created"
	EventChannelUpdated  EventKind = "channel.updated"
	EventChannelArchived EventKind = "channel.archived"
	EventNotify          EventKind = "member.notify"
)

// Event is a side effect produced by a cycle run or a repair. Events are
// collected while persisting and handed to the Gateway only after the
// persistence work for the group has committed.
type Event struct {
	Kind      EventKind `json:"kind"`
	GroupID   string    `json:"group_id"`
	CycleID   string    `json:"cycle_id,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Members   []string  `json:"members,omitempty"`
	MemberID  string    `json:"member_id,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Notification texts.
const (
	msgNewBuddies      = "Your new accountability buddies are ready. Say hi in your buddy chat and keep each other going for the next two weeks!"
	msgLateJoinerCycle = "Welcome to the Moai! You've been matched with your first accountability buddies. Say hi in your buddy chat!"
	msgJoinedMidCycle  = "Welcome to the Moai! You've been added to a buddy group for the rest of this cycle."
	msgBuddyJoined     = "A new member just joined your buddy group. Give them a warm welcome!"
	msgBuddyLeft       = "One of your buddies has left the group. Keep each other going!"
	msgRegrouped       = "Your buddy group has changed. Check your buddy chat to meet your new buddies."
	msgWaitingForBuddy = "Your buddy has left the group. You'll be matched with new buddies at the start of the next cycle."
)

func channelEvent(kind EventKind, ch models.Channel) Event {
	return Event{
		Kind:      kind,
		GroupID:   ch.GroupID,
		CycleID:   ch.CycleID,
		ChannelID: ch.ID,
		Name:      ch.Name,
		Members:   append([]string(nil), ch.Members...),
	}
}

func notifyEvent(groupID, cycleID, memberID, msg string) Event {
	return Event{
		Kind:     EventNotify,
		GroupID:  groupID,
		CycleID:  cycleID,
		MemberID: memberID,
		Message:  msg,
	}
}
