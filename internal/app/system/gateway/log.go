package gateway

import (
	"context"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	"go.uber.org/zap"
)

// Log is a gateway that only records events in the service log. It is used
// when no broker is configured.
type Log struct {
	log *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{log: logger}
}

func (l *Log) CreateChannel(_ context.Context, ev buddy.Event) error {
	l.log.Info("buddy channel created",
		zap.String("group_id", ev.GroupID),
		zap.String("channel_id", ev.ChannelID),
		zap.String("name", ev.Name),
		zap.Strings("members", ev.Members))
	return nil
}

func (l *Log) UpdateChannel(_ context.Context, ev buddy.Event) error {
	l.log.Info("buddy channel updated",
		zap.String("group_id", ev.GroupID),
		zap.String("channel_id", ev.ChannelID),
		zap.Strings("members", ev.Members))
	return nil
}

func (l *Log) ArchiveChannel(_ context.Context, ev buddy.Event) error {
	l.log.Info("buddy channel archived",
		zap.String("group_id", ev.GroupID),
		zap.String("channel_id", ev.ChannelID))
	return nil
}

func (l *Log) Notify(_ context.Context, ev buddy.Event) error {
	l.log.Info("buddy notification",
		zap.String("group_id", ev.GroupID),
		zap.String("member_id", ev.MemberID),
		zap.String("message", ev.Message))
	return nil
}

func (l *Log) Close() error { return nil }
