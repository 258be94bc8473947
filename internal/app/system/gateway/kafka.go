package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer used by Kafka.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a Kafka gateway.
type KafkaConfig struct {
	Brokers           []string
	ChannelTopic      string
	NotificationTopic string
}

// Kafka publishes channel events keyed by group id and notifications keyed by
// member id, so each group's channel changes and each member's messages stay
// ordered within a partition.
type Kafka struct {
	w                 MessageWriter
	channelTopic      string
	notificationTopic string
	log               *zap.Logger
	now               func() time.Time
}

// NewKafka builds a gateway backed by a kafka.Writer on cfg.Brokers.
func NewKafka(cfg KafkaConfig, logger *zap.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka gateway requires at least one broker")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}
	return NewKafkaWithWriter(w, cfg, logger), nil
}

// NewKafkaWithWriter builds a gateway over an existing writer. The writer
// must not have a fixed Topic; each message names its own.
func NewKafkaWithWriter(w MessageWriter, cfg KafkaConfig, logger *zap.Logger) *Kafka {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChannelTopic == "" {
		cfg.ChannelTopic = DefaultChannelTopic
	}
	if cfg.NotificationTopic == "" {
		cfg.NotificationTopic = DefaultNotificationTopic
	}
	return &Kafka{
		w:                 w,
		channelTopic:      cfg.ChannelTopic,
		notificationTopic: cfg.NotificationTopic,
		log:               logger,
		now:               time.Now,
	}
}

func (k *Kafka) CreateChannel(ctx context.Context, ev buddy.Event) error {
	return k.publish(ctx, k.channelTopic, ev.GroupID, ev)
}

func (k *Kafka) UpdateChannel(ctx context.Context, ev buddy.Event) error {
	return k.publish(ctx, k.channelTopic, ev.GroupID, ev)
}

func (k *Kafka) ArchiveChannel(ctx context.Context, ev buddy.Event) error {
	return k.publish(ctx, k.channelTopic, ev.GroupID, ev)
}

func (k *Kafka) Notify(ctx context.Context, ev buddy.Event) error {
	return k.publish(ctx, k.notificationTopic, ev.MemberID, ev)
}

func (k *Kafka) publish(ctx context.Context, topic, key string, ev buddy.Event) error {
	now := k.now()
	payload, err := encode(ev, now)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}
	if err := k.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
		Time:  now.UTC(),
	}); err != nil {
		return fmt.Errorf("publish %s to %s: %w", ev.Kind, topic, err)
	}
	k.log.Debug("buddy event published",
		zap.String("kind", string(ev.Kind)),
		zap.String("topic", topic),
		zap.String("key", key))
	return nil
}

// Close flushes pending messages and releases the writer.
func (k *Kafka) Close() error {
	return k.w.Close()
}
