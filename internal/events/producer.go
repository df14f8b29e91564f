// Package events publishes domain events to Kafka for downstream
// consumers (notification fan-out, analytics). Publishing is strictly
// best-effort: a broker outage is logged and never surfaces to a socket
// handler.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Producer struct {
	messages *kafka.Writer
	presence *kafka.Writer
	log      *zap.SugaredLogger
}

// NewProducer returns nil when no brokers are configured; a nil Producer
// is a valid no-op sink.
func NewProducer(brokers []string, topicMessages, topicPresence string, log *zap.SugaredLogger) *Producer {
	if len(brokers) == 0 {
		return nil
	}
	return &Producer{
		messages: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topicMessages,
			Balancer: &kafka.LeastBytes{},
		},
		presence: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topicPresence,
			Balancer: &kafka.LeastBytes{},
		},
		log: log,
	}
}

// MessageSent announces a persisted message, keyed by conversation so one
// conversation's events stay in partition order.
func (p *Producer) MessageSent(ctx context.Context, conversationID, messageID, senderID string) {
	if p == nil {
		return
	}
	p.publish(ctx, p.messages, conversationID, map[string]any{
		"event":           "message.sent",
		"conversation_id": conversationID,
		"message_id":      messageID,
		"sender_id":       senderID,
		"at":              time.Now().UTC().Format(time.RFC3339),
	})
}

// PresenceChanged announces an online/offline transition, keyed by user.
func (p *Producer) PresenceChanged(ctx context.Context, userID, status string) {
	if p == nil {
		return
	}
	p.publish(ctx, p.presence, userID, map[string]any{
		"event":   "presence.changed",
		"user_id": userID,
		"status":  status,
		"at":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (p *Producer) publish(ctx context.Context, w *kafka.Writer, key string, payload map[string]any) {
	b, err := json.Marshal(payload)
	if err != nil {
		p.log.Errorw("event marshal", "err", err)
		return
	}
	msg := kafka.Message{Key: []byte(key), Value: b, Time: time.Now()}
	if err := w.WriteMessages(ctx, msg); err != nil {
		p.log.Warnw("event publish", "topic", w.Topic, "err", err)
	}
}

func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	if err := p.messages.Close(); err != nil {
		return err
	}
	return p.presence.Close()
}
