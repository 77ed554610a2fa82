package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the pusher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPusher publishes notifications to a topic consumed by the push gateway.
// Messages are keyed by device token so one device's pushes stay ordered.
type KafkaPusher struct {
	writer  messageWriter
	timeout time.Duration
	now     func() time.Time
}

func NewKafkaPusher(brokers []string, topic string, timeout time.Duration) *KafkaPusher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: timeout,
	}
	return newKafkaPusher(w, timeout)
}

func newKafkaPusher(w messageWriter, timeout time.Duration) *KafkaPusher {
	return &KafkaPusher{writer: w, timeout: timeout, now: time.Now}
}

func (p *KafkaPusher) Push(ctx context.Context, n Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	msg := kafka.Message{
		Key:   []byte(n.Token),
		Value: value,
		Time:  p.now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

func (p *KafkaPusher) Close() error {
	return p.writer.Close()
}
