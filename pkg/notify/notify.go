// Package notify sends offline push notifications to a user's device.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"collabchat/internal/constants"
	"collabchat/internal/models"

	"github.com/sirupsen/logrus"
)

// Notification is what the device receives. Data carries routing hints the
// client app uses to open the right conversation.
type Notification struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Icon  string            `json:"icon,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// Pusher delivers a notification to the push provider
type Pusher interface {
	Push(ctx context.Context, n Notification) error
	Close() error
}

const (
	ProviderKafka   = "kafka"
	ProviderWebhook = "webhook"
	ProviderNone    = "none"
)

// NewFromConfig builds the pusher selected by cfg.Provider
func NewFromConfig(cfg models.NotificationConfig, logger *logrus.Logger) (Pusher, error) {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultPushTimeoutSec) * time.Second
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka push provider requires at least one broker")
		}
		topic := cfg.KafkaTopic
		if topic == "" {
			topic = constants.DefaultPushTopic
		}
		return NewKafkaPusher(cfg.KafkaBrokers, topic, timeout), nil
	case ProviderWebhook:
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("webhook push provider requires a URL")
		}
		return NewWebhookPusher(cfg.WebhookURL, cfg.WebhookToken, nil, timeout), nil
	case ProviderNone, "":
		return NewLogPusher(logger), nil
	}
	return nil, fmt.Errorf("unknown push provider %q", cfg.Provider)
}

// Snippet shortens content to at most limit runes for a notification body
func Snippet(content string, limit int) string {
	content = strings.TrimSpace(content)
	if limit <= 0 {
		return content
	}
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "…"
}

// LogPusher only records that a push would have been sent
type LogPusher struct {
	logger *logrus.Logger
}

func NewLogPusher(logger *logrus.Logger) *LogPusher {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogPusher{logger: logger}
}

func (p *LogPusher) Push(ctx context.Context, n Notification) error {
	p.logger.WithFields(logrus.Fields{
		"title":    n.Title,
		"has_icon": n.Icon != "",
	}).Debug("Push provider disabled, dropping notification")
	return nil
}

func (p *LogPusher) Close() error { return nil }
