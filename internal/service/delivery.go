package service

import (
	"context"
	"time"

	"collabchat/internal/constants"
	"collabchat/internal/errors"
	"collabchat/internal/features"
	"collabchat/internal/metrics"
	"collabchat/internal/models"
	"collabchat/pkg/circuitbreaker"
	"collabchat/pkg/notify"

	"github.com/sirupsen/logrus"
)

// Realtime event names pushed to recipients
const (
	EventNewMessage      = "newMessage"
	EventNewGroupMessage = "newGroupMessage"
	EventMessageSeen     = "messageSeen"
)

// DeviceDirectory resolves a user's push token
type DeviceDirectory interface {
	FindDeviceToken(ctx context.Context, userID string) (token string, ok bool, err error)
}

// MuteChecker reports whether a recipient silenced a conversation
type MuteChecker interface {
	IsPrivateChatMuted(ctx context.Context, userID, chatUserID string, at time.Time) (bool, error)
	IsGroupChatMuted(ctx context.Context, userID, groupID string, at time.Time) (bool, error)
}

// FeatureChecker gates optional behavior
type FeatureChecker interface {
	IsEnabled(flagName string) bool
}

// DeliveryOutcome records how a message reached, or did not reach, one recipient
type DeliveryOutcome string

const (
	DeliveredLive   DeliveryOutcome = "live"
	DeliveredPush   DeliveryOutcome = "push"
	DeliveryMuted   DeliveryOutcome = "muted"
	DeliverySkipped DeliveryOutcome = "skipped"
	DeliveryFailed  DeliveryOutcome = "failed"
)

// Delivery decides between a live event and an offline push for each
// recipient of a persisted message. It never fails the caller: the message is
// already stored and the recipient will see it in their history.
type Delivery struct {
	registry Registry
	devices  DeviceDirectory
	mutes    MuteChecker
	pusher   notify.Pusher
	breaker  *circuitbreaker.CircuitBreaker
	flags    FeatureChecker
	logger   *logrus.Logger
	errLog   *errors.Logger
	now      func() time.Time
}

// NewDelivery wires the delivery path. A nil pusher disables offline push.
func NewDelivery(registry Registry, devices DeviceDirectory, mutes MuteChecker, pusher notify.Pusher,
	breaker *circuitbreaker.CircuitBreaker, flags FeatureChecker, logger *logrus.Logger) *Delivery {
	if logger == nil {
		logger = logrus.New()
	}
	if breaker == nil {
		breaker = circuitbreaker.New("push", constants.DefaultPushBreakerFailures,
			time.Duration(constants.DefaultPushBreakerTimeoutSec)*time.Second, circuitbreaker.WithLogger(logger))
	}
	return &Delivery{
		registry: registry,
		devices:  devices,
		mutes:    mutes,
		pusher:   pusher,
		breaker:  breaker,
		flags:    flags,
		logger:   logger,
		errLog:   errors.NewLogger(logger),
		now:      time.Now,
	}
}

// DeliverPrivate pushes newMessage to the receiver. The sender gets nothing.
func (d *Delivery) DeliverPrivate(ctx context.Context, msg *models.PrivateMessage) DeliveryOutcome {
	n := notify.Notification{
		Title: msg.Sender.DisplayName(),
		Body:  notify.Snippet(msg.Content, constants.DefaultPushSnippetLength),
		Data: map[string]string{
			"kind":      string(models.KindPrivate),
			"messageId": msg.ID,
			"senderId":  msg.SenderID,
		},
	}
	if msg.Sender != nil {
		n.Icon = msg.Sender.AvatarURL
	}

	muted := func(ctx context.Context) (bool, error) {
		return d.mutes.IsPrivateChatMuted(ctx, msg.ReceiverID, msg.SenderID, d.now())
	}
	return d.deliver(ctx, msg.ReceiverID, EventNewMessage, msg, muted, n)
}

// DeliverGroup pushes newGroupMessage to every member except the sender
func (d *Delivery) DeliverGroup(ctx context.Context, msg *models.GroupMessage, memberIDs []string) map[string]DeliveryOutcome {
	outcomes := make(map[string]DeliveryOutcome, len(memberIDs))
	for _, memberID := range memberIDs {
		if memberID == msg.SenderID {
			continue
		}

		n := notify.Notification{
			Title: msg.Sender.DisplayName(),
			Body:  notify.Snippet(msg.Content, constants.DefaultPushSnippetLength),
			Data: map[string]string{
				"kind":      string(models.KindGroup),
				"messageId": msg.ID,
				"groupId":   msg.GroupID,
			},
		}
		if msg.Sender != nil {
			n.Icon = msg.Sender.AvatarURL
		}

		recipient := memberID
		muted := func(ctx context.Context) (bool, error) {
			return d.mutes.IsGroupChatMuted(ctx, recipient, msg.GroupID, d.now())
		}
		outcomes[memberID] = d.deliver(ctx, memberID, EventNewGroupMessage, msg, muted, n)
	}
	return outcomes
}

// NotifyLive sends an event only when userID is connected. It reports
// whether the event was written.
func (d *Delivery) NotifyLive(ctx context.Context, userID, event string, payload interface{}) bool {
	conn, ok := d.registry.Lookup(userID)
	if !ok {
		return false
	}
	if err := conn.Send(ctx, event, payload); err != nil {
		d.logger.WithError(err).WithFields(logrus.Fields{
			LogFieldEvent:        event,
			LogFieldConnectionID: conn.ID(),
		}).Debug("Failed to send live event")
		return false
	}
	return true
}

func (d *Delivery) deliver(ctx context.Context, recipientID, event string, payload interface{},
	muted func(context.Context) (bool, error), n notify.Notification) DeliveryOutcome {
	outcome := d.resolve(ctx, recipientID, event, payload, muted, n)
	metrics.IncrementCounter("message_deliveries_total",
		map[string]string{"event": event, "outcome": string(outcome)},
		"Message deliveries by outcome")
	return outcome
}

func (d *Delivery) resolve(ctx context.Context, recipientID, event string, payload interface{},
	muted func(context.Context) (bool, error), n notify.Notification) DeliveryOutcome {
	if d.NotifyLive(ctx, recipientID, event, payload) {
		return DeliveredLive
	}

	if d.pusher == nil || (d.flags != nil && !d.flags.IsEnabled(features.FlagOfflinePush)) {
		return DeliverySkipped
	}

	log := d.logger.WithFields(logrus.Fields{
		LogFieldEvent:  event,
		LogFieldUserID: SanitizeUserID(recipientID),
	})

	isMuted, err := muted(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to check mute, sending push anyway")
	} else if isMuted {
		log.Debug("Skipping push: conversation muted")
		return DeliveryMuted
	}

	token, ok, err := d.devices.FindDeviceToken(ctx, recipientID)
	if err != nil {
		log.WithError(err).Warn("Failed to resolve device token")
		return DeliveryFailed
	}
	if !ok {
		log.Debug("Skipping push: no registered device")
		return DeliverySkipped
	}
	n.Token = token

	err = d.breaker.Execute(ctx, func(ctx context.Context) error {
		return d.pusher.Push(ctx, n)
	})
	if err != nil {
		if circuitbreaker.IsCircuitBreakerError(err) {
			log.Debug("Skipping push: provider circuit open")
		} else {
			d.errLog.LogRetryableError(err, "Failed to send push notification", logrus.Fields{
				LogFieldEvent:  event,
				LogFieldUserID: SanitizeUserID(recipientID),
			})
		}
		return DeliveryFailed
	}
	return DeliveredPush
}
