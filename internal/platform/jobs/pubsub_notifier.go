package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/easy-khana/api/internal/services"
)

// PubSubNotifier publishes customer notifications to a Pub/Sub topic consumed by the mail worker.
type PubSubNotifier struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubNotifier constructs a Pub/Sub backed notifier.
func NewPubSubNotifier(topic *pubsub.Topic) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub notifier: topic is required")
	}
	return &PubSubNotifier{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

type notificationMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Kind    string `json:"kind,omitempty"`
	OrderID string `json:"orderId,omitempty"`
}

// Send publishes the notification and waits for the server ack.
func (p *PubSubNotifier) Send(ctx context.Context, notification services.Notification) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub notifier: not initialised")
	}
	if strings.TrimSpace(notification.To) == "" {
		return errors.New("pubsub notifier: recipient is required")
	}

	data, err := p.marshal(notificationMessage{
		To:      strings.TrimSpace(notification.To),
		Subject: notification.Subject,
		Body:    notification.Body,
		Kind:    string(notification.Kind),
		OrderID: notification.OrderID,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "kind", string(notification.Kind))
	setAttr(attrs, "orderId", notification.OrderID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Stop flushes buffered messages.
func (p *PubSubNotifier) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

var _ services.Notifier = (*PubSubNotifier)(nil)
