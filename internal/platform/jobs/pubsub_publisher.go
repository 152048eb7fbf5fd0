package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/pulsefit/api/internal/services"
)

// PubSubSettlementPublisher publishes settlement outcome events to a Pub/Sub topic.
type PubSubSettlementPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.SettlementEventPublisher = (*PubSubSettlementPublisher)(nil)

// NewPubSubSettlementPublisher constructs a Pub/Sub backed settlement event publisher.
func NewPubSubSettlementPublisher(topic *pubsub.Topic) (*PubSubSettlementPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub settlement publisher: topic is required")
	}
	return &PubSubSettlementPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishSettlementEvent enqueues a settlement event on the configured topic
// and returns the broker-assigned message id.
func (p *PubSubSettlementPublisher) PublishSettlementEvent(ctx context.Context, event services.SettlementEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub settlement publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal settlement event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "transactionId", event.TransactionID)
	setAttr(attrs, "userId", event.UserID)
	setAttr(attrs, "subscriptionId", event.SubscriptionID)
	setAttr(attrs, "status", event.Status)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish settlement event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
