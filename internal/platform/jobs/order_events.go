// Package jobs fans ledger events out to Pub/Sub subscribers.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/sauber-detailing/pos-api/internal/services"
)

// orderEventMessage is the JSON body published for each ledger change.
type orderEventMessage struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"orderId"`
	PaymentStatus string    `json:"paymentStatus,omitempty"`
	TotalMinor    int64     `json:"totalMinor"`
	Total         string    `json:"total"`
	OperatorName  string    `json:"operatorName,omitempty"`
	OperatorRole  string    `json:"operatorRole,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// PubSubOrderEventPublisher publishes order events to a Pub/Sub topic.
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.OrderEventPublisher = (*PubSubOrderEventPublisher)(nil)

// NewPubSubOrderEventPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order publisher: topic is required")
	}
	return &PubSubOrderEventPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishOrderEvent blocks until the server acknowledges the message.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order publisher: not initialised")
	}
	data, err := p.marshal(orderEventMessage{
		Type:          event.Type,
		OrderID:       event.OrderID,
		PaymentStatus: event.PaymentStatus,
		TotalMinor:    int64(event.Total),
		Total:         event.Total.Decimal(),
		OperatorName:  event.Operator.Name,
		OperatorRole:  event.Operator.Role,
		OccurredAt:    event.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string, 3)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "order_id", event.OrderID)
	setAttr(attrs, "payment_status", event.PaymentStatus)

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubOrderEventPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
