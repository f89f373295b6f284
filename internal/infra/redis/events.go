package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/internal/ledger"
	"github.com/kislikjeka/pesaprime/pkg/logger"
)

// EventsChannel is the pub/sub channel ledger events are published on
const EventsChannel = KeyPrefix + "ledger:events"

// EventMessage is the wire form of a ledger event
type EventMessage struct {
	Type       string          `json:"type"`
	EntryID    uuid.UUID       `json:"entry_id"`
	AccountID  uuid.UUID       `json:"account_id"`
	Kind       string          `json:"kind"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference"`
	PositionID *uuid.UUID      `json:"position_id,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Publisher publishes committed ledger events over Redis pub/sub
type Publisher struct {
	client  *redis.Client
	channel string
	logger  *logger.Logger
}

var _ ledger.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a publisher on EventsChannel
func NewPublisher(client *redis.Client, log *logger.Logger) *Publisher {
	return &Publisher{
		client:  client,
		channel: EventsChannel,
		logger:  logger.OrNop(log).WithField("component", "event_publisher"),
	}
}

// Publish sends one event. Delivery is at most once.
func (p *Publisher) Publish(ctx context.Context, event ledger.Event) error {
	msg := EventMessage{
		Type:       string(event.Type),
		EntryID:    event.Entry.ID,
		AccountID:  event.Entry.AccountID,
		Kind:       string(event.Entry.Kind),
		Status:     string(event.Entry.Status),
		Amount:     event.Entry.Amount,
		Reference:  event.Entry.Reference,
		PositionID: event.Entry.PositionID,
		Reason:     event.Reason,
		OccurredAt: event.OccurredAt,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Error("event publish failed", "type", msg.Type, "reference", msg.Reference, "error", err)
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe delivers decoded events to handle until ctx is cancelled.
// Malformed messages are logged and skipped.
func (p *Publisher) Subscribe(ctx context.Context, handle func(EventMessage)) error {
	sub := p.client.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", p.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg EventMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				p.logger.Warn("dropping malformed event", "error", err)
				continue
			}
			handle(msg)
		}
	}
}

// EventRecorder receives one call per delivered ledger event
type EventRecorder interface {
	RecordLedgerEvent(eventType, kind string)
}

// Observe subscribes to the event channel and feeds every delivered event
// to rec until ctx is cancelled.
func (p *Publisher) Observe(ctx context.Context, rec EventRecorder) error {
	return p.Subscribe(ctx, func(m EventMessage) {
		rec.RecordLedgerEvent(m.Type, m.Kind)
		p.logger.Debug("ledger event received",
			"type", m.Type,
			"kind", m.Kind,
			"account_id", m.AccountID,
			"reference", m.Reference,
		)
	})
}
