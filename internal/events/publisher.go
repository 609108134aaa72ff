// Package events publishes account events (login, logout, balance changes) to a Watermill
// topic. Publishing is best-effort for callers: a lost event never undoes a committed change.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types.
const (
	TypeLogin          = "login"
	TypeLogout         = "logout"
	TypeBalanceChanged = "balance_changed"
)

// metadataType is the message metadata key carrying the event type.
const metadataType = "event_type"

// Event is the JSON payload of every account event. Amount and Balance are set only for
// balance_changed; they are decimal strings so no precision is lost on the wire.
type Event struct {
	Type       string    `json:"type"`
	AccountID  string    `json:"account_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Balance    string    `json:"balance,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher is the outbound port for account events.
type Publisher interface {
	PublishLogin(ctx context.Context, accountID, sessionID string) error
	PublishLogout(ctx context.Context, accountID, sessionID string) error
	PublishBalanceChanged(ctx context.Context, accountID string, amount, balance decimal.Decimal) error
}

// WatermillPublisher implements Publisher on a Watermill message.Publisher.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
	nowF      func() time.Time
}

// NewWatermillPublisher returns a Publisher sending every event to topic.
func NewWatermillPublisher(publisher message.Publisher, topic string) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// PublishLogin publishes a login event for a newly authenticated session.
func (p *WatermillPublisher) PublishLogin(ctx context.Context, accountID, sessionID string) error {
	return p.publish(ctx, Event{Type: TypeLogin, AccountID: accountID, SessionID: sessionID})
}

// PublishLogout publishes a logout event.
func (p *WatermillPublisher) PublishLogout(ctx context.Context, accountID, sessionID string) error {
	return p.publish(ctx, Event{Type: TypeLogout, AccountID: accountID, SessionID: sessionID})
}

// PublishBalanceChanged publishes the signed amount applied and the resulting balance.
func (p *WatermillPublisher) PublishBalanceChanged(ctx context.Context, accountID string, amount, balance decimal.Decimal) error {
	return p.publish(ctx, Event{
		Type:      TypeBalanceChanged,
		AccountID: accountID,
		Amount:    amount.StringFixed(2),
		Balance:   balance.StringFixed(2),
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, event Event) error {
	event.OccurredAt = p.nowF()
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	msg.Metadata.Set(metadataType, event.Type)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Decode parses an account event from a received message.
func Decode(msg *message.Message) (*Event, error) {
	var e Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", msg.UUID, err)
	}
	if e.Type == "" {
		e.Type = msg.Metadata.Get(metadataType)
	}
	return &e, nil
}

// NopPublisher discards every event. Used when no event stream is configured.
type NopPublisher struct{}

func (NopPublisher) PublishLogin(context.Context, string, string) error  { return nil }
func (NopPublisher) PublishLogout(context.Context, string, string) error { return nil }
func (NopPublisher) PublishBalanceChanged(context.Context, string, decimal.Decimal, decimal.Decimal) error {
	return nil
}
