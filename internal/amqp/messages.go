package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"kidcash/internal/core"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// EventType names a domain event published by the stores.
type EventType string

const (
	EventTransactionCreated   EventType = "transaction.created"
	EventRequestCreated       EventType = "request.created"
	EventRequestStatusChanged EventType = "request.status_changed"
	EventGoalCreated          EventType = "goal.created"
	EventGoalContributed      EventType = "goal.contributed"
	EventGoalCompleted        EventType = "goal.completed"
	EventRuleChanged          EventType = "rule.changed"
	EventSettingsChanged      EventType = "settings.changed"
)

// Event is the envelope carried on the queue. Payload holds the JSON of
// one of the payload types below, chosen by Type.
type Event struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// GoalContribution is the payload of goal.contributed.
type GoalContribution struct {
	Goal   core.SavingsGoal `json:"goal"`
	Amount core.Money       `json:"amount"`
}

// Rule change actions.
const (
	RuleAdded   = "added"
	RuleUpdated = "updated"
	RuleDeleted = "deleted"
	RuleToggled = "toggled"
)

// RuleChange is the payload of rule.changed.
type RuleChange struct {
	Action   string          `json:"action"`
	FamilyID string          `json:"familyId"`
	Rule     core.FamilyRule `json:"rule"`
}

// NewEvent wraps payload in a fresh envelope.
func NewEvent(t EventType, payload any, now time.Time) (*Event, error) {
	body, err := codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: now.UTC(),
		Payload:    body,
	}, nil
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return codec.Marshal(e)
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return errors.New("event has no payload")
	}
	return codec.Unmarshal(e.Payload, v)
}

// EventFromJSON parses an event and rejects envelopes without id or type.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := codec.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.ID == "" || e.Type == "" {
		return nil, errors.New("event missing id or type")
	}
	return &e, nil
}
