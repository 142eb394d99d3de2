package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the version stamped on every envelope this package builds.
const EnvelopeVersion = 1

// MetadataSessionID carries the storefront session that caused a cart event,
// so downstream consumers can tie a storefront.cart.* event to a browser.
const MetadataSessionID = "session_id"

var (
	errMissingEventID   = errors.New("event envelope missing event_id")
	errMissingEventType = errors.New("event envelope missing event_type")
)

// Event is the envelope shared by every storefront topic. For cart events
// EventType is the topic (storefront.cart.synced, storefront.cart.merged),
// AggregateID is the user ID and Data holds the cart lines with their totals.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEvent builds an envelope with a fresh ID and a UTC timestamp. data is
// encoded as JSON; a nil data yields a JSON null payload.
func NewEvent(eventType, aggregateID, aggregateType, source string, data any) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       EnvelopeVersion,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          payload,
		Metadata:      make(map[string]string),
	}, nil
}

// WithCorrelationID sets the correlation ID of the request that caused the event.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithMetadata adds a key-value pair to the event metadata.
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// WithSessionID tags the event with the storefront session that caused it.
func (e *Event) WithSessionID(id string) *Event {
	return e.WithMetadata(MetadataSessionID, id)
}

// SessionID returns the storefront session recorded on the event, if any.
func (e *Event) SessionID() string {
	return e.Metadata[MetadataSessionID]
}

// Marshal serializes the event to JSON bytes.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent decodes an envelope. Envelopes without an ID or a type are
// rejected: the idempotency guard keys on the ID and handlers route on the type.
func UnmarshalEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if event.EventID == "" {
		return nil, errMissingEventID
	}
	if event.EventType == "" {
		return nil, errMissingEventType
	}
	return &event, nil
}

// UnmarshalData decodes the payload into target.
func (e *Event) UnmarshalData(target any) error {
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}
