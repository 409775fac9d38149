package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/angelmondragon/guildmarket/pkg/config"
	"github.com/angelmondragon/guildmarket/pkg/db/models"
	"github.com/angelmondragon/guildmarket/pkg/enums"
	"github.com/angelmondragon/guildmarket/pkg/outbox"
	"github.com/angelmondragon/guildmarket/pkg/outbox/payloads"
)

// ErrUnroutable marks rows whose event or aggregate type has no route.
var ErrUnroutable = errors.New("no route for event")

// EventDescriptor links an event type to its aggregate, topic and payload type.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a decoded outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError tells the publisher to dead-letter the row at once.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

type route struct {
	event     enums.OutboxEventType
	aggregate enums.OutboxAggregateType
	topicKey  string
	payload   func() any
}

var routes = []route{
	{enums.EventSupplierRegistered, enums.AggregateSupplier, config.TopicKeySuppliers, func() any { return &payloads.SupplierRegisteredEvent{} }},
	{enums.EventListingUpserted, enums.AggregateListing, config.TopicKeyListings, func() any { return &payloads.ListingUpsertedEvent{} }},
	{enums.EventListingUpdated, enums.AggregateListing, config.TopicKeyListings, func() any { return &payloads.ListingUpdatedEvent{} }},
	{enums.EventListingsMerged, enums.AggregateListing, config.TopicKeyListings, func() any { return &payloads.ListingsMergedEvent{} }},
	{enums.EventListingRemoved, enums.AggregateListing, config.TopicKeyListings, func() any { return &payloads.ListingRemovedEvent{} }},
	{enums.EventOrderPlaced, enums.AggregateOrder, config.TopicKeyOrders, func() any { return &payloads.OrderPlacedEvent{} }},
	{enums.EventOrderCompleted, enums.AggregateOrder, config.TopicKeyOrders, func() any { return &payloads.OrderCompletedEvent{} }},
	{enums.EventOrderCancelled, enums.AggregateOrder, config.TopicKeyOrders, func() any { return &payloads.OrderCancelledEvent{} }},
}

// EventRegistry maps each event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry binds every route to a topic name from topics, which is
// keyed by config.TopicKey*. A route without a topic is a config error.
func NewEventRegistry(topics map[string]string) (*EventRegistry, error) {
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(routes))}
	for _, rt := range routes {
		topic := strings.TrimSpace(topics[rt.topicKey])
		if topic == "" {
			return nil, fmt.Errorf("%s topic is required", rt.topicKey)
		}
		reg.entries[rt.event] = EventDescriptor{
			EventType:      rt.event,
			AggregateType:  rt.aggregate,
			Topic:          topic,
			PayloadFactory: rt.payload,
		}
	}
	return reg, nil
}

// Topics lists the distinct topics, sorted.
func (r *EventRegistry) Topics() []string {
	set := make(map[string]struct{})
	for _, desc := range r.entries {
		set[desc.Topic] = struct{}{}
	}
	topics := make([]string, 0, len(set))
	for topic := range set {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Resolve routes the row and decodes its typed payload. Every failure is
// non-retryable since the row will not change between attempts.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("%w: event type %q", ErrUnroutable, event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("%w: %s belongs to %s, row says %s",
			ErrUnroutable, event.EventType, desc.AggregateType, event.AggregateType))
	}
	if strings.TrimSpace(event.AggregateID) == "" {
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
