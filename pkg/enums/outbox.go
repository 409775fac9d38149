package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateSupplier OutboxAggregateType = "supplier"
	AggregateListing  OutboxAggregateType = "listing"
	AggregateOrder    OutboxAggregateType = "order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateSupplier,
	AggregateListing,
	AggregateOrder,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event written to outbox_events.
type OutboxEventType string

const (
	EventSupplierRegistered OutboxEventType = "supplier_registered"
	EventListingUpserted    OutboxEventType = "listing_upserted"
	EventListingUpdated     OutboxEventType = "listing_updated"
	EventListingsMerged     OutboxEventType = "listings_merged"
	EventListingRemoved     OutboxEventType = "listing_removed"
	EventOrderPlaced        OutboxEventType = "order_placed"
	EventOrderCompleted     OutboxEventType = "order_completed"
	EventOrderCancelled     OutboxEventType = "order_cancelled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventSupplierRegistered,
	EventListingUpserted,
	EventListingUpdated,
	EventListingsMerged,
	EventListingRemoved,
	EventOrderPlaced,
	EventOrderCompleted,
	EventOrderCancelled,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
