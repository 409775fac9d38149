package enums

// DeliveryStatus is the outcome of a best-effort notification.
type DeliveryStatus string

const (
	DeliveryStatusDelivered     DeliveryStatus = "delivered"
	DeliveryStatusUndeliverable DeliveryStatus = "undeliverable"
	// DeliveryStatusSkipped marks transitions that had nobody to notify.
	DeliveryStatusSkipped DeliveryStatus = "skipped"
)

// UndeliverableReason explains why a notification did not reach its recipient.
type UndeliverableReason string

const (
	ReasonNone           UndeliverableReason = ""
	ReasonUserUnknown    UndeliverableReason = "user_unknown"
	ReasonBlocked        UndeliverableReason = "blocked"
	ReasonTransportError UndeliverableReason = "transport_error"
	ReasonUnknown        UndeliverableReason = "unknown"
)

var undeliverableReasonLabels = map[UndeliverableReason]string{
	ReasonUserUnknown:    "user not found",
	ReasonBlocked:        "direct messages are closed",
	ReasonTransportError: "chat platform unavailable",
	ReasonUnknown:        "unknown error",
}

// Label is a short human readable description.
func (r UndeliverableReason) Label() string {
	if label, ok := undeliverableReasonLabels[r]; ok {
		return label
	}
	return string(r)
}

// MetricLabel never returns an empty string.
func (r UndeliverableReason) MetricLabel() string {
	if r == ReasonNone {
		return "none"
	}
	return string(r)
}
