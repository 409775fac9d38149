package notifications

import "github.com/angelmondragon/guildmarket/pkg/enums"

// Result is the outcome of one notification attempt. Callers inspect it
// instead of handling an error: delivery never affects committed state.
type Result struct {
	Status enums.DeliveryStatus
	Reason enums.UndeliverableReason
	Err    error
}

func Delivered() Result {
	return Result{Status: enums.DeliveryStatusDelivered}
}

func Undeliverable(reason enums.UndeliverableReason, err error) Result {
	if reason == enums.ReasonNone {
		reason = enums.ReasonUnknown
	}
	return Result{Status: enums.DeliveryStatusUndeliverable, Reason: reason, Err: err}
}

// Skipped is used when there was nobody to notify.
func Skipped() Result {
	return Result{Status: enums.DeliveryStatusSkipped}
}

func (r Result) IsDelivered() bool {
	return r.Status == enums.DeliveryStatusDelivered
}

func (r Result) IsUndeliverable() bool {
	return r.Status == enums.DeliveryStatusUndeliverable
}
