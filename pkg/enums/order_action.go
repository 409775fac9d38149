package enums

import "fmt"

// OrderAction is an operation a capability holder may request on an order.
type OrderAction string

const (
	OrderActionConfirm OrderAction = "confirm"
	OrderActionCancel  OrderAction = "cancel"
)

// allowedActions lists what each role may do with a capability.
var allowedActions = map[ActorRole][]OrderAction{
	ActorRoleSupplier: {OrderActionConfirm, OrderActionCancel},
	ActorRoleCustomer: {OrderActionCancel},
}

// AllowedFor reports whether role may perform the action.
func (a OrderAction) AllowedFor(role ActorRole) bool {
	for _, candidate := range allowedActions[role] {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOrderAction converts raw input into an OrderAction.
func ParseOrderAction(value string) (OrderAction, error) {
	switch OrderAction(value) {
	case OrderActionConfirm, OrderActionCancel:
		return OrderAction(value), nil
	}
	return "", fmt.Errorf("invalid order action %q", value)
}
