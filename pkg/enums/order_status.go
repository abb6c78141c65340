package enums

import "fmt"

// OrderStatus tracks the lifecycle of a seller-scoped order.
type OrderStatus string

const (
	OrderStatusUnpaid         OrderStatus = "unpaid"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusReturning      OrderStatus = "returning"
	OrderStatusRefunded       OrderStatus = "refunded"
	OrderStatusReturnRejected OrderStatus = "return_rejected"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusUnpaid,
	OrderStatusPaid,
	OrderStatusPreparing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusReturning,
	OrderStatusRefunded,
	OrderStatusReturnRejected,
}

// orderTransitions holds every allowed forward edge. Transitions are
// one-directional; the return flow is the only path out of delivered
// besides completion.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusUnpaid:    {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusShipped},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusDelivered: {OrderStatusCompleted, OrderStatusReturning},
	OrderStatusReturning: {OrderStatusRefunded, OrderStatusReturnRejected},
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the status machine allows moving to next.
func (o OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[o] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (o OrderStatus) IsTerminal() bool {
	return len(orderTransitions[o]) == 0
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
