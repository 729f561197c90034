package models

import "fmt"

// OrderStatus is the delivery lifecycle state of an order.
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

// statusAliases maps the status strings the legacy deployment stored in
// Arabic onto their canonical values. Requests carrying either form parse
// to the same state.
var statusAliases = map[string]OrderStatus{
	"pending":          StatusPending,
	"out_for_delivery": StatusOutForDelivery,
	"delivered":        StatusDelivered,
	"cancelled":        StatusCancelled,
	"قيد الانتظار":     StatusPending,
	"قيد التوصيل":      StatusOutForDelivery,
	"تم التوصيل":       StatusDelivered,
	"ملغي":             StatusCancelled,
}

// transitions is the set of legal next states per state. Delivered allows
// only the self-transition so that repeated delivery confirmations stay
// idempotent instead of failing; Cancelled is terminal.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:        {StatusOutForDelivery, StatusDelivered, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered, StatusCancelled},
	StatusDelivered:      {StatusDelivered},
	StatusCancelled:      {},
}

// ParseStatus resolves a request status string (canonical or legacy alias)
// to an OrderStatus.
func ParseStatus(s string) (OrderStatus, error) {
	if status, ok := statusAliases[s]; ok {
		return status, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// CanTransition reports whether an order in status s may move to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}
