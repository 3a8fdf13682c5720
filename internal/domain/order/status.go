package order

import "fmt"

// Status is the order lifecycle state. It is a closed enum: every mutation
// goes through the transition table below, never through ad hoc writes.
type Status string

const (
	// StatusProcessed is the initial state: stock reserved, payment taken.
	StatusProcessed Status = "PROCESSED"
	// StatusTransfer means the order was handed to the courier.
	StatusTransfer Status = "TRANSFER"
	// StatusDelivered means the order arrived.
	StatusDelivered Status = "DELIVERED"
	// StatusRefundPending means a cancel or refund request awaits a manager
	// decision. Stock is still committed to the order.
	StatusRefundPending Status = "REFUND_PENDING"
	// StatusCancelled is terminal: an unshipped order whose refund was
	// approved. Stock has been released exactly once.
	StatusCancelled Status = "CANCELLED"
	// StatusRefunded is terminal: a delivered order whose refund was
	// approved. Stock has been released exactly once.
	StatusRefunded Status = "REFUNDED"
)

// ParseStatus validates a raw status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusProcessed, StatusTransfer, StatusDelivered,
		StatusRefundPending, StatusCancelled, StatusRefunded:
		return Status(s), nil
	}
	return "", fmt.Errorf("invalid order status %q", s)
}

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// Fulfillment reports whether s is one of the courier-path states that the
// administrative status override may move between.
func (s Status) Fulfillment() bool {
	return s == StatusProcessed || s == StatusTransfer || s == StatusDelivered
}

// validNext is the complete transition graph. The fulfillment trio is fully
// connected for the administrative override; REFUND_PENDING is entered via
// cancel (from PROCESSED) or refund request (from DELIVERED) and left only
// by a manager decision.
var validNext = map[Status]map[Status]bool{
	StatusProcessed: {
		StatusTransfer:      true,
		StatusDelivered:     true,
		StatusRefundPending: true,
	},
	StatusTransfer: {
		StatusProcessed: true,
		StatusDelivered: true,
	},
	StatusDelivered: {
		StatusProcessed:     true,
		StatusTransfer:      true,
		StatusRefundPending: true,
	},
	StatusRefundPending: {
		StatusCancelled: true, // approve, origin PROCESSED
		StatusRefunded:  true, // approve, origin DELIVERED
		StatusProcessed: true, // reject, origin PROCESSED
		StatusDelivered: true, // reject, origin DELIVERED
	},
	StatusCancelled: {},
	StatusRefunded:  {},
}

// CanTransition reports whether from → to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// InvalidTransitionError reports an attempted state change that violates the
// transition table. From carries the order's current state for debuggability.
type InvalidTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid transition %s -> %s", e.OrderID, e.From, e.To)
}
