package orders

import "fmt"

type Status string

const (
	StatusPending           Status = "pending"
	StatusConfirmed         Status = "confirmed"
	StatusProcessing        Status = "processing"
	StatusShipped           Status = "shipped"
	StatusDelivered         Status = "delivered"
	StatusCancelled         Status = "cancelled"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
)

// Only listed edges are legal. delivered -> partially_refunded / refunded
// and partially_refunded -> refunded are driven exclusively by refund
// completion, never by a direct status update.
var validNext = map[Status]map[Status]bool{
	StatusPending:           {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:         {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing:        {StatusShipped: true, StatusCancelled: true},
	StatusShipped:           {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:         {StatusRefunded: true, StatusPartiallyRefunded: true},
	StatusPartiallyRefunded: {StatusRefunded: true},
	StatusRefunded:          {},
	StatusCancelled:         {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) IsTerminal() bool {
	return len(validNext[s]) == 0
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// InvalidTransitionError is a programming or race error. It is surfaced,
// never silently ignored.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition %s -> %s", e.From, e.To)
}
