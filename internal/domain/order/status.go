package order

import "github.com/go-faster/errors"

// Status is the preparation stage of an order. Orders move strictly forward
// through the fixed sequence pending → preparing → ready → collected.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCollected Status = "collected"
)

// ErrIllegalTransition is returned when a status change would skip a stage,
// move backward, or advance past collected.
var ErrIllegalTransition = errors.New("illegal status transition")

// Next returns the successor status in the fixed sequence.
func (s Status) Next() (Status, error) {
	switch s {
	case StatusPending:
		return StatusPreparing, nil
	case StatusPreparing:
		return StatusReady, nil
	case StatusReady:
		return StatusCollected, nil
	case StatusCollected:
		return "", errors.Wrap(ErrIllegalTransition, "order already collected")
	default:
		return "", errors.Wrapf(ErrIllegalTransition, "unknown status %q", string(s))
	}
}

// Live reports whether an order with this status is still in the live set.
func (s Status) Live() bool {
	return s != StatusCollected
}

// Pending reports whether the order still awaits the kitchen (counted as a
// pending order in aggregate stats).
func (s Status) Pending() bool {
	return s == StatusPending || s == StatusPreparing
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusReady, StatusCollected:
		return true
	}
	return false
}
