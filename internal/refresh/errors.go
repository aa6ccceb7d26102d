package refresh

import "errors"

var (
	// ErrQueueFull is returned immediately when a caller arrives while a
	// flight is in transit and the waiter queue is already at capacity.
	ErrQueueFull = errors.New("refresh: too many pending requests")

	// ErrFlightTimeout is delivered to every caller of a flight whose
	// timeout elapsed before the underlying refresh call settled.
	ErrFlightTimeout = errors.New("refresh: flight timed out")

	// ErrNoRunner is returned when the coordinator has no flight body
	// configured.
	ErrNoRunner = errors.New("refresh: no runner configured")
)
