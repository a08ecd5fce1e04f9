package routing

import (
	"errors"
	"fmt"
)

// The fault taxonomy shared by every decision engine.
// None of these are recoverable inside the routing layer;
// the host runtime decides whether the offending event or the whole run aborts.
var (
	// ErrConfiguration indicates an unresolvable or invalid setting,
	// such as an unknown strategy selector.
	ErrConfiguration = errors.New("configuration fault")

	// ErrProtocolViolation indicates the host delivered events out of contract,
	// e.g. a contact down without a matching contact up.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrTypeMismatch indicates a peer's installed engine is not of the
	// family the caller expected. It is a kind of ErrProtocolViolation.
	ErrTypeMismatch = fmt.Errorf("%w: engine family mismatch", ErrProtocolViolation)

	// ErrBounds indicates a draw count larger than the available ranked window.
	ErrBounds = errors.New("bounds fault")
)

// FaultKind classifies err into the taxonomy above for logging and metrics.
// It returns "none" for nil and "other" for errors outside the taxonomy.
func FaultKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, ErrProtocolViolation):
		return "protocol_violation"
	case errors.Is(err, ErrBounds):
		return "bounds"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "other"
	}
}

// IsFault reports whether err belongs to the fault taxonomy. Host errors
// such as unknown nodes or a clock moving backwards do not.
func IsFault(err error) bool {
	return errors.Is(err, ErrProtocolViolation) ||
		errors.Is(err, ErrBounds) ||
		errors.Is(err, ErrConfiguration)
}
