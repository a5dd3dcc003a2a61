package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol marks a contract mismatch with the server. It is fatal to the
	// current dispatch cycle and always propagates to the dispatcher's caller.
	ErrProtocol = errors.New("protocol: contract violation")

	ErrUnknownNotification = fmt.Errorf("%w: unknown notification", ErrProtocol)
	ErrMalformedEnvelope   = fmt.Errorf("%w: malformed envelope", ErrProtocol)
	ErrMalformedPayload    = fmt.Errorf("%w: malformed payload", ErrProtocol)
	ErrValueCoercion       = fmt.Errorf("%w: value coercion failed", ErrProtocol)
	ErrInvalidHandle       = fmt.Errorf("%w: invalid handle", ErrProtocol)

	// ErrStaleReference marks a notification naming a handle that is no longer
	// registered. Handlers log and drop these; the session continues.
	ErrStaleReference = errors.New("protocol: stale reference")

	// ErrCapabilityMismatch marks a handle that exists but lacks the capability
	// the notification requires (for example a non-input plug as a connection target).
	ErrCapabilityMismatch = errors.New("protocol: capability mismatch")
)

// Error classes reported by Classify.
const (
	ClassNone               = "none"
	ClassProtocol           = "protocol"
	ClassStaleReference     = "stale_reference"
	ClassCapabilityMismatch = "capability_mismatch"
	ClassOther              = "other"
)

// Classify maps err onto its taxonomy class.
func Classify(err error) string {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrProtocol):
		return ClassProtocol
	case errors.Is(err, ErrStaleReference):
		return ClassStaleReference
	case errors.Is(err, ErrCapabilityMismatch):
		return ClassCapabilityMismatch
	default:
		return ClassOther
	}
}
