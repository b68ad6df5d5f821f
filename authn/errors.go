package authn

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotSupported is returned for operations the active backend does
	// not implement.
	ErrNotSupported = errors.New("not supported for this auth method")
	// ErrRealmMismatch indicates a stored session belonged to another
	// realm and was destroyed.
	ErrRealmMismatch = errors.New("stored realm does not match tenant realm")
	// ErrInteractionInProgress indicates a silent re-authentication was
	// requested while an interactive redirect is already in flight.
	ErrInteractionInProgress = errors.New("identity provider interaction in progress")
)

// ValidationError marks a missing or malformed login parameter.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s is required", e.Field)
}
