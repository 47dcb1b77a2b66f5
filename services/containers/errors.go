package containers

import (
	"errors"
	"fmt"
)

// Input errors are attributable to the caller and never retried.
var (
	ErrUnknownKind       = errors.New("unknown container kind")
	ErrInvalidFieldValue = errors.New("invalid field value")
)

// MissingFieldError reports the first required field that was absent or
// empty, in the kind's declared field order.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// Resource errors indicate a template or content-store failure. They are
// surfaced to the caller with context but never retried here.
var (
	ErrTemplateUnavailable = errors.New("template unavailable")
	ErrPersistFailure      = errors.New("artifact persist failure")
)

// Token errors cover every way a download token can fail validation. All of
// them map to the same client-facing response; the distinction exists for
// logs and metrics only.
var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrIncompleteToken  = errors.New("token record incomplete")
	ErrOrderMismatch    = errors.New("token order mismatch")
	ErrTokenExpired     = errors.New("token expired")
	ErrArtifactMissing  = errors.New("artifact missing")
)

// IsInputError reports whether err was caused by invalid caller input.
func IsInputError(err error) bool {
	var missing *MissingFieldError
	return errors.Is(err, ErrUnknownKind) ||
		errors.Is(err, ErrInvalidFieldValue) ||
		errors.As(err, &missing)
}

// IsTokenError reports whether err belongs to the token validation taxonomy.
func IsTokenError(err error) bool {
	for _, target := range []error{
		ErrMalformedToken,
		ErrInvalidSignature,
		ErrIncompleteToken,
		ErrOrderMismatch,
		ErrTokenExpired,
		ErrArtifactMissing,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
