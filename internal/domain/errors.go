package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrVerificationFailed  = errors.New("verification failed")
	ErrSignatureInvalid    = errors.New("signature invalid")
	ErrUnsupportedClaim    = errors.New("unsupported claim type")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
)

type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field violation found in a request, not only
// the first one.
type ValidationError struct {
	Violations []Violation
}

func NewValidationError(violations ...Violation) *ValidationError {
	return &ValidationError{Violations: violations}
}

func (e *ValidationError) Add(field, message string) {
	e.Violations = append(e.Violations, Violation{Field: field, Message: message})
}

func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Violations) == 0
}

// OrNil returns nil when no violation was recorded so callers can return it
// directly as an error.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	if e.Empty() {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// IsRetryable reports whether err came from an upstream dependency that may
// succeed on a later attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrUpstreamTimeout)
}
