package provider

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for provider operations.
var (
	// ErrZoneNotFound indicates the provider does not host the zone.
	ErrZoneNotFound = errors.New("zone not found")

	// ErrRecordNotFound indicates a record was not found.
	ErrRecordNotFound = errors.New("record not found")

	// ErrUnauthorized indicates authentication or authorization failed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTransient indicates a temporary provider failure (rate limit,
	// timeout, 5xx) that is safe to retry.
	ErrTransient = errors.New("transient provider error")

	// ErrValidation indicates the provider rejected the request as invalid.
	// Never retried; typically a routing policy missing its set identifier
	// or malformed record content.
	ErrValidation = errors.New("provider validation error")
)

// ApplyError reports a create/update/delete rejected by a provider. It is
// isolated to the offending record: reconciliation of other records and
// zones continues, but the run as a whole is reported non-zero.
type ApplyError struct {
	Provider  string
	Zone      string
	RecordKey string
	Operation string
	Err       error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("provider %s: zone %s: %s %s: %v",
		e.Provider, e.Zone, e.Operation, e.RecordKey, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// WrapApply wraps a provider failure with the zone, record key, and
// operation it belongs to. Returns nil for a nil error.
func WrapApply(provider, zoneName, key, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ApplyError{
		Provider:  provider,
		Zone:      zoneName,
		RecordKey: key,
		Operation: op,
		Err:       err,
	}
}

// IsTransient reports whether err is safe to retry: an explicit transient
// marker or a context deadline from a slow provider call.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

// IsValidation reports whether the provider rejected the request as invalid.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsZoneNotFound reports whether the provider does not host the zone.
func IsZoneNotFound(err error) bool {
	return errors.Is(err, ErrZoneNotFound)
}
