package zone

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the category sentinel for all fatal configuration
// errors. Every typed error in this file unwraps to it, so callers can gate
// on errors.Is(err, ErrConfiguration) to distinguish bad documents from
// runtime failures.
var ErrConfiguration = errors.New("configuration error")

// FieldError reports a missing or invalid field in a zone document.
type FieldError struct {
	Document string
	Field    string
	Value    string
	Message  string
}

func (e *FieldError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: field %s=%q: %s", e.Document, e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("%s: field %s: %s", e.Document, e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return ErrConfiguration }

// NewMissingFieldError reports a required field absent from a document.
func NewMissingFieldError(document, field string) error {
	return &FieldError{Document: document, Field: field, Message: "required but not set"}
}

// DuplicateZoneError reports two documents declaring the same zone_name.
type DuplicateZoneError struct {
	ZoneName string
	Document string
	Existing string
}

func (e *DuplicateZoneError) Error() string {
	return fmt.Sprintf("%s: zone %q already declared by %s", e.Document, e.ZoneName, e.Existing)
}

func (e *DuplicateZoneError) Unwrap() error { return ErrConfiguration }

// DuplicateRecordError reports two declared records in one document that
// reduce to the same identity key. The differ addresses records by key, so
// colliding records cannot both be managed.
type DuplicateRecordError struct {
	Document string
	ZoneName string
	Key      string
}

func (e *DuplicateRecordError) Error() string {
	return fmt.Sprintf("%s: zone %s: records collide on identity key %q", e.Document, e.ZoneName, e.Key)
}

func (e *DuplicateRecordError) Unwrap() error { return ErrConfiguration }

// UnknownTunnelError reports a TUNNEL record referencing a tunnel name
// defined in neither the zone-scoped nor the global tunnel registry.
type UnknownTunnelError struct {
	ZoneName string
	Record   string
	Tunnel   string
}

func (e *UnknownTunnelError) Error() string {
	return fmt.Sprintf("zone %s: record %s: unknown tunnel %q", e.ZoneName, e.Record, e.Tunnel)
}

func (e *UnknownTunnelError) Unwrap() error { return ErrConfiguration }

// UnsupportedProxyTypeError reports proxied=true on a record type the proxy
// cannot serve. Only A, AAAA and CNAME records may be proxied.
type UnsupportedProxyTypeError struct {
	ZoneName string
	Record   string
	Type     string
}

func (e *UnsupportedProxyTypeError) Error() string {
	return fmt.Sprintf("zone %s: record %s: type %s cannot be proxied (only A, AAAA, CNAME)",
		e.ZoneName, e.Record, e.Type)
}

func (e *UnsupportedProxyTypeError) Unwrap() error { return ErrConfiguration }

// IsConfiguration reports whether err is a fatal configuration error that
// must block the run before any apply.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
