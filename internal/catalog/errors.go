package catalog

import (
	"errors"
	"fmt"
	"strings"
)

type Phase string

const (
	PhaseValidate Phase = "validate"
	PhasePersist  Phase = "persist"
)

var (
	// ErrTransport matches any *TransportError.
	ErrTransport = errors.New("catalog unreachable")
	// ErrRejected matches *ValidationError and *PersistError.
	ErrRejected = errors.New("catalog rejected product")
)

// TransportError is a failure to get any response: dial, TLS, timeout or a
// broken body read.
type TransportError struct {
	Phase Phase
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("catalog %s request failed: %v", e.Phase, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ValidationError carries the non-2xx answer of the validate endpoint.
type ValidationError struct {
	Status int
	Body   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("product was not validated, catalog returned %d: %s", e.Status, bodyText(e.Body))
}

func (e *ValidationError) Is(target error) bool { return target == ErrRejected }

// PersistError means the add endpoint refused a product that had just
// passed validation.
type PersistError struct {
	Status int
	Body   string
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("product was not imported, catalog returned %d: %s", e.Status, bodyText(e.Body))
}

func (e *PersistError) Is(target error) bool { return target == ErrRejected }

func bodyText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(empty body)"
	}
	return s
}
