package registry

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a package or version does not exist or its
// identity is malformed. Callers cannot tell the two apart.
var ErrNotFound = errors.New("not found")

// NotFoundError wraps ErrNotFound with the identity that was requested
type NotFoundError struct {
	Package string
	Version string
	Reason  string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("package %s not found", e.Package)
	if e.Version != "" {
		msg = fmt.Sprintf("package %s version %s not found", e.Package, e.Version)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
