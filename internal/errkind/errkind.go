// Package errkind defines the error taxonomy used across the runtime
// (§7). Errors are kinds, not types: any error can be tagged with a Kind
// via Wrap and inspected later with From, which lets the Gateway map an
// error to the right synthetic HTTP response without the caller having
// to know which package produced it.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy entries from spec.md §7.
type Kind int

const (
	// Unknown is the zero value: no kind was attached.
	Unknown Kind = iota
	NotFound
	Storage
	Crypto
	Parse
	Capability
	Timeout
	GuestRuntime
	DepthLimit
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Storage:
		return "storage"
	case Crypto:
		return "crypto"
	case Parse:
		return "parse"
	case Capability:
		return "capability"
	case Timeout:
		return "timeout"
	case GuestRuntime:
		return "guest_runtime"
	case DepthLimit:
		return "depth_limit"
	default:
		return "unknown"
	}
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// Wrap tags err with kind. Wrapping a nil error returns nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// Wrapf tags a newly-formatted error with kind.
func Wrapf(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

// From extracts the Kind attached to err, or Unknown if none was attached
// anywhere in the chain.
func From(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Unknown
}
