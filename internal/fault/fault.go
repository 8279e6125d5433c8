// Package fault classifies errors so callers can tell bad configuration
// apart from missing resources and numeric faults.
package fault

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unknown Kind = iota
	Configuration
	Resource
	Numeric
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Resource:
		return "resource"
	case Numeric:
		return "numeric"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func AsConfig(op string, err error) error   { return New(Configuration, op, err) }
func AsResource(op string, err error) error { return New(Resource, op, err) }
func AsNumeric(op string, err error) error  { return New(Numeric, op, err) }

// KindOf returns the outermost kind in the chain, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ExitCode maps a fault kind onto the process exit status used by the CLI.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case Configuration:
		return 2
	case Resource:
		return 3
	case Numeric:
		return 4
	default:
		return 1
	}
}
