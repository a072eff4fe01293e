// Package errkind enumerates the core's error taxonomy so callers can
// branch on what kind of failure occurred without string matching.
// Kinds describe failure semantics, not Go types: a single Wrap
// carries a Kind alongside the underlying error, and callers use
// errors.As to recover it.
package errkind

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the runtime should react to it.
type Kind int

const (
	// Unknown is the zero value; treat as a TransientIOError.
	Unknown Kind = iota

	// Precondition covers a missing workspace, a locked instance, or
	// tracked secrets. Fatal at startup; the process exits non-zero.
	Precondition

	// ProviderUnavailable means no ready inference provider exists.
	// Not fatal: chat falls back to a diagnostic status string and
	// Type2 uses heuristics.
	ProviderUnavailable

	// ProviderExecution means a specific provider attempt failed or
	// timed out. Recovered locally by the fallback chain; surfaced to
	// the caller only if every provider fails.
	ProviderExecution

	// TransientIO covers an event log write, sensor fetch, or
	// subprocess spawn glitch. Logged as a warn event; the operation
	// retries on its next cadence.
	TransientIO

	// OperatorInput means a malformed command or argument. Surfaced
	// inline to the operator; never raised past the router.
	OperatorInput

	// BudgetExhausted means Type2's daily budget is consumed. Recorded
	// as a warn event; the task is dropped for the day.
	BudgetExhausted

	// SubprocessTimeout means a bounded wait expired and the child was
	// killed. The caller receives ProviderExecution or a similar
	// summary.
	SubprocessTimeout
)

// String renders the kind's taxonomy name, not a Go type name.
func (k Kind) String() string {
	switch k {
	case Precondition:
		return "PreconditionFailure"
	case ProviderUnavailable:
		return "ProviderUnavailable"
	case ProviderExecution:
		return "ProviderExecutionError"
	case TransientIO:
		return "TransientIOError"
	case OperatorInput:
		return "OperatorInputError"
	case BudgetExhausted:
		return "BudgetExhausted"
	case SubprocessTimeout:
		return "SubprocessTimeout"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with a Kind. Use errors.As to
// recover it and branch on Kind without matching strings.
type Error struct {
	Kind Kind
	Op   string // short operation name, e.g. "inference.run"
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap attaches a Kind and operation name to err. Returns nil if err
// is nil, so callers can write `return errkind.Wrap(...)` unconditionally
// after a `if err != nil` check without an extra branch.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
