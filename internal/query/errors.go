package query

import (
	"errors"
	"fmt"
)

// ErrNoActor is wrapped by evaluation errors raised when a current-user
// criterion runs in strict mode without an acting user.
var ErrNoActor = errors.New("criterion requires a signed-in user")

// ParseError reports a syntax or vocabulary error at a position in the input.
type ParseError struct {
	Pos  int    // byte offset of the offending token
	Near string // offending token text; empty at end of input
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("at position %d: %s", e.Pos, e.Msg)
	}
	return fmt.Sprintf("at position %d near %q: %s", e.Pos, e.Near, e.Msg)
}

func errorAt(tok Token, format string, args ...any) *ParseError {
	return &ParseError{Pos: tok.Pos, Near: tok.Text, Msg: fmt.Sprintf(format, args...)}
}

// EvalError reports a failure while matching a criterion against an entity.
type EvalError struct {
	Criterion string
	Err       error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluating %q: %v", e.Criterion, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// PredicateError reports a criterion that cannot be compiled to SQL against
// the root of a build context.
type PredicateError struct {
	Criterion string
	Err       error
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("building predicate for %q: %v", e.Criterion, e.Err)
}

func (e *PredicateError) Unwrap() error { return e.Err }
