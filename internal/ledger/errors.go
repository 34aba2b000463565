package ledger

import (
	"errors"
	"fmt"
)

// ParseError reports unreadable input: an empty file or a row that cannot be
// split into fields.
type ParseError struct {
	Line   int // 1-indexed, 0 when the whole input is affected
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse error"
	if e.Line > 0 {
		msg = fmt.Sprintf("parse error at line %d", e.Line)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a value that was read but is not acceptable:
// a missing required column, or a date/amount that does not parse.
type ValidationError struct {
	Line   int
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	var b []byte
	b = append(b, "validation error"...)
	if e.Line > 0 {
		b = fmt.Appendf(b, " at line %d", e.Line)
	}
	if e.Field != "" {
		b = fmt.Appendf(b, " for %q", e.Field)
	}
	b = append(b, ": "...)
	b = append(b, e.Reason...)
	if e.Value != "" {
		b = fmt.Appendf(b, " (%q)", e.Value)
	}
	return string(b)
}

// ReferenceError reports an entity whose account, group or category
// reference cannot be resolved by name or identifier.
type ReferenceError struct {
	Entity  string // kind of the entity being resolved, e.g. "transaction"
	Name    string // its name or identifier
	Missing string // kind of the missing reference, e.g. "account"
	Ref     string // the unresolved name
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference: %s %q references unknown %s %q", e.Entity, e.Name, e.Missing, e.Ref)
}

// PersistenceError reports a failure of the persistence collaborator.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PolicyError reports an unsupported or misconfigured reconciliation strategy.
type PolicyError struct {
	Strategy string
	Reason   string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy error: strategy %q: %s", e.Strategy, e.Reason)
}

// IsParse reports whether err is or wraps a *ParseError.
func IsParse(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsReference reports whether err is or wraps a *ReferenceError.
func IsReference(err error) bool {
	var target *ReferenceError
	return errors.As(err, &target)
}

// IsPersistence reports whether err is or wraps a *PersistenceError.
func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}

// IsPolicy reports whether err is or wraps a *PolicyError.
func IsPolicy(err error) bool {
	var target *PolicyError
	return errors.As(err, &target)
}
