// Package domain defines the error taxonomy shared by the command layer
// and the HTTP surface. Callers distinguish outcomes with errors.Is/As.
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates an authenticated but out-of-scope actor.
	ErrForbidden = errors.New("forbidden")

	// ErrVersionConflict indicates a concurrent update won the race.
	// The caller should re-read and resubmit the command.
	ErrVersionConflict = errors.New("version conflict")
)

// RuleError is a domain-rule violation raised by an aggregate guard,
// e.g. transitioning a prescription that is already terminal.
type RuleError struct {
	Msg string
}

func (e *RuleError) Error() string { return e.Msg }

// NewRuleError builds a RuleError with a formatted message.
func NewRuleError(format string, args ...interface{}) *RuleError {
	return &RuleError{Msg: fmt.Sprintf(format, args...)}
}

// IsRule reports whether err is a domain-rule violation.
func IsRule(err error) bool {
	var re *RuleError
	return errors.As(err, &re)
}
