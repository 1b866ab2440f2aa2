// Package cerrors is the error taxonomy shared by the tree, diff, transport,
// control, and agent packages.
package cerrors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/starkandwayne/goutils/ansi"

	"github.com/wayneeseguin/convergent/log"
)

// Kind categorizes a ConvergentError so callers can decide whether to
// retry, reconnect, or give up.
type Kind string

const (
	// Transient indicates a retryable failure: a dropped connection, a
	// timed-out request, a NATS publish that can be resent.
	Transient Kind = "transient"

	// Protocol indicates a malformed or unexpected frame, version
	// mismatch, or other violation of the wire contract.
	Protocol Kind = "protocol"

	// HashMismatch indicates the content hash of a value did not match
	// what was expected after applying an update.
	HashMismatch Kind = "hash_mismatch"

	// Invariant indicates a tree or evolver invariant was violated
	// (record field missing, path not found, type mismatch).
	Invariant Kind = "invariant"

	// Domain indicates a rejected domain operation, such as a
	// conflicting blockdevice ownership claim.
	Domain Kind = "domain"

	// Fatal indicates a failure the process cannot recover from.
	Fatal Kind = "fatal"
)

// ConvergentError is the base error type for all package operations.
type ConvergentError struct {
	Kind    Kind
	Message string
	Path    string
	Cause   error
}

func (e *ConvergentError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *ConvergentError) Unwrap() error {
	return e.Cause
}

// New creates a ConvergentError without path context.
func New(kind Kind, message string) *ConvergentError {
	return &ConvergentError{Kind: kind, Message: message}
}

// Wrap creates a ConvergentError that carries an underlying cause.
func Wrap(kind Kind, message string, cause error) *ConvergentError {
	return &ConvergentError{Kind: kind, Message: message, Cause: cause}
}

// WithPath creates a ConvergentError scoped to a tree path.
func WithPath(kind Kind, path, message string) *ConvergentError {
	return &ConvergentError{Kind: kind, Message: message, Path: path}
}

// Is reports whether err is a ConvergentError of the given kind.
func Is(err error, kind Kind) bool {
	ce, ok := err.(*ConvergentError)
	return ok && ce.Kind == kind
}

// KindOf returns the Kind of err if it's a ConvergentError, "" otherwise.
func KindOf(err error) Kind {
	if ce, ok := err.(*ConvergentError); ok {
		return ce.Kind
	}
	return ""
}

// MultiError collects independent failures from a batched operation, such
// as an evolver commit validating several record fields or a broadcast
// fan-out touching many connections.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	s := []string{}
	for _, err := range e.Errors {
		s = append(s, fmt.Sprintf(" - %s\n", err))
	}
	sort.Strings(s)
	return ansi.Sprintf("@r{%d} error(s) detected:\n%s\n", len(e.Errors), strings.Join(s, ""))
}

// Count returns the number of collected errors.
func (e *MultiError) Count() int {
	return len(e.Errors)
}

// Append adds err to the collection, flattening nested MultiErrors.
func (e *MultiError) Append(err error) {
	if err == nil {
		return
	}
	if mult, ok := err.(MultiError); ok {
		e.Errors = append(e.Errors, mult.Errors...)
		return
	}
	e.Errors = append(e.Errors, err)
}

// AsHashicorp converts the collected errors into a *multierror.Error, for
// callers (the broadcast service's per-connection fan-out) that want
// hashicorp/go-multierror's formatting and ErrorOrNil semantics.
func (e MultiError) AsHashicorp() *multierror.Error {
	var result *multierror.Error
	for _, err := range e.Errors {
		result = multierror.Append(result, err)
	}
	return result
}

var dontPrintWarnings bool

// WarningError produces a warning message to stderr when Warn is called,
// unless warnings have been silenced.
type WarningError struct {
	warning string
}

// NewWarningError returns a WarningError with an ansi-formatted message.
func NewWarningError(warning string, args ...interface{}) WarningError {
	return WarningError{warning: ansi.Sprintf(warning, args...)}
}

// SilenceWarnings suppresses Warn() output when should is true.
func SilenceWarnings(should bool) {
	dontPrintWarnings = should
	log.SilenceWarnings(should)
}

func (e WarningError) Error() string {
	return e.warning
}

// Warn prints the configured warning to stderr.
func (e WarningError) Warn() {
	if !dontPrintWarnings {
		log.PrintfStdErr(ansi.Sprintf("@Y{warning:} %s\n", e.warning))
	}
}
