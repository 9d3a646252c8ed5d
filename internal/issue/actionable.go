// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

// ActionableError carries the context a user needs to act on a failure:
// the operation that failed, the resource involved, and suggestions for
// fixing it. Build instances through ErrorContext:
//
//	return issue.NewErrorContext().
//		WithOperation("load project config").
//		WithResource(path).
//		WithSuggestion("Check the path, or run from the project directory").
//		Wrap(err).
//		BuildError()
type ActionableError struct {
	// Operation is a verb phrase describing what was attempted, e.g.
	// "define network" or "load project config".
	Operation string

	// Resource identifies the file, VM or network involved. Optional.
	Resource string

	// Suggestions are hints on how to fix the issue. Optional.
	Suggestions []string

	// Cause is the underlying error. Optional.
	Cause error
}

// Error implements the error interface with the concise, non-verbose
// form: "failed to <operation>[: <resource>][: <cause>]".
func (e *ActionableError) Error() string {
	var msg strings.Builder
	msg.WriteString("failed to ")
	msg.WriteString(e.Operation)
	if e.Resource != "" {
		msg.WriteString(": ")
		msg.WriteString(e.Resource)
	}
	if e.Cause != nil {
		msg.WriteString(": ")
		msg.WriteString(e.Cause.Error())
	}
	return msg.String()
}

// Unwrap returns the underlying cause for use with errors.Is/As.
func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// Format renders the error for display: the Error() line followed by
// bulleted suggestions. With verbose set, the numbered cause chain is
// appended.
func (e *ActionableError) Format(verbose bool) string {
	var msg strings.Builder
	msg.WriteString(e.Error())

	for i, suggestion := range e.Suggestions {
		if i == 0 {
			msg.WriteString("\n")
		}
		msg.WriteString("\n  • ")
		msg.WriteString(suggestion)
	}

	if verbose && e.Cause != nil {
		msg.WriteString("\n\nError chain:")
		depth := 1
		for err := e.Cause; err != nil; err = errors.Unwrap(err) {
			fmt.Fprintf(&msg, "\n  %d. %s", depth, err.Error())
			depth++
		}
	}

	return msg.String()
}

// ErrorContext accumulates ActionableError fields fluently. A context
// may be prepared ahead of the failure and finished with Wrap + Build
// once the error is in hand.
type ErrorContext struct {
	operation   string
	resource    string
	suggestions []string
	cause       error
}

// NewErrorContext creates an empty builder.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// WithOperation sets the operation being performed. Required; Build
// returns nil without it.
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.operation = op
	return c
}

// WithResource sets the file, VM or network involved.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.resource = res
	return c
}

// WithSuggestion appends one fix-it hint. Call repeatedly for more.
func (c *ErrorContext) WithSuggestion(sug string) *ErrorContext {
	c.suggestions = append(c.suggestions, sug)
	return c
}

// Wrap records the underlying error as the cause.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.cause = err
	return c
}

// Build creates the ActionableError, or nil when no operation was set.
func (c *ErrorContext) Build() *ActionableError {
	if c.operation == "" {
		return nil
	}
	return &ActionableError{
		Operation:   c.operation,
		Resource:    c.resource,
		Suggestions: c.suggestions,
		Cause:       c.cause,
	}
}

// BuildError is Build returning the error interface, for use directly
// in return statements. A nil *ActionableError is returned as a nil
// error, never as a typed nil.
func (c *ErrorContext) BuildError() error {
	if ae := c.Build(); ae != nil {
		return ae
	}
	return nil
}
