package models

import "fmt"

// CustomerNotFoundError means the resolver could not match any customer.
// It must reach the caller unchanged; consumers never swallow it into a
// default or zero result.
type CustomerNotFoundError struct {
	Identifier string
}

func (e *CustomerNotFoundError) Error() string {
	return fmt.Sprintf("no customer matches identifier %q", e.Identifier)
}

// CollaboratorUnavailableError means a required reader (billing, usage,
// communication history, snapshot store) is unreachable or misconfigured.
type CollaboratorUnavailableError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorUnavailableError) Error() string {
	return fmt.Sprintf("%s collaborator unavailable: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorUnavailableError) Unwrap() error { return e.Err }

// ValidationError means the caller supplied a malformed window, limit or
// identifier.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
