package store

import "fmt"

// ValidationError reports bad input (filters, pagination) rejected before the
// database is touched.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NotFoundError reports an operation against an owning resource that does not
// exist. Mutating a missing notification is a no-op, not a NotFoundError; the
// only producer is Create for an unknown user.
type NotFoundError struct {
	Resource string
	ID       uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}
