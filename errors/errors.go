// Package errors defines the failure taxonomy of the messaging core.
// Callers branch on these sentinels with errors.Is instead of matching text.
package errors

import "fmt"

var (
	ErrInvalidArgument    = fmt.Errorf("invalid argument")
	ErrNotFound           = fmt.Errorf("message not found")
	ErrForbidden          = fmt.Errorf("actor is not allowed to perform this operation")
	ErrInvalidState       = fmt.Errorf("operation not allowed in current message state")
	ErrPreconditionFailed = fmt.Errorf("storage precondition failed")
	ErrConflict           = fmt.Errorf("record already exists")
	ErrTimeout            = fmt.Errorf("operation timed out")
	ErrStorage            = fmt.Errorf("storage failure")
)
