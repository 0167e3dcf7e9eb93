package booking

import "fmt"

// PreconditionError is a local rejection: the requested action is not legal
// for the booking's current status, so no request is sent at all. The
// message is user-facing.
type PreconditionError struct {
	Code    string
	Message string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newPreconditionError(msg string) error {
	return &PreconditionError{
		Code:    "preconditionFailed",
		Message: msg,
	}
}

func newNotFoundError(id string) error {
	return &PreconditionError{
		Code:    "bookingNotFound",
		Message: fmt.Sprintf("booking %s is not in the local cache", id),
	}
}
