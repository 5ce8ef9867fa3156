package client

import (
	"errors"
	"fmt"
)

var (
	ErrClosed          = errors.New("connection closed")
	ErrSignalingError  = errors.New("signaling server error")
	ErrServerGone      = errors.New("signaling server went away")
	ErrTimeout         = errors.New("timeout")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// OpError records which client operation failed and why.
type OpError struct {
	Op      string
	Err     error
	Details string
}

func (e *OpError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *OpError {
	return &OpError{Op: op, Err: err, Details: details}
}
