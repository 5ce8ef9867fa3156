package peer

import "errors"

var (
	ErrChannelNotOpen   = errors.New("data channel not open")
	ErrUnexpectedSignal = errors.New("unexpected signal")
	ErrEmptyMessage     = errors.New("empty message")
	ErrMessageTooLong   = errors.New("message too long")
	ErrTimeout          = errors.New("timed out waiting for peer")
)
