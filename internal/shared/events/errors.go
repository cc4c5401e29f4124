package events

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode agrupa todos los fallos de decodificación; nunca se reintentan.
	ErrDecode       = errors.New("decode error")
	ErrUnknownType  = errors.New("unknown event type")
	ErrInvalidEvent = errors.New("invalid event")
)

// DecodeError describe un envelope mal formado. Coincide con ErrDecode vía errors.Is.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode error: %s: %v", e.Reason, e.Err)
	}
	return "decode error: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func decodeErr(reason string, err error) error {
	return &DecodeError{Reason: reason, Err: err}
}
