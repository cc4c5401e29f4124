package domain

import (
	"context"
	"errors"
)

var (
	ErrMissingEventID = errors.New("event id is required")
	ErrMissingGroup   = errors.New("consumer group is required")
)

// Outcome es el resultado de TryApply.
type Outcome int

const (
	FirstTime Outcome = iota
	AlreadyApplied
)

func (o Outcome) String() string {
	if o == AlreadyApplied {
		return "already_applied"
	}
	return "first_time"
}

// Store es el libro de deduplicación (eventID, consumerGroup) -> aplicado.
//
// El flujo de un handler es TryApply -> mutación -> MarkApplied. No es atómico con
// el almacén externo, por eso la mutación también tiene que ser idempotente.
type Store interface {
	// TryApply devuelve AlreadyApplied si el evento ya se marcó para el grupo.
	TryApply(ctx context.Context, eventID, group string) (Outcome, error)

	// MarkApplied se llama después de que la mutación fue durable. Repetirlo es un no-op.
	MarkApplied(ctx context.Context, eventID, group string) error
}

// Validate comprueba los argumentos comunes a todos los backends.
func Validate(eventID, group string) error {
	if eventID == "" {
		return ErrMissingEventID
	}
	if group == "" {
		return ErrMissingGroup
	}
	return nil
}
