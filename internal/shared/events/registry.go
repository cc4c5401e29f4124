package events

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// EventMetadata describe cómo materializar el payload de una variante.
type EventMetadata struct {
	Type reflect.Type
}

// NewEventRegistry devuelve la tabla variante -> tipo de payload.
func NewEventRegistry() map[Type]EventMetadata {
	return map[Type]EventMetadata{
		PostCreated:  {Type: reflect.TypeOf(PostCreatedPayload{})},
		LikeAdded:    {Type: reflect.TypeOf(LikeAddedPayload{})},
		CommentAdded: {Type: reflect.TypeOf(CommentAddedPayload{})},
		UserFollowed: {Type: reflect.TypeOf(UserFollowedPayload{})},
	}
}

var registry = NewEventRegistry()

// DecodePayload construye el payload tipado de la variante t a partir de JSON.
func DecodePayload(t Type, raw json.RawMessage) (Payload, error) {
	metadata, ok := registry[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}

	// Creamos una nueva instancia del tipo de evento (ej: &LikeAddedPayload{})
	payload := reflect.New(metadata.Type).Interface().(Payload)
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, decodeErr(fmt.Sprintf("payload of %s", t), err)
	}
	return payload, nil
}

// UnmarshalPayload es la versión genérica para handlers que conocen la variante.
func UnmarshalPayload[T any](env *Envelope) (*T, error) {
	var p T
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, decodeErr(fmt.Sprintf("payload of %s %s", env.Type, env.ID), err)
	}
	return &p, nil
}
