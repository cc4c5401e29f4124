package events

import (
	"encoding/json"
	"time"
)

// SchemaVersion es la versión del formato de envelope que emite este codec.
const SchemaVersion = 1

// Event es lo que un productor entrega al Publisher.
// ID y CreatedAt son opcionales: el Publisher los completa si vienen vacíos.
type Event struct {
	ID        string    `json:"id,omitempty"`
	Type      Type      `json:"type"`
	Payload   Payload   `json:"-"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Envelope es la representación de almacenamiento y de cable de un evento.
type Envelope struct {
	SchemaVersion int
	ID            string
	Type          Type
	PartitionKey  string
	// Payload se guarda en bruto para preservar campos que esta versión no conoce.
	Payload         json.RawMessage
	CreatedAt       time.Time
	DeliveryAttempt int
	// Extra guarda los campos de primer nivel desconocidos.
	Extra map[string]json.RawMessage
}

// NewEnvelope serializa el payload y construye un envelope en su intento 0.
func NewEnvelope(evt Event) (*Envelope, error) {
	raw, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		SchemaVersion: SchemaVersion,
		ID:            evt.ID,
		Type:          evt.Type,
		PartitionKey:  evt.Payload.PartitionKey(),
		Payload:       raw,
		CreatedAt:     evt.CreatedAt.UTC(),
	}, nil
}

// DecodePayload materializa el payload tipado del envelope.
func (e *Envelope) DecodePayload() (Payload, error) {
	return DecodePayload(e.Type, e.Payload)
}

// Clone devuelve una copia profunda; el Dispatcher la usa para contar reintentos
// sin tocar el registro del log.
func (e *Envelope) Clone() *Envelope {
	c := *e
	c.Payload = append(json.RawMessage(nil), e.Payload...)
	if e.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(e.Extra))
		for k, v := range e.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &c
}
