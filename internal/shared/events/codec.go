package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"strconv"
	"time"
)

const (
	fieldSchemaVersion   = "schemaVersion"
	fieldID              = "id"
	fieldType            = "type"
	fieldPartitionKey    = "partitionKey"
	fieldPayload         = "payload"
	fieldCreatedAt       = "createdAt"
	fieldDeliveryAttempt = "deliveryAttempt"
	fieldChecksum        = "checksum"
)

var knownFields = map[string]struct{}{
	fieldSchemaVersion: {}, fieldID: {}, fieldType: {}, fieldPartitionKey: {}, fieldPayload: {},
	fieldCreatedAt: {}, fieldDeliveryAttempt: {}, fieldChecksum: {},
}

// Checksum calcula el CRC32 (IEEE) del payload en hexadecimal.
func Checksum(payload []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(payload))
}

// Encode serializa el envelope como objeto JSON versionado.
func Encode(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrInvalidEvent)
	}
	var payload bytes.Buffer
	if err := json.Compact(&payload, env.Payload); err != nil {
		return nil, fmt.Errorf("%w: payload of %s is not valid JSON: %v", ErrInvalidEvent, env.ID, err)
	}

	version := env.SchemaVersion
	if version == 0 {
		version = SchemaVersion
	}

	fields := make(map[string]json.RawMessage, len(knownFields)+len(env.Extra))
	for k, v := range env.Extra {
		if _, known := knownFields[k]; !known {
			fields[k] = v
		}
	}

	var err error
	set := func(key string, v any) {
		if err != nil {
			return
		}
		var raw []byte
		raw, err = json.Marshal(v)
		fields[key] = raw
	}
	set(fieldSchemaVersion, version)
	set(fieldID, env.ID)
	set(fieldType, env.Type)
	set(fieldPartitionKey, env.PartitionKey)
	set(fieldCreatedAt, env.CreatedAt.UTC().Format(time.RFC3339Nano))
	set(fieldDeliveryAttempt, env.DeliveryAttempt)
	set(fieldChecksum, Checksum(payload.Bytes()))
	if err != nil {
		return nil, err
	}
	fields[fieldPayload] = payload.Bytes()

	// Las claves del mapa salen ordenadas, así la salida es determinista.
	// Sin escape HTML para que el payload se emita byte a byte y el checksum cuadre.
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return nil, err
	}
	return bytes.TrimRight(out.Bytes(), "\n"), nil
}

// Decode reconstruye un envelope. Los campos desconocidos se conservan en Extra.
func Decode(data []byte) (*Envelope, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, decodeErr("empty input", nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, decodeErr("malformed or truncated envelope", err)
	}

	env := &Envelope{}

	rawVersion, ok := fields[fieldSchemaVersion]
	if !ok {
		return nil, decodeErr("missing schemaVersion", nil)
	}
	if err := json.Unmarshal(rawVersion, &env.SchemaVersion); err != nil || env.SchemaVersion < 1 {
		return nil, decodeErr("invalid schemaVersion "+string(rawVersion), err)
	}

	if err := unmarshalString(fields, fieldID, &env.ID); err != nil {
		return nil, err
	}
	if env.ID == "" {
		return nil, decodeErr("missing id", nil)
	}

	var typ string
	if err := unmarshalString(fields, fieldType, &typ); err != nil {
		return nil, err
	}
	if typ == "" {
		return nil, decodeErr("missing type", nil)
	}
	// Una variante desconocida no es un error mientras el payload se pueda saltar.
	env.Type = Type(typ)

	if err := unmarshalString(fields, fieldPartitionKey, &env.PartitionKey); err != nil {
		return nil, err
	}

	payload, ok := fields[fieldPayload]
	if !ok {
		return nil, decodeErr("missing payload", nil)
	}
	env.Payload = payload

	if rawSum, ok := fields[fieldChecksum]; ok {
		var sum string
		if err := json.Unmarshal(rawSum, &sum); err != nil {
			return nil, decodeErr("invalid checksum field", err)
		}
		if sum != Checksum(payload) {
			return nil, decodeErr(fmt.Sprintf("checksum mismatch for %s: want %s got %s", env.ID, sum, Checksum(payload)), nil)
		}
	}

	var createdAt string
	if err := unmarshalString(fields, fieldCreatedAt, &createdAt); err != nil {
		return nil, err
	}
	if createdAt != "" {
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, decodeErr("invalid createdAt", err)
		}
		env.CreatedAt = ts.UTC()
	}

	if raw, ok := fields[fieldDeliveryAttempt]; ok {
		if err := json.Unmarshal(raw, &env.DeliveryAttempt); err != nil || env.DeliveryAttempt < 0 {
			return nil, decodeErr("invalid deliveryAttempt "+strconv.Quote(string(raw)), err)
		}
	}

	for k, v := range fields {
		if _, known := knownFields[k]; known {
			continue
		}
		if env.Extra == nil {
			env.Extra = make(map[string]json.RawMessage)
		}
		env.Extra[k] = v
	}

	return env, nil
}

func unmarshalString(fields map[string]json.RawMessage, key string, dest *string) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return decodeErr("invalid "+key, err)
	}
	return nil
}
