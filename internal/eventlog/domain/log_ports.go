package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ---------- Errores de dominio ----------
var (
	// ErrDurability indica que el append no pudo hacerse durable; el productor no debe recibir ack.
	ErrDurability = errors.New("log write is not durable")
	// ErrNotFound indica que la posición pedida ya fue compactada.
	ErrNotFound          = errors.New("position below retained window")
	ErrInvalidPartition  = errors.New("invalid partition")
	ErrInvalidPosition   = errors.New("invalid position")
	ErrEmptyConsumerName = errors.New("consumer group is required")
)

// Position es la posición de un registro dentro de su partición. La primera es 1;
// 0 significa "nada todavía".
type Position int64

// Record es un envelope codificado junto a su posición en el log.
type Record struct {
	Partition  int
	Position   Position
	Data       []byte
	AppendedAt time.Time
}

// RetentionGapError se devuelve cuando from < earliest. Coincide con ErrNotFound.
type RetentionGapError struct {
	Partition int
	Requested Position
	Earliest  Position
}

func (e *RetentionGapError) Error() string {
	return fmt.Sprintf("partition %d: position %d below retained window (earliest %d)", e.Partition, e.Requested, e.Earliest)
}

func (e *RetentionGapError) Is(target error) bool { return target == ErrNotFound }

// ---------- Interfaces (Ports) ----------

// Log es el almacén append-only, particionado y con orden estricto por partición.
type Log interface {
	// Partitions devuelve el número fijo de particiones.
	Partitions() int

	// PartitionFor mapea una clave a su partición de forma determinista.
	PartitionFor(key string) int

	// Append añade data a la partición de key y devuelve la posición asignada
	// solo cuando la escritura es durable. Debe devolver ErrDurability si no lo es.
	Append(ctx context.Context, key string, data []byte) (int, Position, error)

	// Read devuelve hasta max registros desde from (inclusive), en orden.
	// Debe devolver ErrNotFound (RetentionGapError) si from está por debajo de la ventana retenida.
	Read(ctx context.Context, partition int, from Position, max int) ([]Record, error)

	// CommitOffset persiste la marca de agua del grupo. Un valor menor al ya confirmado es un no-op.
	CommitOffset(ctx context.Context, partition int, group string, pos Position) error

	// CommittedOffset devuelve 0 si el grupo nunca confirmó.
	CommittedOffset(ctx context.Context, partition int, group string) (Position, error)

	// Bounds devuelve la primera posición retenida y la última asignada.
	// Con la partición vacía latest = earliest - 1.
	Bounds(ctx context.Context, partition int) (earliest, latest Position, err error)

	// Compact elimina posiciones <= upTo, sin pasar nunca del offset mínimo confirmado.
	Compact(ctx context.Context, partition int, upTo Position) (int, error)

	// Notify devuelve un canal que se cierra en el siguiente append a la partición.
	Notify(partition int) <-chan struct{}
}

// ValidatePartition comprueba el rango de la partición.
func ValidatePartition(partition, partitions int) error {
	if partition < 0 || partition >= partitions {
		return fmt.Errorf("%w: %d (partitions=%d)", ErrInvalidPartition, partition, partitions)
	}
	return nil
}
