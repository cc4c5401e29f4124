package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/davicafu/hexapost/internal/eventlog/domain"
)

// partition guarda su propio estado; no hay ningún lock global.
type partition struct {
	mu      sync.RWMutex
	entries []domain.Record // entries[i].Position == low + i
	low     domain.Position // primera posición retenida
	offsets map[string]domain.Position
	notify  domain.Broadcaster
}

// Log es un Durable Log en memoria. "Durable" aquí significa visible para los lectores;
// se usa en tests y en el modo efímero.
type Log struct {
	partitioner domain.Partitioner
	parts       []*partition
	now         func() time.Time
}

// Verificación estática.
var _ domain.Log = (*Log)(nil)

// NewLog crea un log con n particiones fijas.
func NewLog(n int) *Log {
	p := domain.NewPartitioner(n)
	parts := make([]*partition, p.Partitions())
	for i := range parts {
		parts[i] = &partition{low: 1, offsets: make(map[string]domain.Position)}
	}
	return &Log{partitioner: p, parts: parts, now: time.Now}
}

func (l *Log) Partitions() int { return l.partitioner.Partitions() }

func (l *Log) PartitionFor(key string) int { return l.partitioner.For(key) }

func (l *Log) part(partition int) (*partition, error) {
	if err := domain.ValidatePartition(partition, len(l.parts)); err != nil {
		return nil, err
	}
	return l.parts[partition], nil
}

func (l *Log) Append(ctx context.Context, key string, data []byte) (int, domain.Position, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	idx := l.PartitionFor(key)
	p := l.parts[idx]

	p.mu.Lock()
	pos := p.low + domain.Position(len(p.entries))
	p.entries = append(p.entries, domain.Record{
		Partition:  idx,
		Position:   pos,
		Data:       append([]byte(nil), data...),
		AppendedAt: l.now().UTC(),
	})
	p.mu.Unlock()

	p.notify.Broadcast()
	return idx, pos, nil
}

func (l *Log) Read(ctx context.Context, partition int, from domain.Position, max int) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.part(partition)
	if err != nil {
		return nil, err
	}
	if from < 1 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidPosition, from)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if from < p.low {
		return nil, &domain.RetentionGapError{Partition: partition, Requested: from, Earliest: p.low}
	}

	start := int(from - p.low)
	if start >= len(p.entries) {
		return []domain.Record{}, nil
	}
	end := len(p.entries)
	if max > 0 && start+max < end {
		end = start + max
	}

	out := make([]domain.Record, 0, end-start)
	for _, r := range p.entries[start:end] {
		r.Data = append([]byte(nil), r.Data...)
		out = append(out, r)
	}
	return out, nil
}

func (l *Log) CommitOffset(ctx context.Context, partition int, group string, pos domain.Position) error {
	if group == "" {
		return domain.ErrEmptyConsumerName
	}
	p, err := l.part(partition)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if pos > p.offsets[group] {
		p.offsets[group] = pos
	}
	return nil
}

func (l *Log) CommittedOffset(ctx context.Context, partition int, group string) (domain.Position, error) {
	p, err := l.part(partition)
	if err != nil {
		return 0, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.offsets[group], nil
}

func (l *Log) Bounds(ctx context.Context, partition int) (domain.Position, domain.Position, error) {
	p, err := l.part(partition)
	if err != nil {
		return 0, 0, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.low, p.low + domain.Position(len(p.entries)) - 1, nil
}

func (l *Log) Compact(ctx context.Context, partition int, upTo domain.Position) (int, error) {
	p, err := l.part(partition)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Solo se compacta lo que todos los grupos conocidos ya confirmaron.
	if len(p.offsets) == 0 {
		return 0, nil
	}
	for _, committed := range p.offsets {
		if committed < upTo {
			upTo = committed
		}
	}
	if latest := p.low + domain.Position(len(p.entries)) - 1; upTo > latest {
		upTo = latest
	}
	if upTo < p.low {
		return 0, nil
	}

	removed := int(upTo - p.low + 1)
	p.entries = append([]domain.Record(nil), p.entries[removed:]...)
	p.low = upTo + 1
	return removed, nil
}

func (l *Log) Notify(partition int) <-chan struct{} {
	p, err := l.part(partition)
	if err != nil {
		// Canal que nunca se cierra: quien espere caerá por timeout o ctx.
		return make(chan struct{})
	}
	return p.notify.Wait()
}
