package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davicafu/hexapost/internal/eventlog/domain"
)

// partitionState serializa los appends de UNA partición y cachea la siguiente posición.
type partitionState struct {
	mu     sync.Mutex
	next   domain.Position
	loaded bool
	notify domain.Broadcaster
}

// Log implementa domain.Log sobre database/sql.
type Log struct {
	db          *sql.DB
	dialect     Dialect
	partitioner domain.Partitioner
	parts       []*partitionState
	now         func() time.Time
}

// Verificación en tiempo de compilación.
var _ domain.Log = (*Log)(nil)

// NewLog es el constructor. El esquema debe existir (ver InitSchema).
func NewLog(db *sql.DB, dialect Dialect, partitions int) *Log {
	p := domain.NewPartitioner(partitions)
	parts := make([]*partitionState, p.Partitions())
	for i := range parts {
		parts[i] = &partitionState{}
	}
	return &Log{db: db, dialect: dialect, partitioner: p, parts: parts, now: time.Now}
}

// InitSchema crea las tablas del log si no existen.
func InitSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init %s log schema: %w", dialect.Name, err)
		}
	}
	return nil
}

func (l *Log) Partitions() int { return l.partitioner.Partitions() }

func (l *Log) PartitionFor(key string) int { return l.partitioner.For(key) }

func (l *Log) state(partition int) (*partitionState, error) {
	if err := domain.ValidatePartition(partition, len(l.parts)); err != nil {
		return nil, err
	}
	return l.parts[partition], nil
}

func (l *Log) Append(ctx context.Context, key string, data []byte) (int, domain.Position, error) {
	idx := l.PartitionFor(key)
	p := l.parts[idx]

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		_, latest, err := l.bounds(ctx, idx)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %w", domain.ErrDurability, err)
		}
		p.next = latest + 1
		p.loaded = true
	}

	pos := p.next
	_, err := l.db.ExecContext(ctx,
		l.dialect.rebind(`INSERT INTO event_log (partition_id, pos, data, appended_at) VALUES (?,?,?,?)`),
		idx, int64(pos), data, l.now().UTC().UnixNano(),
	)
	if err != nil {
		// Otro proceso pudo escribir en la partición; recargamos en el siguiente intento.
		p.loaded = false
		return 0, 0, fmt.Errorf("%w: partition %d position %d: %w", domain.ErrDurability, idx, pos, err)
	}

	p.next = pos + 1
	p.notify.Broadcast()
	return idx, pos, nil
}

func (l *Log) Read(ctx context.Context, partition int, from domain.Position, max int) ([]domain.Record, error) {
	if _, err := l.state(partition); err != nil {
		return nil, err
	}
	if from < 1 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidPosition, from)
	}

	low, err := l.lowWatermark(ctx, l.db, partition)
	if err != nil {
		return nil, err
	}
	if from < low {
		return nil, &domain.RetentionGapError{Partition: partition, Requested: from, Earliest: low}
	}

	query := `SELECT pos, data, appended_at FROM event_log WHERE partition_id = ? AND pos >= ? ORDER BY pos`
	args := []any{partition, int64(from)}
	if max > 0 {
		query += ` LIMIT ?`
		args = append(args, max)
	}

	rows, err := l.db.QueryContext(ctx, l.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []domain.Record{}
	for rows.Next() {
		var pos, appendedAt int64
		var data []byte
		if err := rows.Scan(&pos, &data, &appendedAt); err != nil {
			return nil, err
		}
		records = append(records, domain.Record{
			Partition:  partition,
			Position:   domain.Position(pos),
			Data:       data,
			AppendedAt: time.Unix(0, appendedAt).UTC(),
		})
	}
	return records, rows.Err()
}

func (l *Log) CommitOffset(ctx context.Context, partition int, group string, pos domain.Position) error {
	if group == "" {
		return domain.ErrEmptyConsumerName
	}
	if _, err := l.state(partition); err != nil {
		return err
	}

	// El WHERE del upsert hace que un offset menor sea un no-op.
	_, err := l.db.ExecContext(ctx, l.dialect.rebind(
		`INSERT INTO consumer_offsets (partition_id, consumer_group, pos, updated_at) VALUES (?,?,?,?)
		 ON CONFLICT (partition_id, consumer_group)
		 DO UPDATE SET pos = excluded.pos, updated_at = excluded.updated_at
		 WHERE consumer_offsets.pos < excluded.pos`),
		partition, group, int64(pos), l.now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("commit offset %s/%d: %w", group, partition, err)
	}
	return nil
}

func (l *Log) CommittedOffset(ctx context.Context, partition int, group string) (domain.Position, error) {
	if _, err := l.state(partition); err != nil {
		return 0, err
	}

	var pos int64
	err := l.db.QueryRowContext(ctx,
		l.dialect.rebind(`SELECT pos FROM consumer_offsets WHERE partition_id = ? AND consumer_group = ?`),
		partition, group,
	).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return domain.Position(pos), nil
}

func (l *Log) Bounds(ctx context.Context, partition int) (domain.Position, domain.Position, error) {
	if _, err := l.state(partition); err != nil {
		return 0, 0, err
	}
	return l.bounds(ctx, partition)
}

func (l *Log) bounds(ctx context.Context, partition int) (domain.Position, domain.Position, error) {
	low, err := l.lowWatermark(ctx, l.db, partition)
	if err != nil {
		return 0, 0, err
	}

	var maxPos sql.NullInt64
	if err := l.db.QueryRowContext(ctx,
		l.dialect.rebind(`SELECT MAX(pos) FROM event_log WHERE partition_id = ?`), partition,
	).Scan(&maxPos); err != nil {
		return 0, 0, err
	}

	latest := low - 1
	if maxPos.Valid && domain.Position(maxPos.Int64) > latest {
		latest = domain.Position(maxPos.Int64)
	}
	return low, latest, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (l *Log) lowWatermark(ctx context.Context, q queryer, partition int) (domain.Position, error) {
	var low int64
	err := q.QueryRowContext(ctx,
		l.dialect.rebind(`SELECT low_pos FROM log_watermarks WHERE partition_id = ?`), partition,
	).Scan(&low)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return domain.Position(low), nil
}

func (l *Log) Compact(ctx context.Context, partition int, upTo domain.Position) (int, error) {
	p, err := l.state(partition)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() // Se ignora si el Commit() es exitoso

	// Solo se compacta lo que todos los grupos conocidos ya confirmaron.
	var minCommitted sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		l.dialect.rebind(`SELECT MIN(pos) FROM consumer_offsets WHERE partition_id = ?`), partition,
	).Scan(&minCommitted); err != nil {
		return 0, err
	}
	if !minCommitted.Valid {
		return 0, nil
	}
	if domain.Position(minCommitted.Int64) < upTo {
		upTo = domain.Position(minCommitted.Int64)
	}

	low, err := l.lowWatermark(ctx, tx, partition)
	if err != nil {
		return 0, err
	}
	var maxPos sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		l.dialect.rebind(`SELECT MAX(pos) FROM event_log WHERE partition_id = ?`), partition,
	).Scan(&maxPos); err != nil {
		return 0, err
	}
	if !maxPos.Valid {
		return 0, nil
	}
	if latest := domain.Position(maxPos.Int64); upTo > latest {
		upTo = latest
	}
	if upTo < low {
		return 0, nil
	}

	res, err := tx.ExecContext(ctx,
		l.dialect.rebind(`DELETE FROM event_log WHERE partition_id = ? AND pos <= ?`), partition, int64(upTo),
	)
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get RowsAffected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, l.dialect.rebind(
		`INSERT INTO log_watermarks (partition_id, low_pos) VALUES (?,?)
		 ON CONFLICT (partition_id) DO UPDATE SET low_pos = excluded.low_pos
		 WHERE log_watermarks.low_pos < excluded.low_pos`),
		partition, int64(upTo+1),
	); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(removed), nil
}

func (l *Log) Notify(partition int) <-chan struct{} {
	p, err := l.state(partition)
	if err != nil {
		return make(chan struct{})
	}
	return p.notify.Wait()
}
