package postgres

import (
	"context"
	"database/sql"
	"fmt"

	// driver "pgx" para database/sql
	_ "github.com/jackc/pgx/v5/stdlib"

	logDomain "github.com/davicafu/hexapost/internal/eventlog/domain"
)

// DeadLetterRepoPostgres implementa logDomain.DeadLetterStore.
type DeadLetterRepoPostgres struct {
	db *sql.DB
}

func NewDeadLetterRepoPostgres(db *sql.DB) *DeadLetterRepoPostgres {
	return &DeadLetterRepoPostgres{db: db}
}

// InitPostgres crea la tabla dead_letters si no existe.
func InitPostgres(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS dead_letters (
			key            TEXT PRIMARY KEY,
			consumer_group TEXT        NOT NULL,
			partition_id   INTEGER     NOT NULL,
			pos            BIGINT      NOT NULL,
			event_id       TEXT        NOT NULL DEFAULT '',
			event_type     TEXT        NOT NULL DEFAULT '',
			raw            BYTEA       NOT NULL,
			reason         TEXT        NOT NULL,
			attempts       INTEGER     NOT NULL,
			failed_at      TIMESTAMPTZ NOT NULL
		)`)
	return err
}

// Send es idempotente por key: ON CONFLICT DO NOTHING.
func (r *DeadLetterRepoPostgres) Send(ctx context.Context, letter logDomain.DeadLetter) error {
	eventID, eventType := "", ""
	if letter.Envelope != nil {
		eventID, eventType = letter.Envelope.ID, letter.Envelope.Type.String()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dead_letters (key, consumer_group, partition_id, pos, event_id, event_type, raw, reason, attempts, failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (key) DO NOTHING`,
		letter.Key(), letter.ConsumerGroup, letter.Partition, int64(letter.Position),
		eventID, eventType, letter.Raw, letter.Reason, letter.Attempts, letter.FailedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *DeadLetterRepoPostgres) List(ctx context.Context, limit int) ([]logDomain.DeadLetter, error) {
	query := `SELECT consumer_group, partition_id, pos, raw, reason, attempts, failed_at
		 FROM dead_letters ORDER BY failed_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var letters []logDomain.DeadLetter
	for rows.Next() {
		var l logDomain.DeadLetter
		var pos int64
		if err := rows.Scan(&l.ConsumerGroup, &l.Partition, &pos, &l.Raw, &l.Reason, &l.Attempts, &l.FailedAt); err != nil {
			return nil, err
		}
		l.Position = logDomain.Position(pos)
		l.Envelope = logDomain.RestoreEnvelope(l.Raw, l.Attempts)
		letters = append(letters, l)
	}
	return letters, rows.Err()
}

// Verificación en tiempo de compilación.
var _ logDomain.DeadLetterStore = (*DeadLetterRepoPostgres)(nil)
