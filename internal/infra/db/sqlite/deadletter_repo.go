package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	logDomain "github.com/davicafu/hexapost/internal/eventlog/domain"
)

// DeadLetterRepoSQLite implementa logDomain.DeadLetterStore para el despliegue local.
type DeadLetterRepoSQLite struct {
	db *sql.DB
}

func NewDeadLetterRepoSQLite(db *sql.DB) *DeadLetterRepoSQLite {
	return &DeadLetterRepoSQLite{db: db}
}

// InitSQLite crea la tabla dead_letters si no existe.
func InitSQLite(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dead_letters (
			key            TEXT PRIMARY KEY,
			consumer_group TEXT    NOT NULL,
			partition_id   INTEGER NOT NULL,
			pos            INTEGER NOT NULL,
			event_id       TEXT    NOT NULL DEFAULT '',
			event_type     TEXT    NOT NULL DEFAULT '',
			raw            BLOB    NOT NULL,
			reason         TEXT    NOT NULL,
			attempts       INTEGER NOT NULL,
			failed_at      INTEGER NOT NULL
		)`)
	return err
}

func (r *DeadLetterRepoSQLite) Send(ctx context.Context, letter logDomain.DeadLetter) error {
	eventID, eventType := "", ""
	if letter.Envelope != nil {
		eventID, eventType = letter.Envelope.ID, letter.Envelope.Type.String()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO dead_letters (key, consumer_group, partition_id, pos, event_id, event_type, raw, reason, attempts, failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		letter.Key(), letter.ConsumerGroup, letter.Partition, int64(letter.Position),
		eventID, eventType, letter.Raw, letter.Reason, letter.Attempts, letter.FailedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *DeadLetterRepoSQLite) List(ctx context.Context, limit int) ([]logDomain.DeadLetter, error) {
	query := `SELECT consumer_group, partition_id, pos, raw, reason, attempts, failed_at
         FROM dead_letters
         ORDER BY failed_at DESC, pos DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
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
		var pos, failedAt int64
		if err := rows.Scan(&l.ConsumerGroup, &l.Partition, &pos, &l.Raw, &l.Reason, &l.Attempts, &failedAt); err != nil {
			return nil, err
		}
		l.Position = logDomain.Position(pos)
		l.FailedAt = time.Unix(0, failedAt).UTC()
		l.Envelope = logDomain.RestoreEnvelope(l.Raw, l.Attempts)
		letters = append(letters, l)
	}
	return letters, rows.Err()
}

// Verificación en tiempo de compilación.
var _ logDomain.DeadLetterStore = (*DeadLetterRepoSQLite)(nil)
