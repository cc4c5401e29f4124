package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// _ "github.com/mattn/go-sqlite3" // better performance but requires gcc
	_ "modernc.org/sqlite"

	"github.com/davicafu/hexapost/internal/idempotency/domain"
)

// Store persiste el libro de dedup en SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Verificación estática.
var _ domain.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// InitSQLite crea la tabla de dedup si no existe.
func InitSQLite(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dedup (
			event_id       TEXT    NOT NULL,
			consumer_group TEXT    NOT NULL,
			applied_at     INTEGER NOT NULL,
			PRIMARY KEY (event_id, consumer_group)
		)`)
	return err
}

func (s *Store) TryApply(ctx context.Context, eventID, group string) (domain.Outcome, error) {
	if err := domain.Validate(eventID, group); err != nil {
		return domain.FirstTime, err
	}

	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM dedup WHERE event_id = ? AND consumer_group = ?`, eventID, group,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FirstTime, nil
	}
	if err != nil {
		return domain.FirstTime, fmt.Errorf("dedup lookup: %w", err)
	}
	return domain.AlreadyApplied, nil
}

func (s *Store) MarkApplied(ctx context.Context, eventID, group string) error {
	if err := domain.Validate(eventID, group); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO dedup (event_id, consumer_group, applied_at) VALUES (?,?,?)`,
		eventID, group, s.now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	return nil
}
