package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// _ "github.com/mattn/go-sqlite3" // better performance but requires gcc
	_ "modernc.org/sqlite"

	"github.com/davicafu/hexapost/internal/interaction/domain"
)

// CounterStore guarda una fila por contribución (post, campo, evento).
type CounterStore struct {
	db *sql.DB
}

// Verificación estática.
var _ domain.CounterStore = (*CounterStore)(nil)

func NewCounterStore(db *sql.DB) *CounterStore {
	return &CounterStore{db: db}
}

// InitSQLite crea la tabla de contribuciones si no existe.
func InitSQLite(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS counter_contributions (
			post_id  TEXT NOT NULL,
			field    TEXT NOT NULL,
			event_id TEXT NOT NULL,
			PRIMARY KEY (post_id, field, event_id)
		)`)
	return err
}

func (s *CounterStore) Increment(ctx context.Context, postID string, field domain.CounterField, eventID string) (int64, error) {
	if err := domain.ValidateIncrement(postID, field, eventID); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() // Se ignora si el Commit() es exitoso

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO counter_contributions (post_id, field, event_id) VALUES (?,?,?)`,
		postID, string(field), eventID,
	); err != nil {
		return 0, fmt.Errorf("insert contribution: %w", err)
	}

	var n int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM counter_contributions WHERE post_id = ? AND field = ?`, postID, string(field),
	).Scan(&n); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *CounterStore) Get(ctx context.Context, postID string) (*domain.PostCounters, error) {
	if postID == "" {
		return nil, domain.ErrMissingPostID
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT field, COUNT(*) FROM counter_contributions WHERE post_id = ? GROUP BY field`, postID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := &domain.PostCounters{PostID: postID}
	for rows.Next() {
		var field string
		var n int64
		if err := rows.Scan(&field, &n); err != nil {
			return nil, err
		}
		switch domain.CounterField(field) {
		case domain.FieldLikes:
			out.LikesCount = n
		case domain.FieldComments:
			out.CommentsCount = n
		}
	}
	return out, rows.Err()
}
