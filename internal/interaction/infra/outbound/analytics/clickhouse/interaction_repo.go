package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/davicafu/hexapost/internal/interaction/domain"
)

// InteractionAnalyticsRepo implementa domain.AnalyticsRepository para ClickHouse.
type InteractionAnalyticsRepo struct {
	db *sql.DB
}

// NewInteractionAnalyticsRepo abre la conexión y comprueba que responde.
func NewInteractionAnalyticsRepo(addr, dbName string) (*InteractionAnalyticsRepo, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}
	return &InteractionAnalyticsRepo{db: conn}, nil
}

// LogBatch inserta el lote en una transacción. Los duplicados se funden por event_id
// gracias al ReplacingMergeTree.
func (r *InteractionAnalyticsRepo) LogBatch(ctx context.Context, records []domain.InteractionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO interactions_log (event_id, event_type, post_id, user_id, target_user_id, occurred_at, ingested_at)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	ingestedAt := time.Now().UTC()
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.EventID,
			rec.EventType,
			rec.PostID,
			rec.UserID,
			rec.TargetUser,
			rec.OccurredAt.UTC(),
			ingestedAt,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to exec statement for event %s: %w", rec.EventID, err)
		}
	}
	return tx.Commit()
}

func (r *InteractionAnalyticsRepo) GetDailyTrend(ctx context.Context, start, end time.Time) ([]domain.DailyInteractionTrend, error) {
	query := `
		SELECT
			toStartOfDay(occurred_at) AS day,
			countIf(event_type = 'PostCreated')  AS posts,
			countIf(event_type = 'LikeAdded')    AS likes,
			countIf(event_type = 'CommentAdded') AS comments,
			countIf(event_type = 'UserFollowed') AS followers
		FROM interactions_log FINAL
		WHERE occurred_at BETWEEN ? AND ?
		GROUP BY day
		ORDER BY day
	`
	rows, err := r.db.QueryContext(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trends []domain.DailyInteractionTrend
	for rows.Next() {
		var trend domain.DailyInteractionTrend
		var posts, likes, comments, followers uint64
		if err := rows.Scan(&trend.Day, &posts, &likes, &comments, &followers); err != nil {
			return nil, err
		}
		trend.Posts, trend.Likes = int64(posts), int64(likes)
		trend.Comments, trend.Followers = int64(comments), int64(followers)
		trends = append(trends, trend)
	}
	return trends, rows.Err()
}

// InitSchema crea la tabla si no existe. Particionada por mes.
func (r *InteractionAnalyticsRepo) InitSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS interactions_log (
			event_id       String,
			event_type     LowCardinality(String),
			post_id        String,
			user_id        String,
			target_user_id String,
			occurred_at    DateTime64(3),
			ingested_at    DateTime64(3)
		) ENGINE = ReplacingMergeTree(ingested_at)
		PARTITION BY toYYYYMM(occurred_at)
		ORDER BY (event_type, occurred_at, event_id);
	`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

// Verificación estática de la interfaz.
var _ domain.AnalyticsRepository = (*InteractionAnalyticsRepo)(nil)
