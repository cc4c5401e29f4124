package domain

import (
	"context"
	"time"
)

// InteractionRecord es una fila plana para analítica, una por evento.
type InteractionRecord struct {
	EventID    string
	EventType  string
	PostID     string
	UserID     string
	TargetUser string
	OccurredAt time.Time
}

type DailyInteractionTrend struct {
	Day       time.Time `json:"day"`
	Posts     int64     `json:"posts"`
	Likes     int64     `json:"likes"`
	Comments  int64     `json:"comments"`
	Followers int64     `json:"followers"`
}

// AnalyticsRepository es el almacén columnar de interacciones. LogBatch debe tolerar
// reenvíos del mismo EventID.
type AnalyticsRepository interface {
	LogBatch(ctx context.Context, records []InteractionRecord) error
	GetDailyTrend(ctx context.Context, start, end time.Time) ([]DailyInteractionTrend, error)
}
