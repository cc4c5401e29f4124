package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/davicafu/hexapost/internal/idempotency/domain"
)

// Store guarda cada registro de dedup como una clave con SET NX.
type Store struct {
	client *redis.Client
	// ttl es la política de retención; 0 significa sin expiración.
	ttl time.Duration
	now func() time.Time
}

// Verificación estática.
var _ domain.Store = (*Store)(nil)

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl, now: time.Now}
}

// DedupKey forma una key consistente por grupo y evento.
func DedupKey(group, eventID string) string {
	return fmt.Sprintf("dedup:%s:%s", group, eventID)
}

func (s *Store) TryApply(ctx context.Context, eventID, group string) (domain.Outcome, error) {
	if err := domain.Validate(eventID, group); err != nil {
		return domain.FirstTime, err
	}

	n, err := s.client.Exists(ctx, DedupKey(group, eventID)).Result()
	if err != nil {
		return domain.FirstTime, fmt.Errorf("redis dedup lookup: %w", err)
	}
	if n > 0 {
		return domain.AlreadyApplied, nil
	}
	return domain.FirstTime, nil
}

func (s *Store) MarkApplied(ctx context.Context, eventID, group string) error {
	if err := domain.Validate(eventID, group); err != nil {
		return err
	}

	// NX: la primera marca gana y conserva su applied-at.
	appliedAt := s.now().UTC().Format(time.RFC3339Nano)
	if err := s.client.SetNX(ctx, DedupKey(group, eventID), appliedAt, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis dedup mark: %w", err)
	}
	return nil
}
