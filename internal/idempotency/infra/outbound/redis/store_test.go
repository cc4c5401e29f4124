package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davicafu/hexapost/internal/idempotency/domain"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestStore_TryApplyThenMark(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	s := NewStore(client, 0)
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	out, err := s.TryApply(ctx, "E1", "counters")
	require.NoError(t, err)
	assert.Equal(t, domain.FirstTime, out)

	// Sin MarkApplied el evento sigue siendo "primera vez".
	out, err = s.TryApply(ctx, "E1", "counters")
	require.NoError(t, err)
	assert.Equal(t, domain.FirstTime, out)

	require.NoError(t, s.MarkApplied(ctx, "E1", "counters"))
	s.now = func() time.Time { return at.Add(time.Hour) }
	require.NoError(t, s.MarkApplied(ctx, "E1", "counters"))

	stored, err := mr.Get(DedupKey("counters", "E1"))
	require.NoError(t, err)
	assert.Equal(t, at.Format(time.RFC3339Nano), stored, "marcar dos veces conserva el primer applied-at")

	out, err = s.TryApply(ctx, "E1", "counters")
	require.NoError(t, err)
	assert.Equal(t, domain.AlreadyApplied, out)

	out, err = s.TryApply(ctx, "E1", "analytics")
	require.NoError(t, err)
	assert.Equal(t, domain.FirstTime, out, "la dedup es por grupo")
}

func TestStore_RetentionTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	s := NewStore(client, time.Hour)

	require.NoError(t, s.MarkApplied(ctx, "E1", "counters"))
	assert.Equal(t, time.Hour, mr.TTL(DedupKey("counters", "E1")))

	mr.FastForward(2 * time.Hour)
	out, err := s.TryApply(ctx, "E1", "counters")
	require.NoError(t, err)
	assert.Equal(t, domain.FirstTime, out, "fuera de la ventana de retención el registro desaparece")
}

func TestStore_ValidatesArguments(t *testing.T) {
	_, client := setupRedis(t)
	s := NewStore(client, 0)

	_, err := s.TryApply(context.Background(), "", "g")
	assert.ErrorIs(t, err, domain.ErrMissingEventID)
	assert.ErrorIs(t, s.MarkApplied(context.Background(), "E1", ""), domain.ErrMissingGroup)
}

func TestStore_RedisDown(t *testing.T) {
	mr, client := setupRedis(t)
	s := NewStore(client, 0)
	mr.Close()

	_, err := s.TryApply(context.Background(), "E1", "counters")
	assert.Error(t, err)
	assert.Error(t, s.MarkApplied(context.Background(), "E1", "counters"))
}
