package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davicafu/hexapost/internal/interaction/domain"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestCounterStore_IncrementIsIdempotentPerEvent(t *testing.T) {
	ctx := context.Background()
	_, client := setupRedis(t)
	s := NewCounterStore(client)

	for i := 0; i < 3; i++ {
		n, err := s.Increment(ctx, "P1", domain.FieldLikes, "E1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	}

	n, err := s.Increment(ctx, "P1", domain.FieldLikes, "E2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Increment(ctx, "P1", domain.FieldComments, "E3")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Get(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, &domain.PostCounters{PostID: "P1", LikesCount: 2, CommentsCount: 1}, got)
}

func TestCounterStore_UsesOneSetPerField(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	s := NewCounterStore(client)

	_, err := s.Increment(ctx, "P1", domain.FieldLikes, "E1")
	require.NoError(t, err)

	members, err := mr.Members(domain.CacheKeyByID("P1", domain.FieldLikes))
	require.NoError(t, err)
	assert.Equal(t, []string{"E1"}, members)
}

func TestCounterStore_UnknownPostHasZeroCounters(t *testing.T) {
	_, client := setupRedis(t)
	got, err := NewCounterStore(client).Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, &domain.PostCounters{PostID: "nope"}, got)
}

func TestCounterStore_RejectsInvalidArguments(t *testing.T) {
	_, client := setupRedis(t)
	s := NewCounterStore(client)

	_, err := s.Increment(context.Background(), "", domain.FieldLikes, "E1")
	assert.ErrorIs(t, err, domain.ErrMissingPostID)
	_, err = s.Increment(context.Background(), "P1", domain.CounterField("shares"), "E1")
	assert.ErrorIs(t, err, domain.ErrInvalidField)
	_, err = s.Increment(context.Background(), "P1", domain.FieldLikes, "")
	assert.ErrorIs(t, err, domain.ErrMissingEvent)
	_, err = s.Get(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrMissingPostID)
}

func TestCounterStore_RedisDownIsReturned(t *testing.T) {
	mr, client := setupRedis(t)
	s := NewCounterStore(client)
	mr.Close()

	_, err := s.Increment(context.Background(), "P1", domain.FieldLikes, "E1")
	assert.Error(t, err)
}
