package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/davicafu/hexapost/internal/interaction/domain"
)

// CounterStore guarda cada contador como un SET de eventIDs; el valor es SCARD.
type CounterStore struct {
	client *redis.Client
}

// Verificación estática.
var _ domain.CounterStore = (*CounterStore)(nil)

func NewCounterStore(client *redis.Client) *CounterStore {
	return &CounterStore{client: client}
}

func (s *CounterStore) Increment(ctx context.Context, postID string, field domain.CounterField, eventID string) (int64, error) {
	if err := domain.ValidateIncrement(postID, field, eventID); err != nil {
		return 0, err
	}
	key := domain.CacheKeyByID(postID, field)

	// SADD + SCARD en un MULTI: un replay del mismo eventID no cambia el valor.
	var card *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, eventID)
		card = pipe.SCard(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis increment %s: %w", key, err)
	}
	return card.Val(), nil
}

func (s *CounterStore) Get(ctx context.Context, postID string) (*domain.PostCounters, error) {
	if postID == "" {
		return nil, domain.ErrMissingPostID
	}

	var likes, comments *redis.IntCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		likes = pipe.SCard(ctx, domain.CacheKeyByID(postID, domain.FieldLikes))
		comments = pipe.SCard(ctx, domain.CacheKeyByID(postID, domain.FieldComments))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis counters %s: %w", postID, err)
	}

	return &domain.PostCounters{
		PostID:        postID,
		LikesCount:    likes.Val(),
		CommentsCount: comments.Val(),
	}, nil
}
