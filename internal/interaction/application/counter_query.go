package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/davicafu/hexapost/internal/interaction/domain"
	sharedCache "github.com/davicafu/hexapost/internal/shared/infra/platform/cache"
)

// CounterQuery sirve la vista de contadores con cache-aside delante del CounterStore.
type CounterQuery struct {
	counters domain.CounterStore
	cache    sharedCache.Cache
	ttlSecs  int
	log      *zap.Logger
}

// NewCounterQuery acepta cache nil: entonces cada lectura va al almacén.
func NewCounterQuery(counters domain.CounterStore, cache sharedCache.Cache, ttlSecs int, log *zap.Logger) *CounterQuery {
	return &CounterQuery{counters: counters, cache: cache, ttlSecs: ttlSecs, log: log}
}

func (q *CounterQuery) Get(ctx context.Context, postID string) (*domain.PostCounters, error) {
	if postID == "" {
		return nil, domain.ErrMissingPostID
	}
	return sharedCache.GetOrLoad(ctx, q.cache, domain.CacheKeyByPost(postID), q.ttlSecs, q.log,
		func(ctx context.Context) (*domain.PostCounters, error) {
			counters, err := q.counters.Get(ctx, postID)
			if err != nil {
				return nil, fmt.Errorf("counters of %s: %w", postID, err)
			}
			return counters, nil
		})
}
