package memory

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/davicafu/hexapost/internal/interaction/domain"
)

const indexShards = 32

// postRecord es la entrada del arena para un post. Cada contador guarda el conjunto
// de eventIDs que contribuyeron.
type postRecord struct {
	mu       sync.Mutex
	likes    map[string]struct{}
	comments map[string]struct{}
}

type indexShard struct {
	mu    sync.RWMutex
	posts map[string]*postRecord
}

// CounterStore es un arena de registros por post. El índice está troceado y cada
// registro tiene su propio lock: posts distintos no compiten entre sí.
type CounterStore struct {
	shards []*indexShard
}

// Verificación estática.
var _ domain.CounterStore = (*CounterStore)(nil)

func NewCounterStore() *CounterStore {
	shards := make([]*indexShard, indexShards)
	for i := range shards {
		shards[i] = &indexShard{posts: make(map[string]*postRecord)}
	}
	return &CounterStore{shards: shards}
}

func (s *CounterStore) shardFor(postID string) *indexShard {
	return s.shards[xxhash.Sum64String(postID)%uint64(len(s.shards))]
}

func (s *CounterStore) lookup(postID string) *postRecord {
	sh := s.shardFor(postID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.posts[postID]
}

func (s *CounterStore) record(postID string) *postRecord {
	if rec := s.lookup(postID); rec != nil {
		return rec
	}

	sh := s.shardFor(postID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.posts[postID]
	if !ok {
		rec = &postRecord{likes: make(map[string]struct{}), comments: make(map[string]struct{})}
		sh.posts[postID] = rec
	}
	return rec
}

func (s *CounterStore) Increment(ctx context.Context, postID string, field domain.CounterField, eventID string) (int64, error) {
	if err := domain.ValidateIncrement(postID, field, eventID); err != nil {
		return 0, err
	}
	rec := s.record(postID)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	set := rec.likes
	if field == domain.FieldComments {
		set = rec.comments
	}
	set[eventID] = struct{}{}
	return int64(len(set)), nil
}

func (s *CounterStore) Get(ctx context.Context, postID string) (*domain.PostCounters, error) {
	if postID == "" {
		return nil, domain.ErrMissingPostID
	}
	out := &domain.PostCounters{PostID: postID}

	rec := s.lookup(postID)
	if rec == nil {
		return out, nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	out.LikesCount = int64(len(rec.likes))
	out.CommentsCount = int64(len(rec.comments))
	return out, nil
}
