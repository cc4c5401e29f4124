package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/davicafu/hexapost/internal/idempotency/domain"
)

const defaultShards = 32

type dedupKey struct {
	group   string
	eventID string
}

type shard struct {
	mu      sync.RWMutex
	applied map[dedupKey]time.Time
}

// Store es un libro de deduplicación en memoria, troceado en shards para que
// claves independientes no compitan por el mismo lock.
type Store struct {
	shards []*shard
	now    func() time.Time
}

// Verificación estática.
var _ domain.Store = (*Store)(nil)

func NewStore() *Store {
	shards := make([]*shard, defaultShards)
	for i := range shards {
		shards[i] = &shard{applied: make(map[dedupKey]time.Time)}
	}
	return &Store{shards: shards, now: time.Now}
}

func (s *Store) shardFor(k dedupKey) *shard {
	return s.shards[xxhash.Sum64String(k.group+"\x00"+k.eventID)%uint64(len(s.shards))]
}

func (s *Store) TryApply(ctx context.Context, eventID, group string) (domain.Outcome, error) {
	if err := domain.Validate(eventID, group); err != nil {
		return domain.FirstTime, err
	}
	k := dedupKey{group: group, eventID: eventID}
	sh := s.shardFor(k)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	if _, ok := sh.applied[k]; ok {
		return domain.AlreadyApplied, nil
	}
	return domain.FirstTime, nil
}

func (s *Store) MarkApplied(ctx context.Context, eventID, group string) error {
	if err := domain.Validate(eventID, group); err != nil {
		return err
	}
	k := dedupKey{group: group, eventID: eventID}
	sh := s.shardFor(k)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.applied[k]; !ok {
		sh.applied[k] = s.now().UTC()
	}
	return nil
}

// AppliedAt devuelve cuándo se marcó el evento (útil para diagnósticos).
func (s *Store) AppliedAt(eventID, group string) (time.Time, bool) {
	k := dedupKey{group: group, eventID: eventID}
	sh := s.shardFor(k)

	sh.mu.RLock()
	defer sh.mu.RUnlock()
	at, ok := sh.applied[k]
	return at, ok
}
