package deadletter

import (
	"context"
	"sync"

	"go.uber.org/zap"

	logDomain "github.com/davicafu/hexapost/internal/eventlog/domain"
)

// MemorySink guarda las cartas en memoria, una por key. Para modo efímero y tests.
type MemorySink struct {
	mu      sync.RWMutex
	letters map[string]logDomain.DeadLetter
	order   []string
	log     *zap.Logger
}

var _ logDomain.DeadLetterStore = (*MemorySink)(nil)

func NewMemorySink(log *zap.Logger) *MemorySink {
	return &MemorySink{letters: make(map[string]logDomain.DeadLetter), log: log}
}

// Send es idempotente por Key: un reenvío tras un crash no duplica la carta.
func (s *MemorySink) Send(ctx context.Context, letter logDomain.DeadLetter) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := letter.Key()
	if _, exists := s.letters[key]; exists {
		s.log.Debug("Dead letter already stored", zap.String("key", key))
		return nil
	}
	s.letters[key] = letter
	s.order = append(s.order, key)

	s.log.Warn("☠️ Dead letter stored",
		zap.String("key", key),
		zap.Int("attempts", letter.Attempts),
		zap.String("reason", letter.Reason),
	)
	return nil
}

func (s *MemorySink) List(ctx context.Context, limit int) ([]logDomain.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]logDomain.DeadLetter, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.letters[s.order[i]])
	}
	return out, nil
}

func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.letters)
}
