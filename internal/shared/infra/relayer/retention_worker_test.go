package relayer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	logDomain "github.com/davicafu/hexapost/internal/eventlog/domain"
	"github.com/davicafu/hexapost/internal/eventlog/infra/outbound/memory"
)

func fill(t *testing.T, l logDomain.Log, key string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, _, err := l.Append(context.Background(), key, []byte(fmt.Sprintf("%s-%d", key, i)))
		require.NoError(t, err)
	}
}

func TestRetentionWorker_KeepsLastEntries(t *testing.T) {
	// ARRANGE
	ctx := context.Background()
	l := memory.NewLog(1)
	fill(t, l, "P1", 10)
	require.NoError(t, l.CommitOffset(ctx, 0, "counters", 10))

	worker := NewRetentionWorker(l, 3, 0, zap.NewNop())

	// ACT
	removed := worker.CompactAll(ctx)

	// ASSERT
	assert.Equal(t, 7, removed)
	earliest, latest, err := l.Bounds(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, logDomain.Position(8), earliest)
	assert.Equal(t, logDomain.Position(10), latest)

	assert.Zero(t, worker.CompactAll(ctx), "una segunda pasada no borra nada")
}

func TestRetentionWorker_NeverPassesSlowestGroup(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLog(1)
	fill(t, l, "P1", 10)
	require.NoError(t, l.CommitOffset(ctx, 0, "counters", 10))
	require.NoError(t, l.CommitOffset(ctx, 0, "analytics", 2))

	removed := NewRetentionWorker(l, 0, 0, zap.NewNop()).CompactAll(ctx)

	assert.Equal(t, 2, removed)
	records, err := l.Read(ctx, 0, 3, 0)
	require.NoError(t, err)
	assert.Len(t, records, 8, "analytics aún no ha visto 3..10")
}

func TestRetentionWorker_NothingCommittedNothingRemoved(t *testing.T) {
	l := memory.NewLog(2)
	fill(t, l, "P1", 5)
	fill(t, l, "P2", 5)

	assert.Zero(t, NewRetentionWorker(l, 0, 0, zap.NewNop()).CompactAll(context.Background()))
}

type brokenBounds struct{ logDomain.Log }

func (brokenBounds) Bounds(context.Context, int) (logDomain.Position, logDomain.Position, error) {
	return 0, 0, errors.New("db down")
}

func TestRetentionWorker_SkipsPartitionsOnError(t *testing.T) {
	l := brokenBounds{memory.NewLog(2)}
	assert.Zero(t, NewRetentionWorker(l, 0, 0, zap.NewNop()).CompactAll(context.Background()))
}
