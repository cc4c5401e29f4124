// Package logtest contiene la batería de pruebas que todo backend de domain.Log debe pasar.
package logtest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davicafu/hexapost/internal/eventlog/domain"
)

// Factory crea un log vacío con el número de particiones pedido.
type Factory func(t *testing.T, partitions int) domain.Log

// Run ejecuta la batería completa contra el backend.
func Run(t *testing.T, newLog Factory) {
	t.Run("AppendAssignsDensePositionsPerPartition", func(t *testing.T) { testDensePositions(t, newLog) })
	t.Run("ReadIsOrderedAndResumable", func(t *testing.T) { testReadResumable(t, newLog) })
	t.Run("ConcurrentAppendsKeepPerKeyOrder", func(t *testing.T) { testConcurrentAppends(t, newLog) })
	t.Run("CommitOffsetIsMonotonic", func(t *testing.T) { testOffsetMonotonic(t, newLog) })
	t.Run("CompactRespectsCommittedOffsets", func(t *testing.T) { testCompact(t, newLog) })
	t.Run("NotifyWakesOnAppend", func(t *testing.T) { testNotify(t, newLog) })
	t.Run("RejectsInvalidPartition", func(t *testing.T) { testInvalidPartition(t, newLog) })
}

func testDensePositions(t *testing.T, newLog Factory) {
	ctx := context.Background()
	l := newLog(t, 4)

	last := map[int]domain.Position{}
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("P%d", i%5)
		part, pos, err := l.Append(ctx, key, []byte(fmt.Sprintf("e%d", i)))
		require.NoError(t, err)
		assert.Equal(t, l.PartitionFor(key), part)
		assert.Equal(t, last[part]+1, pos, "posiciones densas dentro de la partición")
		last[part] = pos
	}

	for part, latest := range last {
		earliest, gotLatest, err := l.Bounds(ctx, part)
		require.NoError(t, err)
		assert.Equal(t, domain.Position(1), earliest)
		assert.Equal(t, latest, gotLatest)
	}
}

func testReadResumable(t *testing.T, newLog Factory) {
	ctx := context.Background()
	l := newLog(t, 1)

	for i := 1; i <= 7; i++ {
		_, _, err := l.Append(ctx, "P1", []byte(fmt.Sprintf("e%d", i)))
		require.NoError(t, err)
	}

	first, err := l.Read(ctx, 0, 1, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, "e1", string(first[0].Data))
	assert.Equal(t, domain.Position(3), first[2].Position)

	rest, err := l.Read(ctx, 0, first[2].Position+1, 100)
	require.NoError(t, err)
	require.Len(t, rest, 4)
	assert.Equal(t, "e4", string(rest[0].Data))
	assert.Equal(t, "e7", string(rest[3].Data))

	again, err := l.Read(ctx, 0, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"e2", "e3"}, []string{string(again[0].Data), string(again[1].Data)})

	tail, err := l.Read(ctx, 0, 8, 10)
	require.NoError(t, err)
	assert.Empty(t, tail, "leer más allá del final no es un error")
}

func testConcurrentAppends(t *testing.T, newLog Factory) {
	ctx := context.Background()
	l := newLog(t, 4)

	const producers, perProducer = 4, 25
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			key := fmt.Sprintf("post-%d", p)
			for i := 0; i < perProducer; i++ {
				_, _, err := l.Append(ctx, key, []byte(fmt.Sprintf("%s:%03d", key, i)))
				assert.NoError(t, err)
			}
		}(p)
	}
	wg.Wait()

	total := 0
	for part := 0; part < l.Partitions(); part++ {
		records, err := l.Read(ctx, part, 1, 0)
		require.NoError(t, err)
		total += len(records)

		next := map[string]int{}
		for i, r := range records {
			assert.Equal(t, domain.Position(i+1), r.Position)
			key, rawSeq, ok := strings.Cut(string(r.Data), ":")
			require.True(t, ok)
			seq, err := strconv.Atoi(rawSeq)
			require.NoError(t, err)
			assert.Equal(t, next[key], seq, "orden de append por clave")
			next[key] = seq + 1
		}
	}
	assert.Equal(t, producers*perProducer, total)
}

func testOffsetMonotonic(t *testing.T, newLog Factory) {
	ctx := context.Background()
	l := newLog(t, 2)

	got, err := l.CommittedOffset(ctx, 1, "counters")
	require.NoError(t, err)
	assert.Equal(t, domain.Position(0), got)

	require.NoError(t, l.CommitOffset(ctx, 1, "counters", 10))
	require.NoError(t, l.CommitOffset(ctx, 1, "counters", 4), "commit menor es un no-op, no un error")

	got, err = l.CommittedOffset(ctx, 1, "counters")
	require.NoError(t, err)
	assert.Equal(t, domain.Position(10), got)

	other, err := l.CommittedOffset(ctx, 1, "analytics")
	require.NoError(t, err)
	assert.Equal(t, domain.Position(0), other, "cada grupo tiene su propio offset")

	assert.ErrorIs(t, l.CommitOffset(ctx, 1, "", 3), domain.ErrEmptyConsumerName)
}

func testCompact(t *testing.T, newLog Factory) {
	ctx := context.Background()
	l := newLog(t, 1)

	for i := 1; i <= 10; i++ {
		_, _, err := l.Append(ctx, "P1", []byte(fmt.Sprintf("e%d", i)))
		require.NoError(t, err)
	}

	removed, err := l.Compact(ctx, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, 0, removed, "sin offsets confirmados no se compacta nada")

	require.NoError(t, l.CommitOffset(ctx, 0, "a", 6))
	require.NoError(t, l.CommitOffset(ctx, 0, "b", 4))

	removed, err = l.Compact(ctx, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, 4, removed, "se respeta el offset mínimo de todos los grupos")

	earliest, latest, err := l.Bounds(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.Position(5), earliest)
	assert.Equal(t, domain.Position(10), latest)

	_, err = l.Read(ctx, 0, 2, 10)
	require.ErrorIs(t, err, domain.ErrNotFound)
	var gap *domain.RetentionGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, domain.Position(5), gap.Earliest)

	records, err := l.Read(ctx, 0, 5, 10)
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Equal(t, "e5", string(records[0].Data))

	_, pos, err := l.Append(ctx, "P1", []byte("e11"))
	require.NoError(t, err)
	assert.Equal(t, domain.Position(11), pos, "las posiciones siguen tras compactar")
}

func testNotify(t *testing.T, newLog Factory) {
	ctx := context.Background()
	l := newLog(t, 1)

	wait := l.Notify(0)
	select {
	case <-wait:
		t.Fatal("no debería despertar sin appends")
	default:
	}

	_, _, err := l.Append(ctx, "P1", []byte("e1"))
	require.NoError(t, err)

	select {
	case <-wait:
	case <-time.After(time.Second):
		t.Fatal("Notify no se cerró tras el append")
	}
}

func testInvalidPartition(t *testing.T, newLog Factory) {
	ctx := context.Background()
	l := newLog(t, 2)

	_, err := l.Read(ctx, 5, 1, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidPartition)
	assert.ErrorIs(t, l.CommitOffset(ctx, -1, "g", 1), domain.ErrInvalidPartition)
}
