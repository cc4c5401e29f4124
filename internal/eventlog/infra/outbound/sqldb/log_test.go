package sqldb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davicafu/hexapost/internal/eventlog/domain"
	"github.com/davicafu/hexapost/internal/eventlog/infra/outbound/logtest"
)

func openTestDB(t *testing.T) *Log {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, InitSchema(context.Background(), db, SQLite))
	return NewLog(db, SQLite, 1)
}

func TestSQLiteLog(t *testing.T) {
	logtest.Run(t, func(t *testing.T, partitions int) domain.Log {
		db, err := OpenSQLite(filepath.Join(t.TempDir(), "log.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })

		require.NoError(t, InitSchema(context.Background(), db, SQLite))
		return NewLog(db, SQLite, partitions)
	})
}

func TestSQLiteLog_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "log.db")

	db, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, InitSchema(ctx, db, SQLite))
	first := NewLog(db, SQLite, 2)

	part, _, err := first.Append(ctx, "P1", []byte("e1"))
	require.NoError(t, err)
	_, _, err = first.Append(ctx, "P1", []byte("e2"))
	require.NoError(t, err)
	require.NoError(t, first.CommitOffset(ctx, part, "counters", 1))
	require.NoError(t, db.Close())

	// ARRANGE: un proceso nuevo sobre el mismo fichero
	db2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer db2.Close()
	second := NewLog(db2, SQLite, 2)

	// ACT
	_, pos, err := second.Append(ctx, "P1", []byte("e3"))
	require.NoError(t, err)
	committed, err := second.CommittedOffset(ctx, part, "counters")
	require.NoError(t, err)

	// ASSERT
	assert.Equal(t, domain.Position(3), pos, "la posición continúa tras reabrir")
	assert.Equal(t, domain.Position(1), committed)

	records, err := second.Read(ctx, part, committed+1, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "e2", string(records[0].Data))
	assert.Equal(t, "e3", string(records[1].Data))
}

func TestSQLiteLog_AppendFailsWithDurabilityError(t *testing.T) {
	l := openTestDB(t)
	require.NoError(t, l.db.Close())

	_, _, err := l.Append(context.Background(), "P1", []byte("e1"))
	assert.ErrorIs(t, err, domain.ErrDurability)
}

func TestDialect_Rebind(t *testing.T) {
	q := `SELECT pos FROM event_log WHERE partition_id = ? AND pos >= ? LIMIT ?`

	assert.Equal(t, q, SQLite.rebind(q))
	assert.Equal(t, `SELECT pos FROM event_log WHERE partition_id = $1 AND pos >= $2 LIMIT $3`, Postgres.rebind(q))
}
