package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davicafu/hexapost/internal/idempotency/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "dedup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, InitSQLite(db))
	return db
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))

	out, err := s.TryApply(ctx, "E1", "counters")
	require.NoError(t, err)
	assert.Equal(t, domain.FirstTime, out)

	require.NoError(t, s.MarkApplied(ctx, "E1", "counters"))
	require.NoError(t, s.MarkApplied(ctx, "E1", "counters"), "marcar de nuevo es un no-op")

	out, err = s.TryApply(ctx, "E1", "counters")
	require.NoError(t, err)
	assert.Equal(t, domain.AlreadyApplied, out)

	out, err = s.TryApply(ctx, "E1", "notifications")
	require.NoError(t, err)
	assert.Equal(t, domain.FirstTime, out)
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	require.NoError(t, NewStore(db).MarkApplied(ctx, "E7", "counters"))

	out, err := NewStore(db).TryApply(ctx, "E7", "counters")
	require.NoError(t, err)
	assert.Equal(t, domain.AlreadyApplied, out)
}
