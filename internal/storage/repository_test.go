package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/cache"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "gastos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteRepository_CacheEntries(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	require.NoError(t, repo.Put(ctx, "k", []byte(`{"data":[],"timestamp":1}`)))
	require.NoError(t, repo.Put(ctx, "k", []byte(`{"data":[],"timestamp":2}`)))

	got, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[],"timestamp":2}`, string(got))

	require.NoError(t, repo.Delete(ctx, "k"))
	assert.ErrorIs(t, repo.Delete(ctx, "k"), cache.ErrNotFound)
}

func TestSQLiteRepository_BacksCacheStore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	store := cache.NewStore(repo)

	store.Write(ctx, nil)
	assert.True(t, store.IsValid(ctx))
	store.Clear(ctx)
	assert.False(t, store.IsValid(ctx))
}

func TestSQLiteRepository_RefreshLog(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }
	require.NoError(t, repo.RecordRefresh(ctx, "network", 12, nil))
	repo.now = func() time.Time { return base.Add(time.Minute) }
	require.NoError(t, repo.RecordRefresh(ctx, "network", 0, errors.New("failed to fetch sheet: Forbidden")))

	entries, err := repo.RecentRefreshes(ctx, 5)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "failed to fetch sheet: Forbidden", entries[0].Error)
	assert.Equal(t, 12, entries[1].Records)
	assert.Empty(t, entries[1].Error)
	assert.True(t, entries[1].RefreshedAt.Equal(base))
}

func TestMigrate_Idempotent(t *testing.T) {
	repo := newTestRepo(t)

	version, err := Migrate(repo.db)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	// The repository connection survives a second run.
	require.NoError(t, repo.Ping(context.Background()))
}
