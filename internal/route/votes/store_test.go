package votes_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/example/routebook/internal/route/domain"
	"github.com/example/routebook/internal/route/votes"
)

func newRedisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client, mr
}

func stores(t *testing.T) map[string]domain.KeyValueStore {
	client, _ := newRedisClient(t)
	lite, err := votes.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "votes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = lite.Close() })
	return map[string]domain.KeyValueStore{
		"memory": votes.NewMemory(),
		"redis":  votes.NewRedis(client, ""),
		"sqlite": lite,
	}
}

func TestStoreContract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := store.Get(ctx, "hasLiked:a:1")
			require.NoError(t, err)
			require.False(t, ok)

			set, err := store.SetIfAbsent(ctx, "hasLiked:a:1", "true")
			require.NoError(t, err)
			require.True(t, set)

			set, err = store.SetIfAbsent(ctx, "hasLiked:a:1", "true")
			require.NoError(t, err)
			require.False(t, set)

			v, ok, err := store.Get(ctx, "hasLiked:a:1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "true", v)

			require.NoError(t, store.Set(ctx, "likes-1", "4"))
			require.NoError(t, store.Set(ctx, "likes-1", "5"))
			v, ok, err = store.Get(ctx, "likes-1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "5", v)
		})
	}
}

func TestRedisUsesPrefix(t *testing.T) {
	client, mr := newRedisClient(t)
	store := votes.NewRedis(client, "test:")
	require.NoError(t, store.Set(context.Background(), "likes-2", "3"))

	v, err := mr.Get("test:likes-2")
	require.NoError(t, err)
	require.Equal(t, "3", v)
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "votes.db")

	first, err := votes.OpenSQLite(ctx, path)
	require.NoError(t, err)
	_, err = first.SetIfAbsent(ctx, "hasLiked:local:2", "true")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := votes.OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer second.Close()
	set, err := second.SetIfAbsent(ctx, "hasLiked:local:2", "true")
	require.NoError(t, err)
	require.False(t, set)
}
