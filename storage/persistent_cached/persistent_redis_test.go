package persistent_cached

import (
	"context"
	"os"
	"testing"

	"newsblog/storage"
	"newsblog/storage/in_memory"
	"newsblog/storage/models"
	"newsblog/storage/storagetest"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

// Runs only against a live server, e.g. REDIS_URL=localhost:6379. The
// database is flushed between tests.
func redisClient(t *testing.T) *redis.Client {
	redisUrl := os.Getenv("REDIS_URL")
	if redisUrl == "" {
		t.Skip("REDIS_URL not set")
	}
	client := redis.NewClient(&redis.Options{Addr: redisUrl})
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCachedStorage(t *testing.T) {
	redisClient(t)
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return NewPersistentStorageWithCache(in_memory.CreateInMemoryStorage(), redisClient(t))
	})
}

func TestPatchInvalidatesCachedPost(t *testing.T) {
	ctx := context.Background()
	client := redisClient(t)
	s := NewPersistentStorageWithCache(in_memory.CreateInMemoryStorage(), client)

	p, err := s.AddPost(ctx, "Hi", "World", nil)
	require.NoError(t, err)
	_, err = s.GetPost(ctx, p.Id)
	require.NoError(t, err)
	require.EqualValues(t, 1, client.Exists(ctx, postKey(p.Id)).Val())

	title := "Hello"
	_, err = s.PatchPost(ctx, p.Id, models.PostPatch{Title: &title})
	require.NoError(t, err)
	require.EqualValues(t, 0, client.Exists(ctx, postKey(p.Id)).Val())

	got, err := s.GetPost(ctx, p.Id)
	require.NoError(t, err)
	require.Equal(t, "Hello", got.Title)

	require.NoError(t, s.DeletePost(ctx, p.Id))
	_, err = s.GetPost(ctx, p.Id)
	require.ErrorIs(t, err, storage.NotFoundError)
}

func TestStaleReadIsNotCached(t *testing.T) {
	ctx := context.Background()
	client := redisClient(t)
	s := NewPersistentStorageWithCache(in_memory.CreateInMemoryStorage(), client)

	p, err := s.AddPost(ctx, "Hi", "World", nil)
	require.NoError(t, err)
	require.NoError(t, client.Del(ctx, postKey(p.Id)).Err())

	// A reader fetched p from the store, then the patch committed before the
	// reader got around to caching it.
	gen := currentGeneration(ctx, client, p.Id)
	title := "Hello"
	_, err = s.PatchPost(ctx, p.Id, models.PostPatch{Title: &title})
	require.NoError(t, err)
	saveToCache(ctx, client, p, gen)
	require.EqualValues(t, 0, client.Exists(ctx, postKey(p.Id)).Val())

	got, err := s.GetPost(ctx, p.Id)
	require.NoError(t, err)
	require.Equal(t, "Hello", got.Title)
	require.EqualValues(t, 1, client.Exists(ctx, postKey(p.Id)).Val())
}
