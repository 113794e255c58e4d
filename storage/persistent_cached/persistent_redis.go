package persistent_cached

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"newsblog/storage"
	"newsblog/storage/models"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const postTTL = time.Hour

var errStale = errors.New("stale read")

func postKey(id int64) string {
	return fmt.Sprintf("post:%d", id)
}

// Every invalidation bumps the post's generation. A reader remembers the
// generation it saw before going to the store and only caches its result
// when the generation is still the same.
func generationKey(id int64) string {
	return fmt.Sprintf("post:%d:gen", id)
}

func currentGeneration(ctx context.Context, client *redis.Client, id int64) int64 {
	gen, err := client.Get(ctx, generationKey(id)).Int64()
	if err != nil && err != redis.Nil {
		log.WithFields(log.Fields{"post": id, "err": err}).Warn("Failed to get post generation from redis")
		return -1
	}
	return gen
}

func saveToCache(ctx context.Context, client *redis.Client, post models.Post, gen int64) {
	if gen < 0 {
		return
	}
	j, err := json.Marshal(post)
	if err == nil {
		err = client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, generationKey(post.Id)).Int64()
			if err != nil && err != redis.Nil {
				return err
			}
			if current != gen {
				return errStale
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, postKey(post.Id), j, postTTL)
				return nil
			})
			return err
		}, generationKey(post.Id))
	}
	if err == errStale || err == redis.TxFailedErr {
		log.WithField("post", post.Id).Debug("Post changed while reading, not caching")
		return
	}
	if err != nil {
		log.WithFields(log.Fields{"post": post.Id, "err": err}).Warn("Failed to save post to redis")
	}
}

func getFromCache(ctx context.Context, client *redis.Client, id int64) (models.Post, error) {
	val, err := client.Get(ctx, postKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.WithFields(log.Fields{"post": id, "err": err}).Warn("Failed to get post from redis")
		}
		return models.Post{}, err
	}
	var p models.Post
	if err := json.Unmarshal(val, &p); err != nil {
		log.WithFields(log.Fields{"post": id, "err": err}).Warn("Corrupt post in redis")
		return models.Post{}, err
	}
	return p, nil
}

func removeFromCache(ctx context.Context, client *redis.Client, id int64) {
	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(id))
		pipe.Del(ctx, postKey(id))
		return nil
	})
	if err != nil {
		log.WithFields(log.Fields{"post": id, "err": err}).Warn("Failed to remove post from redis")
	}
}

// CreatePersistentStorageCachedWithRedis wraps persistentStorage with a
// read-through cache of single posts. Lists and subscribers always go to the
// underlying store.
func CreatePersistentStorageCachedWithRedis(persistentStorage storage.Storage, redisUrl string) storage.Storage {
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisUrl,
	})
	return NewPersistentStorageWithCache(persistentStorage, redisClient)
}

func NewPersistentStorageWithCache(persistentStorage storage.Storage, client *redis.Client) *PersistentStorageWithCache {
	return &PersistentStorageWithCache{
		client:            client,
		persistentStorage: persistentStorage,
	}
}

type PersistentStorageWithCache struct {
	client            *redis.Client
	persistentStorage storage.Storage
}

func (s *PersistentStorageWithCache) AddPost(ctx context.Context, title string, content string, imageUrl *string) (models.Post, error) {
	post, err := s.persistentStorage.AddPost(ctx, title, content, imageUrl)
	if err == nil {
		saveToCache(ctx, s.client, post, currentGeneration(ctx, s.client, post.Id))
	}
	return post, err
}

func (s *PersistentStorageWithCache) GetPosts(ctx context.Context) ([]models.Post, error) {
	return s.persistentStorage.GetPosts(ctx)
}

func (s *PersistentStorageWithCache) GetPost(ctx context.Context, id int64) (models.Post, error) {
	p, err := getFromCache(ctx, s.client, id)
	if err == nil {
		return p, nil
	}
	gen := currentGeneration(ctx, s.client, id)
	post, err := s.persistentStorage.GetPost(ctx, id)
	if err == nil {
		saveToCache(ctx, s.client, post, gen)
	}
	return post, err
}

// PatchPost drops the cached entry after the write. A reader that fetched the
// old row before the write sees the bumped generation and does not cache it.
func (s *PersistentStorageWithCache) PatchPost(ctx context.Context, id int64, patch models.PostPatch) (models.Post, error) {
	post, err := s.persistentStorage.PatchPost(ctx, id, patch)
	if err == nil {
		removeFromCache(ctx, s.client, id)
	}
	return post, err
}

func (s *PersistentStorageWithCache) DeletePost(ctx context.Context, id int64) error {
	err := s.persistentStorage.DeletePost(ctx, id)
	removeFromCache(ctx, s.client, id)
	return err
}

func (s *PersistentStorageWithCache) AddSubscriber(ctx context.Context, email string) (models.Subscriber, error) {
	return s.persistentStorage.AddSubscriber(ctx, email)
}

func (s *PersistentStorageWithCache) GetSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	return s.persistentStorage.GetSubscribers(ctx)
}

func (s *PersistentStorageWithCache) DeleteSubscriber(ctx context.Context, id int64) (models.Subscriber, error) {
	return s.persistentStorage.DeleteSubscriber(ctx, id)
}

func (s *PersistentStorageWithCache) Close() error {
	return s.client.Close()
}
