package in_memory

import (
	"context"
	"fmt"
	"newsblog/storage"
	"newsblog/storage/models"
	"sort"
	"sync"
)

type InMemoryStorage struct {
	mut              sync.RWMutex
	posts            map[int64]models.Post
	subscribers      map[int64]models.Subscriber
	subscriberEmails map[string]int64
	lastPostId       int64
	lastSubscriberId int64
}

func (s *InMemoryStorage) AddPost(ctx context.Context, title string, content string, imageUrl *string) (models.Post, error) {
	if err := storage.ValidateNewPost(title, content); err != nil {
		return models.Post{}, err
	}
	s.mut.Lock()
	defer s.mut.Unlock()

	s.lastPostId++
	p := models.Post{
		Id:        s.lastPostId,
		Title:     title,
		Content:   content,
		CreatedAt: models.Now(),
	}
	if imageUrl != nil {
		url := *imageUrl
		p.ImageUrl = &url
	}
	s.posts[p.Id] = p
	return p, nil
}

func (s *InMemoryStorage) GetPosts(ctx context.Context) ([]models.Post, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()

	posts := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		posts = append(posts, p)
	}
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].Id > posts[j].Id
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	return posts, nil
}

func (s *InMemoryStorage) GetPost(ctx context.Context, id int64) (models.Post, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()

	post, found := s.posts[id]
	if !found {
		return models.Post{}, fmt.Errorf("no post with id %d: %w", id, storage.NotFoundError)
	}
	return post, nil
}

func (s *InMemoryStorage) PatchPost(ctx context.Context, id int64, patch models.PostPatch) (models.Post, error) {
	if err := storage.ValidatePatch(patch); err != nil {
		return models.Post{}, err
	}
	s.mut.Lock()
	defer s.mut.Unlock()

	post, found := s.posts[id]
	if !found {
		return models.Post{}, fmt.Errorf("no post with id %d: %w", id, storage.NotFoundError)
	}
	post = patch.Apply(post)
	s.posts[id] = post
	return post, nil
}

func (s *InMemoryStorage) DeletePost(ctx context.Context, id int64) error {
	s.mut.Lock()
	defer s.mut.Unlock()

	if _, found := s.posts[id]; !found {
		return fmt.Errorf("no post with id %d: %w", id, storage.NotFoundError)
	}
	delete(s.posts, id)
	return nil
}

func (s *InMemoryStorage) AddSubscriber(ctx context.Context, email string) (models.Subscriber, error) {
	email, err := storage.NormalizeSubscriberEmail(email)
	if err != nil {
		return models.Subscriber{}, err
	}
	s.mut.Lock()
	defer s.mut.Unlock()

	if _, found := s.subscriberEmails[email]; found {
		return models.Subscriber{}, fmt.Errorf("email %s already subscribed: %w", email, storage.ConflictError)
	}
	s.lastSubscriberId++
	sub := models.Subscriber{
		Id:           s.lastSubscriberId,
		Email:        email,
		SubscribedAt: models.Now(),
	}
	s.subscribers[sub.Id] = sub
	s.subscriberEmails[email] = sub.Id
	return sub, nil
}

func (s *InMemoryStorage) GetSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()

	subscribers := make([]models.Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subscribers = append(subscribers, sub)
	}
	sort.Slice(subscribers, func(i, j int) bool {
		return subscribers[i].Id > subscribers[j].Id
	})
	return subscribers, nil
}

func (s *InMemoryStorage) DeleteSubscriber(ctx context.Context, id int64) (models.Subscriber, error) {
	s.mut.Lock()
	defer s.mut.Unlock()

	sub, found := s.subscribers[id]
	if !found {
		return models.Subscriber{}, fmt.Errorf("no subscriber with id %d: %w", id, storage.NotFoundError)
	}
	delete(s.subscribers, id)
	delete(s.subscriberEmails, sub.Email)
	return sub, nil
}

func CreateInMemoryStorage() storage.Storage {
	return &InMemoryStorage{
		posts:            make(map[int64]models.Post),
		subscribers:      make(map[int64]models.Subscriber),
		subscriberEmails: make(map[string]int64),
	}
}
