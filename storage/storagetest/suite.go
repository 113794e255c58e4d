// Package storagetest holds the behaviour every storage.Storage backend must
// share, runnable against any of them.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"newsblog/storage"
	"newsblog/storage/models"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
)

// Run executes the suite against fresh stores produced by newStorage, one per
// test.
func Run(t *testing.T, newStorage func(t *testing.T) storage.Storage) {
	suite.Run(t, &StorageSuite{newStorage: newStorage})
}

type StorageSuite struct {
	suite.Suite

	newStorage func(t *testing.T) storage.Storage
	store      storage.Storage
	ctx        context.Context
}

func (s *StorageSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStorage(s.T())
}

func strPtr(v string) *string {
	return &v
}

func (s *StorageSuite) TestAddPostValidation() {
	_, err := s.store.AddPost(s.ctx, "", "content", nil)
	s.Require().ErrorIs(err, storage.ValidationError)
	_, err = s.store.AddPost(s.ctx, "title", "  ", nil)
	s.Require().ErrorIs(err, storage.ValidationError)

	posts, err := s.store.GetPosts(s.ctx)
	s.Require().NoError(err)
	s.Require().Empty(posts)
}

func (s *StorageSuite) TestAddAndGetPost() {
	created, err := s.store.AddPost(s.ctx, "Hi", "World", strPtr("https://example.com/a.png"))
	s.Require().NoError(err)
	s.Require().NotZero(created.Id)
	s.Require().False(created.CreatedAt.IsZero())

	got, err := s.store.GetPost(s.ctx, created.Id)
	s.Require().NoError(err)
	s.Require().Equal(created.Id, got.Id)
	s.Require().Equal("Hi", got.Title)
	s.Require().Equal("World", got.Content)
	s.Require().NotNil(got.ImageUrl)
	s.Require().Equal("https://example.com/a.png", *got.ImageUrl)
	s.Require().True(created.CreatedAt.Equal(got.CreatedAt))

	_, err = s.store.GetPost(s.ctx, created.Id+1000)
	s.Require().ErrorIs(err, storage.NotFoundError)
}

func (s *StorageSuite) TestGetPostsNewestFirst() {
	var ids []int64
	for i := 0; i < 5; i++ {
		p, err := s.store.AddPost(s.ctx, fmt.Sprintf("title %d", i), "content", nil)
		s.Require().NoError(err)
		ids = append(ids, p.Id)
	}

	posts, err := s.store.GetPosts(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(posts, 5)
	for i, p := range posts {
		s.Require().Equal(ids[len(ids)-1-i], p.Id)
	}
}

func (s *StorageSuite) TestPatchPostKeepsMissingFields() {
	p, err := s.store.AddPost(s.ctx, "Hi", "World", strPtr("https://example.com/a.png"))
	s.Require().NoError(err)

	updated, err := s.store.PatchPost(s.ctx, p.Id, models.PostPatch{Content: strPtr("Everyone")})
	s.Require().NoError(err)
	s.Require().Equal("Hi", updated.Title)
	s.Require().Equal("Everyone", updated.Content)
	s.Require().Equal("https://example.com/a.png", *updated.ImageUrl)
	s.Require().True(p.CreatedAt.Equal(updated.CreatedAt))

	updated, err = s.store.PatchPost(s.ctx, p.Id, models.PostPatch{ClearImage: true})
	s.Require().NoError(err)
	s.Require().Nil(updated.ImageUrl)

	got, err := s.store.GetPost(s.ctx, p.Id)
	s.Require().NoError(err)
	s.Require().Equal("Everyone", got.Content)
	s.Require().Nil(got.ImageUrl)
}

func (s *StorageSuite) TestPatchPostErrors() {
	_, err := s.store.PatchPost(s.ctx, 4242, models.PostPatch{Title: strPtr("x")})
	s.Require().ErrorIs(err, storage.NotFoundError)

	p, err := s.store.AddPost(s.ctx, "Hi", "World", nil)
	s.Require().NoError(err)
	_, err = s.store.PatchPost(s.ctx, p.Id, models.PostPatch{Title: strPtr("")})
	s.Require().ErrorIs(err, storage.ValidationError)

	got, err := s.store.GetPost(s.ctx, p.Id)
	s.Require().NoError(err)
	s.Require().Equal("Hi", got.Title)
}

func (s *StorageSuite) TestDeletePostTwice() {
	p, err := s.store.AddPost(s.ctx, "Hi", "World", nil)
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeletePost(s.ctx, p.Id))
	s.Require().ErrorIs(s.store.DeletePost(s.ctx, p.Id), storage.NotFoundError)

	_, err = s.store.GetPost(s.ctx, p.Id)
	s.Require().ErrorIs(err, storage.NotFoundError)
}

func (s *StorageSuite) TestIdsAreNotReused() {
	first, err := s.store.AddPost(s.ctx, "first", "content", nil)
	s.Require().NoError(err)
	s.Require().NoError(s.store.DeletePost(s.ctx, first.Id))

	second, err := s.store.AddPost(s.ctx, "second", "content", nil)
	s.Require().NoError(err)
	s.Require().Greater(second.Id, first.Id)
}

func (s *StorageSuite) TestSubscriberUniqueness() {
	sub, err := s.store.AddSubscriber(s.ctx, "A@B.com ")
	s.Require().NoError(err)
	s.Require().Equal("a@b.com", sub.Email)

	_, err = s.store.AddSubscriber(s.ctx, "a@b.com")
	s.Require().ErrorIs(err, storage.ConflictError)
	s.Require().True(errors.Is(err, storage.ClientError))

	subs, err := s.store.GetSubscribers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(subs, 1)
	s.Require().Equal(sub.Id, subs[0].Id)
}

func (s *StorageSuite) TestConcurrentSignupsSameEmail() {
	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.AddSubscriber(s.ctx, "race@example.com")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, storage.ConflictError) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	s.Require().Equal(1, succeeded)
	s.Require().Equal(writers-1, conflicts)
	subs, err := s.store.GetSubscribers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(subs, 1)
}

func (s *StorageSuite) TestDeleteSubscriber() {
	sub, err := s.store.AddSubscriber(s.ctx, "a@b.com")
	s.Require().NoError(err)
	other, err := s.store.AddSubscriber(s.ctx, "c@d.com")
	s.Require().NoError(err)

	deleted, err := s.store.DeleteSubscriber(s.ctx, sub.Id)
	s.Require().NoError(err)
	s.Require().Equal("a@b.com", deleted.Email)

	_, err = s.store.DeleteSubscriber(s.ctx, sub.Id)
	s.Require().ErrorIs(err, storage.NotFoundError)

	subs, err := s.store.GetSubscribers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(subs, 1)
	s.Require().Equal(other.Id, subs[0].Id)

	again, err := s.store.AddSubscriber(s.ctx, "a@b.com")
	s.Require().NoError(err)
	s.Require().NotEqual(sub.Id, again.Id)
}

func (s *StorageSuite) TestGetSubscribersNewestFirst() {
	first, err := s.store.AddSubscriber(s.ctx, "first@example.com")
	s.Require().NoError(err)
	second, err := s.store.AddSubscriber(s.ctx, "second@example.com")
	s.Require().NoError(err)

	subs, err := s.store.GetSubscribers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(subs, 2)
	s.Require().Equal(second.Id, subs[0].Id)
	s.Require().Equal(first.Id, subs[1].Id)
}
