package storage

import (
	"context"
	"errors"
	"fmt"
	"newsblog/storage/models"
)

var (
	InternalError   = errors.New("storage internal error")
	ClientError     = errors.New("storage client error")
	ValidationError = fmt.Errorf("%w.validation", ClientError)
	ConflictError   = fmt.Errorf("%w.conflict", ClientError)
	NotFoundError   = fmt.Errorf("%w.not_found", ClientError)
)

type Storage interface {
	AddPost(ctx context.Context, title string, content string, imageUrl *string) (models.Post, error)
	GetPosts(ctx context.Context) ([]models.Post, error)
	GetPost(ctx context.Context, id int64) (models.Post, error)
	PatchPost(ctx context.Context, id int64, patch models.PostPatch) (models.Post, error)
	DeletePost(ctx context.Context, id int64) error

	AddSubscriber(ctx context.Context, email string) (models.Subscriber, error)
	GetSubscribers(ctx context.Context) ([]models.Subscriber, error)
	DeleteSubscriber(ctx context.Context, id int64) (models.Subscriber, error)
}

// ValidateNewPost is shared by every backend so that no row is ever written
// with an empty title or content.
func ValidateNewPost(title, content string) error {
	if models.IsBlank(title) {
		return fmt.Errorf("title is required: %w", ValidationError)
	}
	if models.IsBlank(content) {
		return fmt.Errorf("content is required: %w", ValidationError)
	}
	return nil
}

func ValidatePatch(patch models.PostPatch) error {
	if patch.Title != nil && models.IsBlank(*patch.Title) {
		return fmt.Errorf("title cannot be empty: %w", ValidationError)
	}
	if patch.Content != nil && models.IsBlank(*patch.Content) {
		return fmt.Errorf("content cannot be empty: %w", ValidationError)
	}
	return nil
}

// NormalizeSubscriberEmail returns the form under which an address is stored
// and compared for uniqueness.
func NormalizeSubscriberEmail(email string) (string, error) {
	normalized := models.NormalizeEmail(email)
	if normalized == "" {
		return "", fmt.Errorf("email is required: %w", ValidationError)
	}
	return normalized, nil
}
