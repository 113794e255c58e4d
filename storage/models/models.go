package models

import (
	"strings"
	"time"
)

type Post struct {
	Id        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageUrl  *string   `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
}

// PostPatch carries the fields of a partial update. Nil fields are left
// untouched; ClearImage drops the image url.
type PostPatch struct {
	Title      *string
	Content    *string
	ImageUrl   *string
	ClearImage bool
}

func (p PostPatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.ImageUrl == nil && !p.ClearImage
}

// Apply returns a copy of post with the patch applied.
func (p PostPatch) Apply(post Post) Post {
	if p.Title != nil {
		post.Title = *p.Title
	}
	if p.Content != nil {
		post.Content = *p.Content
	}
	if p.ClearImage {
		post.ImageUrl = nil
	} else if p.ImageUrl != nil {
		url := *p.ImageUrl
		post.ImageUrl = &url
	}
	return post
}

type Subscriber struct {
	Id           int64     `json:"id"`
	Email        string    `json:"email"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Now is the creation timestamp used by every backend. Mongo keeps
// milliseconds only.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
