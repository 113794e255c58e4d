package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"newsblog/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateImage(t *testing.T) {
	const max = 16 * 1024 * 1024
	for _, name := range []string{"a.png", "a.jpg", "a.JPEG", "photo.final.gif", "b.webp"} {
		assert.NoError(t, ValidateImage(name, 10, max), name)
	}
	for _, name := range []string{"a.exe", "png", "a.png.exe", "", "a.svg"} {
		assert.ErrorIs(t, ValidateImage(name, 10, max), ValidationError, name)
	}
	assert.NoError(t, ValidateImage("a.png", max, max))
	assert.ErrorIs(t, ValidateImage("a.png", max+1, max), ValidationError)
}

func TestObjectKey(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	first := ObjectKey("Cat.PNG", now)
	second := ObjectKey("Cat.PNG", now)

	assert.True(t, strings.HasPrefix(first, "images/20261017_093000_"), first)
	assert.True(t, strings.HasSuffix(first, ".png"), first)
	assert.NotEqual(t, first, second)
}

type fakeS3 struct {
	mu     sync.Mutex
	status int
	hits   int
	paths  []string
	bodies []string
	types  []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits++
	body, _ := io.ReadAll(r.Body)
	f.paths = append(f.paths, r.URL.Path)
	f.bodies = append(f.bodies, string(body))
	f.types = append(f.types, r.Header.Get("Content-Type"))
	if f.status != http.StatusOK {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(f.status)
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>InternalError</Code><Message>boom</Message></Error>`)
		return
	}
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func newTestS3(t *testing.T, fake *fakeS3, publicUrl string) *S3 {
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s, err := NewS3(config.S3Config{
		AccessKeyId:     "key",
		SecretAccessKey: "secret",
		Region:          "us-east-1",
		Bucket:          "blog-images",
		Endpoint:        srv.URL,
		PublicUrl:       publicUrl,
	}, 1024)
	require.NoError(t, err)
	return s
}

func TestUpload(t *testing.T) {
	fake := &fakeS3{status: http.StatusOK}
	s := newTestS3(t, fake, "")

	url, err := s.Upload(context.Background(), "cat.png", "", 3, strings.NewReader("png"))
	require.NoError(t, err)

	require.Equal(t, 1, fake.hits)
	require.True(t, strings.HasPrefix(fake.paths[0], "/blog-images/images/"), fake.paths[0])
	require.Equal(t, "png", fake.bodies[0])
	require.Equal(t, "image/png", fake.types[0])
	key := strings.TrimPrefix(fake.paths[0], "/blog-images/")
	require.Equal(t, "https://blog-images.s3.us-east-1.amazonaws.com/"+key, url)
}

func TestUploadPublicUrl(t *testing.T) {
	s := newTestS3(t, &fakeS3{status: http.StatusOK}, "https://cdn.example.com")

	url, err := s.Upload(context.Background(), "cat.gif", "image/gif", 3, strings.NewReader("gif"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "https://cdn.example.com/images/"), url)
}

func TestUploadFailureIsNotRetried(t *testing.T) {
	fake := &fakeS3{status: http.StatusInternalServerError}
	s := newTestS3(t, fake, "")

	_, err := s.Upload(context.Background(), "cat.png", "image/png", 3, strings.NewReader("png"))
	require.ErrorIs(t, err, UploadError)
	require.Equal(t, 1, fake.hits)
}

func TestUploadValidatesBeforeNetwork(t *testing.T) {
	fake := &fakeS3{status: http.StatusOK}
	s := newTestS3(t, fake, "")

	_, err := s.Upload(context.Background(), "virus.exe", "", 2, strings.NewReader("MZ"))
	require.ErrorIs(t, err, ValidationError)
	_, err = s.Upload(context.Background(), "big.png", "", 4096, strings.NewReader("big"))
	require.ErrorIs(t, err, ValidationError)
	require.Zero(t, fake.hits)
}
