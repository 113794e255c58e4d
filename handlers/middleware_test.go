package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAdmin(t *testing.T) {
	assert.True(t, IsAdmin("Bearer s3cret", "s3cret"))

	assert.False(t, IsAdmin("", "s3cret"))
	assert.False(t, IsAdmin("s3cret", "s3cret"))
	assert.False(t, IsAdmin("bearer s3cret", "s3cret"))
	assert.False(t, IsAdmin("Bearer  s3cret", "s3cret"))
	assert.False(t, IsAdmin("Bearer s3cre", "s3cret"))
	assert.False(t, IsAdmin("Basic s3cret", "s3cret"))
	assert.False(t, IsAdmin("Bearer ", ""))
	assert.False(t, IsAdmin("", ""))
}

func TestAdminGuard(t *testing.T) {
	called := 0
	guarded := AdminGuard("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodDelete, "/api/posts/1", nil)
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, called)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Unauthorized: valid admin token required", body.Error)

	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 1, called)
}

func TestParsePostPatch(t *testing.T) {
	parse := func(body string) (map[string]json.RawMessage, error) {
		var raw map[string]json.RawMessage
		return raw, json.Unmarshal([]byte(body), &raw)
	}

	raw, err := parse(`{"title":"New","image_url":null}`)
	require.NoError(t, err)
	patch, err := parsePostPatch(raw)
	require.NoError(t, err)
	require.Equal(t, "New", *patch.Title)
	require.Nil(t, patch.Content)
	require.True(t, patch.ClearImage)

	raw, err = parse(`{"image_url":"https://x/y.png"}`)
	require.NoError(t, err)
	patch, err = parsePostPatch(raw)
	require.NoError(t, err)
	require.Equal(t, "https://x/y.png", *patch.ImageUrl)
	require.False(t, patch.ClearImage)

	for _, body := range []string{
		`{"title":""}`,
		`{"title":"   "}`,
		`{"title":null}`,
		`{"content":42}`,
		`{"image_url":false}`,
	} {
		raw, err := parse(body)
		require.NoError(t, err)
		_, err = parsePostPatch(raw)
		require.ErrorIs(t, err, errBadField, body)
	}
}
