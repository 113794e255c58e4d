package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"newsblog/storage/models"
)

var errBadField = errors.New("bad field")

// parsePostPatch turns an update body into a patch. Keys missing from the
// body are left untouched; "image_url": null clears the image.
func parsePostPatch(raw map[string]json.RawMessage) (models.PostPatch, error) {
	var patch models.PostPatch
	for _, field := range []struct {
		name   string
		target **string
	}{
		{"title", &patch.Title},
		{"content", &patch.Content},
	} {
		value, found := raw[field.name]
		if !found {
			continue
		}
		var s *string
		if err := json.Unmarshal(value, &s); err != nil || s == nil || models.IsBlank(*s) {
			return patch, errBadField
		}
		*field.target = s
	}
	if value, found := raw["image_url"]; found {
		var s *string
		if err := json.Unmarshal(value, &s); err != nil {
			return patch, errBadField
		}
		if s == nil {
			patch.ClearImage = true
		} else {
			patch.ImageUrl = s
		}
	}
	return patch, nil
}

func (h *HTTPHandler) HandlePatchPost(w http.ResponseWriter, r *http.Request) {
	postId, ok := pathId(r, "postId")
	if !ok {
		writeErrorMessage(w, http.StatusNotFound, "Post not found")
		return
	}

	var raw map[string]json.RawMessage
	if err := decodeJSON(r, &raw); err != nil || len(raw) == 0 {
		writeErrorMessage(w, http.StatusBadRequest, "No data provided")
		return
	}
	patch, err := parsePostPatch(raw)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Title and content must be non-empty strings, image_url a string or null")
		return
	}

	post, err := h.Storage.PatchPost(r.Context(), postId, patch)
	if err != nil {
		writeError(w, r, err, "Post not found")
		return
	}
	writeJSON(w, http.StatusOK, post)
}
