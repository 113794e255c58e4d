package handlers

import (
	"net/http"
	"newsblog/storage/models"
)

type CreatePostRequestData struct {
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	ImageUrl *string `json:"image_url"`
}

func (h *HTTPHandler) HandleCreatePost(w http.ResponseWriter, r *http.Request) {
	var data CreatePostRequestData
	if err := decodeJSON(r, &data); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Title and content are required")
		return
	}
	if models.IsBlank(data.Title) || models.IsBlank(data.Content) {
		writeErrorMessage(w, http.StatusBadRequest, "Title and content are required")
		return
	}

	post, err := h.Storage.AddPost(r.Context(), data.Title, data.Content, data.ImageUrl)
	if err != nil {
		writeError(w, r, err, "Post not found")
		return
	}
	writeJSON(w, http.StatusCreated, post)
}
