package handlers

import (
	"net/http"
)

func (h *HTTPHandler) HandleGetPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.Storage.GetPosts(r.Context())
	if err != nil {
		writeError(w, r, err, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, posts)
}
