package handlers

import (
	"net/http"
)

func (h *HTTPHandler) HandleGetPost(w http.ResponseWriter, r *http.Request) {
	postId, ok := pathId(r, "postId")
	if !ok {
		writeErrorMessage(w, http.StatusNotFound, "Post not found")
		return
	}
	post, err := h.Storage.GetPost(r.Context(), postId)
	if err != nil {
		writeError(w, r, err, "Post not found")
		return
	}
	writeJSON(w, http.StatusOK, post)
}
