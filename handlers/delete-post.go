package handlers

import (
	"net/http"
)

func (h *HTTPHandler) HandleDeletePost(w http.ResponseWriter, r *http.Request) {
	postId, ok := pathId(r, "postId")
	if !ok {
		writeErrorMessage(w, http.StatusNotFound, "Post not found")
		return
	}
	if err := h.Storage.DeletePost(r.Context(), postId); err != nil {
		writeError(w, r, err, "Post not found")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Post deleted successfully"})
}
