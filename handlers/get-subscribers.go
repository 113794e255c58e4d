package handlers

import (
	"net/http"
)

func (h *HTTPHandler) HandleGetSubscribers(w http.ResponseWriter, r *http.Request) {
	subscribers, err := h.Storage.GetSubscribers(r.Context())
	if err != nil {
		writeError(w, r, err, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, subscribers)
}
