package handlers

import (
	"net/http"
)

type UnsubscribeResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

func (h *HTTPHandler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	subscriberId, ok := pathId(r, "subscriberId")
	if !ok {
		writeErrorMessage(w, http.StatusNotFound, "Subscriber not found")
		return
	}
	subscriber, err := h.Storage.DeleteSubscriber(r.Context(), subscriberId)
	if err != nil {
		writeError(w, r, err, "Subscriber not found")
		return
	}
	writeJSON(w, http.StatusOK, UnsubscribeResponse{
		Message: "Subscriber removed successfully",
		Email:   subscriber.Email,
	})
}
