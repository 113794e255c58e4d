package handlers

import (
	"net/http"
	"net/mail"
	"newsblog/storage/models"
	"strings"
)

type SubscribeRequestData struct {
	Email string `json:"email"`
}

type SubscribeResponse struct {
	models.Subscriber
	Message string `json:"message"`
}

// validEmail accepts bare addresses only, no display names or angle brackets.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1
}

func (h *HTTPHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	var data SubscribeRequestData
	if err := decodeJSON(r, &data); err != nil || models.IsBlank(data.Email) {
		writeErrorMessage(w, http.StatusBadRequest, "Email is required")
		return
	}
	email := models.NormalizeEmail(data.Email)
	if !validEmail(email) {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid email address")
		return
	}

	subscriber, err := h.Storage.AddSubscriber(r.Context(), email)
	if err != nil {
		writeError(w, r, err, "Not found")
		return
	}
	writeJSON(w, http.StatusCreated, SubscribeResponse{
		Subscriber: subscriber,
		Message:    "Successfully subscribed to newsletter",
	})
}
