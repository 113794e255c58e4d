package handlers

import (
	"net/http"
	"newsblog/storage/models"

	log "github.com/sirupsen/logrus"
)

type SendNewsletterRequestData struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

type SendNewsletterResponse struct {
	Message          string `json:"message"`
	SentCount        int    `json:"sent_count"`
	FailedCount      int    `json:"failed_count"`
	TotalSubscribers int    `json:"total_subscribers"`
}

// HandleSendNewsletter broadcasts synchronously; the response is written only
// after the relay has seen every subscriber.
func (h *HTTPHandler) HandleSendNewsletter(w http.ResponseWriter, r *http.Request) {
	var data SendNewsletterRequestData
	if err := decodeJSON(r, &data); err != nil || models.IsBlank(data.Subject) || models.IsBlank(data.Content) {
		writeErrorMessage(w, http.StatusBadRequest, "Subject and content are required")
		return
	}

	subscribers, err := h.Storage.GetSubscribers(r.Context())
	if err != nil {
		writeError(w, r, err, "Not found")
		return
	}
	if len(subscribers) == 0 {
		writeJSON(w, http.StatusOK, SendNewsletterResponse{Message: "No subscribers found"})
		return
	}

	recipients := make([]string, 0, len(subscribers))
	for _, s := range subscribers {
		recipients = append(recipients, s.Email)
	}
	report, err := h.Mailer.Send(r.Context(), data.Subject, data.Content, recipients)
	if err != nil {
		writeError(w, r, err, "Not found")
		return
	}
	log.WithFields(log.Fields{
		"sent":   report.Sent,
		"failed": len(report.Failed),
	}).Info("Newsletter sent")

	writeJSON(w, http.StatusOK, SendNewsletterResponse{
		Message:          "Newsletter sent successfully",
		SentCount:        report.Sent,
		FailedCount:      len(report.Failed),
		TotalSubscribers: len(subscribers),
	})
}
