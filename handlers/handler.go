package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"newsblog/mailer"
	"newsblog/objectstore"
	"newsblog/storage"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const INTERNAL_ERROR_MESSAGE = "Internal server error"

type HTTPHandler struct {
	Storage        storage.Storage
	Uploader       objectstore.Uploader
	Mailer         mailer.Dispatcher
	MaxUploadBytes int64
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now().UTC()})
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	writeErrorMessage(w, http.StatusNotFound, "Not found")
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	rawResponse, err := json.Marshal(v)
	if err != nil {
		log.WithField("err", err).Error("Failed to dump response to json")
		status = http.StatusInternalServerError
		rawResponse, _ = json.Marshal(ErrorResponse{Error: INTERNAL_ERROR_MESSAGE})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(rawResponse); err != nil {
		log.WithField("err", err).Warn("Failed writing response")
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeError maps an error coming out of a collaborator to a status code.
// Messages of internal errors never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error, notFoundMessage string) {
	logger := log.WithFields(log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"err":    err,
	})
	switch {
	case errors.Is(err, storage.NotFoundError):
		logger.Debug("Not found")
		writeErrorMessage(w, http.StatusNotFound, notFoundMessage)
	case errors.Is(err, storage.ConflictError):
		logger.Debug("Conflict")
		writeErrorMessage(w, http.StatusConflict, "Email already subscribed")
	case errors.Is(err, storage.ValidationError):
		logger.Debug("Validation failed")
		writeErrorMessage(w, http.StatusBadRequest, clientMessage(err, storage.ValidationError))
	case errors.Is(err, storage.ClientError):
		logger.Debug("Client error")
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request")
	case errors.Is(err, objectstore.ValidationError):
		logger.Debug("Invalid upload")
		writeErrorMessage(w, http.StatusBadRequest, clientMessage(err, objectstore.ValidationError))
	case errors.Is(err, objectstore.UploadError):
		logger.Error("Upload failed")
		writeErrorMessage(w, http.StatusInternalServerError, "Failed to upload file")
	case errors.Is(err, mailer.DispatchError):
		logger.Error("Newsletter dispatch failed")
		writeErrorMessage(w, http.StatusInternalServerError, "Failed to send newsletter")
	default:
		logger.Error("Internal error")
		writeErrorMessage(w, http.StatusInternalServerError, INTERNAL_ERROR_MESSAGE)
	}
}

// clientMessage strips the sentinel suffix added by %w wrapping, leaving the
// human readable part of a validation error.
func clientMessage(err error, sentinel error) string {
	msg := strings.TrimSuffix(err.Error(), ": "+sentinel.Error())
	if msg == "" {
		return "Invalid request"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// pathId extracts a positive integer id from the route variables. Routes only
// match digits, so failure here means overflow or zero.
func pathId(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
