package handlers

import (
	"errors"
	"net/http"
	"newsblog/objectstore"

	log "github.com/sirupsen/logrus"
)

// Room for multipart boundaries and headers on top of the file itself.
const multipartOverhead = 1 << 20

type UploadResponse struct {
	Url string `json:"url"`
}

func (h *HTTPHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorMessage(w, http.StatusBadRequest, "File too large")
			return
		}
		writeErrorMessage(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.WithField("err", err).Warn("Could not remove multipart temp files")
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if err := objectstore.ValidateImage(header.Filename, header.Size, h.MaxUploadBytes); err != nil {
		writeError(w, r, err, "Not found")
		return
	}

	url, err := h.Uploader.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		writeError(w, r, err, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{Url: url})
}
