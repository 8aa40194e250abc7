package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"go.uber.org/zap"
)

// uploadFunc stores one attachment on the entity identified by id
type uploadFunc func(ctx context.Context, id uuid.UUID, filename, contentType string, data io.Reader) (*domain.Attachment, error)

// handleUpload reads the multipart "file" field and passes it to store
func handleUpload(w http.ResponseWriter, r *http.Request, maxUploadMB int64, logger *zap.Logger, store uploadFunc) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadMB*1024*1024)
	if err := r.ParseMultipartForm(maxUploadMB * 1024 * 1024); err != nil {
		respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large: maximum size is %dMB", maxUploadMB))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid file upload: file field is required")
		return
	}
	defer file.Close()

	att, err := store(r.Context(), id, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		respondServiceError(w, logger, err, "upload file")
		return
	}
	respondJSON(w, http.StatusCreated, att)
}
