package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/api/models"
	"github.com/lifelink/lifelink/internal/api/response"
	"github.com/lifelink/lifelink/internal/document"
)

// multipartOverhead is the slack allowed on top of the file size for the
// multipart envelope.
const multipartOverhead = 64 << 10

// DocumentHandler handles medical document endpoints.
type DocumentHandler struct {
	service *document.Service
	logger  zerolog.Logger
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(service *document.Service, logger zerolog.Logger) *DocumentHandler {
	return &DocumentHandler{service: service, logger: logger}
}

// ListDocuments handles GET /v1/me/documents.
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.List(r.Context(), GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []*document.Document{}
	}
	response.JSON(w, r, http.StatusOK, models.List[*document.Document]{Items: docs})
}

// UploadDocument handles POST /v1/me/documents. The body is
// multipart/form-data with the file in the "file" part. The part is
// streamed to storage without buffering the whole upload.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.service.MaxSize()+multipartOverhead)

	reader, err := r.MultipartReader()
	if err != nil {
		response.BadRequest(w, r, "multipart/form-data body required", nil)
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			response.BadRequest(w, r, "validation error", []models.FieldError{{
				Field: "file", Message: "file is required", Code: "REQUIRED",
			}})
			return
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		contentType := part.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			if byExt := mime.TypeByExtension(filepath.Ext(part.FileName())); byExt != "" {
				contentType = byExt
			}
		}

		doc, err := h.service.Upload(r.Context(), GetUserID(r.Context()), part.FileName(), contentType, part)
		_ = part.Close()
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		response.Created(w, r, "/v1/me/documents/"+doc.ID, doc)
		return
	}
}

// DeleteDocument handles DELETE /v1/me/documents/{documentId}.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "documentId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// DocumentURL handles GET /v1/me/documents/{documentId}/url - a
// time-limited download link.
func (h *DocumentHandler) DocumentURL(w http.ResponseWriter, r *http.Request) {
	signed, err := h.service.SignedURL(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "documentId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, signed)
}

// Download handles GET /v1/files/{token}. The signed token is the only
// credential.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	doc, rc, err := h.service.Open(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", fmt.Sprint(doc.Size))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn().Err(err).Str("document_id", doc.ID).Msg("download interrupted")
	}
}

func (h *DocumentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr), errors.Is(err, document.ErrFileTooLarge):
		response.PayloadTooLarge(w, r, fmt.Sprintf("file exceeds the maximum size of %d bytes", h.service.MaxSize()))
	case errors.Is(err, document.ErrDuplicateFile):
		response.Conflict(w, r, "a document with this name already exists")
	case errors.Is(err, document.ErrInvalidFileName):
		response.BadRequest(w, r, "validation error", []models.FieldError{{
			Field: "file", Message: "invalid file name", Code: "INVALID_FORMAT",
		}})
	case errors.Is(err, document.ErrEmptyFile):
		response.BadRequest(w, r, "validation error", []models.FieldError{{
			Field: "file", Message: "file is empty", Code: "REQUIRED",
		}})
	case errors.Is(err, document.ErrDocumentNotFound):
		response.NotFound(w, r, "document not found")
	case errors.Is(err, document.ErrInvalidURL):
		response.Forbidden(w, r, "invalid or expired download link")
	default:
		h.logger.Error().Err(err).Str("user_id", GetUserID(r.Context())).Msg("document request failed")
		response.InternalError(w, r, "document request failed")
	}
}
