package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"collabdocs/internal/document/model"
	"collabdocs/internal/document/service"
	"collabdocs/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// maxBodySize matches the socket's message limit.
const maxBodySize = 1 << 20

type DocumentHandler struct {
	Service *service.DocumentService
}

func NewDocumentHandler(service *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{Service: service}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Sugar.Errorf("Error encoding response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, model.ErrorResponse{Error: message})
}

// decodeBody reads a JSON request body of at most maxBodySize bytes. It writes
// the error response itself and reports whether the handler should go on.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "Request body too large (max 1MB)")
			return false
		}
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// respondServiceError maps service errors onto status codes.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrNoSelection):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		logger.Sugar.Errorf("Handler: unexpected error: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// Me handles GET /api/me
func (h *DocumentHandler) Me(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Service.Store.CurrentUser())
}

// GetDocuments handles GET /api/documents. A q parameter replaces the shared
// search term, for every client, before listing; an empty q clears it.
func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	if q := r.URL.Query(); q.Has("q") {
		h.Service.SetSearch(q.Get("q"))
	}
	respondJSON(w, http.StatusOK, h.Service.ListDocuments())
}

// GetPublicDocuments handles GET /api/documents/public
func (h *DocumentHandler) GetPublicDocuments(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Service.ListDocuments().Public)
}

// GetPrivateDocuments handles GET /api/documents/private
func (h *DocumentHandler) GetPrivateDocuments(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Service.ListDocuments().Private)
}

// CreateDocument handles POST /api/documents
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req model.CreateDocRequest
	if !decodeBody(w, r, &req) {
		return
	}

	doc, err := h.Service.CreateDocument(req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

// GetDocument handles GET /api/documents/{id}
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Service.GetDocument(chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// UpdateDocument handles PATCH /api/documents/{id}
func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateDocRequest
	if !decodeBody(w, r, &req) {
		return
	}

	doc, err := h.Service.UpdateDocument(chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/documents/{id}
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteDocument(chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSearch handles GET /api/search
func (h *DocumentHandler) GetSearch(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, model.SearchRequest{Term: h.Service.Store.SearchTerm()})
}

// SetSearch handles PUT /api/search
func (h *DocumentHandler) SetSearch(w http.ResponseWriter, r *http.Request) {
	var req model.SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.Service.SetSearch(req.Term)
	respondJSON(w, http.StatusOK, h.Service.ListDocuments())
}

// GetCurrent handles GET /api/current
func (h *DocumentHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Service.CurrentDocument()
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// SetCurrent handles PUT /api/current. The selection is stored as given and
// the response reports what it resolves to.
func (h *DocumentHandler) SetCurrent(w http.ResponseWriter, r *http.Request) {
	var req model.SelectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.Service.SelectDocument(req.DocID)
	if req.DocID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.GetCurrent(w, r)
}

// GetPresence handles GET /api/presence
func (h *DocumentHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Service.Presence())
}
