package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dropship-rest-api/internal/model"
	"dropship-rest-api/internal/service"
	"dropship-rest-api/pkg/response"
)

// ImportHandler handles the user's imported products.
type ImportHandler struct {
	imports *service.ImportService
}

// NewImportHandler creates a new import handler.
func NewImportHandler(imports *service.ImportService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// List handles GET /api/imports
func (h *ImportHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		response.Error(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		response.Error(w, err)
		return
	}

	imports, err := h.imports.List(r.Context(), user, r.URL.Query().Get("status"), page, limit)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"imports": imports,
		"page":    page,
		"count":   len(imports),
	})
}

// UpdateStatusRequest is the body of PATCH /api/imports/{id}.
type UpdateStatusRequest struct {
	Status model.ImportStatus `json:"status"`
}

// UpdateStatus handles PATCH /api/imports/{id}
func (h *ImportHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	var req UpdateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	imp, err := h.imports.UpdateStatus(r.Context(), user, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, imp)
}
