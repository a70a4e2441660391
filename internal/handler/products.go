package handler

import (
	"net/http"
	"strconv"

	"dropship-rest-api/internal/service"
	"dropship-rest-api/pkg/apierror"
	"dropship-rest-api/pkg/response"
)

// ProductHandler handles product search, analysis and import requests.
type ProductHandler struct {
	search   *service.SearchService
	analysis *service.AnalysisService
	imports  *service.ImportService
}

// NewProductHandler creates a new product handler.
func NewProductHandler(
	search *service.SearchService,
	analysis *service.AnalysisService,
	imports *service.ImportService,
) *ProductHandler {
	return &ProductHandler{search: search, analysis: analysis, imports: imports}
}

// Search handles GET /api/products/search
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	req, err := service.ParseSearchRequest(r.URL.Query())
	if err != nil {
		response.Error(w, err)
		return
	}

	resp, err := h.search.Search(r.Context(), user, req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, resp)
}

// Winning handles GET /api/products/winning
func (h *ProductHandler) Winning(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		response.Error(w, err)
		return
	}

	products, err := h.analysis.Winning(r.Context(), limit)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"products": products,
		"count":    len(products),
	})
}

// Get handles GET /api/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	product, err := h.search.Product(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, product)
}

// Analyze handles POST /api/products/{id}/analyze
func (h *ProductHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	id, err := productID(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		force, err = strconv.ParseBool(raw)
		if err != nil {
			response.Error(w, apierror.BadRequest("force must be true or false"))
			return
		}
	}

	resp, err := h.analysis.Analyze(r.Context(), user, id, force)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, resp)
}

// Import handles POST /api/products/{id}/import
func (h *ProductHandler) Import(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	id, err := productID(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	var req service.ImportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	imp, err := h.imports.Import(r.Context(), user, id, req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, imp)
}
