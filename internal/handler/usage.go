package handler

import (
	"net/http"

	"dropship-rest-api/internal/service"
	"dropship-rest-api/pkg/response"
)

// UsageHandler reports the caller's daily quotas.
type UsageHandler struct {
	usage *service.UsageService
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(usage *service.UsageService) *UsageHandler {
	return &UsageHandler{usage: usage}
}

// Get handles GET /api/usage
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	quotas, err := h.usage.Quotas(r.Context(), user.ID, user.Tier)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"tier":   user.Tier,
		"quotas": quotas,
	})
}
