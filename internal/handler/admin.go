package handler

import (
	"crypto/subtle"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"dropship-rest-api/internal/cache"
	"dropship-rest-api/internal/repository"
	"dropship-rest-api/internal/resilience"
	"dropship-rest-api/pkg/apierror"
	"dropship-rest-api/pkg/response"
)

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	store     repository.Store
	cache     cache.Cache
	breakers  *resilience.BreakerSet
	loginKey  string
	startTime time.Time
}

// NewAdminHandler creates a new admin handler. An empty loginKey disables
// the admin endpoints.
func NewAdminHandler(
	store repository.Store,
	c cache.Cache,
	breakers *resilience.BreakerSet,
	loginKey string,
) *AdminHandler {
	return &AdminHandler{
		store:     store,
		cache:     c,
		breakers:  breakers,
		loginKey:  loginKey,
		startTime: time.Now(),
	}
}

// RequireLoginKey rejects requests without a matching X-Login-Key header.
func (h *AdminHandler) RequireLoginKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.loginKey == "" {
			response.Error(w, apierror.Forbidden("Admin access is disabled"))
			return
		}
		key := r.Header.Get("X-Login-Key")
		if key == "" {
			response.Error(w, apierror.Unauthorized("X-Login-Key header required"))
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.loginKey)) != 1 {
			response.Error(w, apierror.Forbidden("Invalid login key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetStats handles GET /api/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)

	// Memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
		"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
		"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
		"heap_alloc_mb":  float64(memStats.HeapAlloc) / 1024 / 1024,
		"heap_inuse_mb":  float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":         memStats.NumGC,
		"goroutines":     runtime.NumGoroutine(),
	}

	// Database stats
	if h.store != nil {
		dbStats, err := h.store.GetStats(ctx)
		if err == nil {
			dbStats["status"] = "connected"
			stats["database"] = dbStats
		} else {
			stats["database"] = map[string]interface{}{
				"backend": h.store.Kind(),
				"status":  "error",
				"error":   err.Error(),
			}
		}
	} else {
		stats["database"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	// Response cache
	if h.cache != nil {
		cacheStats := map[string]interface{}{
			"backend": h.cache.Kind(),
		}
		if sized, ok := h.cache.(interface{ Len() int }); ok {
			cacheStats["entries"] = sized.Len()
		}
		stats["cache"] = cacheStats
	}

	// Marketplace circuit breakers
	if h.breakers != nil {
		stats["breakers"] = h.breakers.Stats()
	}

	// Runtime info
	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// ClearCache handles DELETE /api/admin/cache
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		response.Error(w, apierror.ServiceUnavailable("Cache is not configured"))
		return
	}
	if err := h.cache.Clear(r.Context()); err != nil {
		log.Error().Err(err).Str("backend", h.cache.Kind()).Msg("cache clear failed")
		response.Error(w, apierror.InternalError("Failed to clear cache"))
		return
	}
	log.Info().Str("backend", h.cache.Kind()).Msg("response cache cleared")
	response.OK(w, map[string]interface{}{
		"backend": h.cache.Kind(),
		"cleared": true,
	})
}
