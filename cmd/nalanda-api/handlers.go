package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/mvkaushik27/nalanda/internal/observability"
)

// Handlers serves the HTTP API.
type Handlers struct {
	app    *App
	logger *observability.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(app *App) *Handlers {
	return &Handlers{app: app, logger: app.Logger}
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Query      string `json:"query"`
	SearchMode string `json:"search_mode"`
}

// ChatResponse is the reply of POST /chat.
type ChatResponse struct {
	Success        bool    `json:"success"`
	Response       string  `json:"response"`
	Query          string  `json:"query"`
	ProcessingTime float64 `json:"processing_time"`
	Error          string  `json:"error,omitempty"`
}

// Chat handles POST /chat.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ChatResponse{Query: req.Query, Error: "invalid request body"})
		return
	}

	clientIP := r.Header.Get("X-Client-IP")
	if clientIP == "" {
		clientIP = r.RemoteAddr
	}

	resp := h.app.Router.GetResponse(r.Context(), req.Query, req.SearchMode, clientIP)
	elapsed := time.Since(start).Seconds()

	if resp.RateLimited {
		w.Header().Set("Retry-After", resp.RetryAfter.Round(time.Second).String())
		writeJSON(w, http.StatusTooManyRequests, ChatResponse{
			Query:          req.Query,
			ProcessingTime: elapsed,
			Error:          resp.Message,
		})
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Success:        resp.Success,
		Response:       resp.Message,
		Query:          req.Query,
		ProcessingTime: elapsed,
	})
}

// Health handles GET /health with per-component checks.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]bool{
		"database":        h.app.DB.PingContext(ctx) == nil,
		"question_store":  h.app.Store.Len() > 0,
		"catalogue_index": fileExists(h.app.Config.Vector.CatalogueIndexPath),
		"general_index":   fileExists(h.app.Config.Vector.GeneralIndexPath),
	}

	status := "healthy"
	if !checks["database"] {
		status = "unhealthy"
	} else {
		for _, ok := range checks {
			if !ok {
				status = "degraded"
				break
			}
		}
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Stats handles GET /stats.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.app.Catalogue.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("stats lookup failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "statistics unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"unique_titles":             stats.UniqueTitles,
		"total_copies":              stats.TotalCopies,
		"unique_authors":            stats.UniqueAuthors,
		"error_count":               h.app.Errors.Count(),
		"classification_cache_size": h.app.ClassCache.Len(),
	})
}

// ClearCache handles POST /admin/clear-cache.
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	classEntries := h.app.ClassCache.Len()
	h.app.Router.ClearCaches()
	if err := h.app.Cache.DeleteByPrefix(r.Context(), "resp"); err != nil {
		h.logger.Warn().Err(err).Msg("response cache clear failed")
	}

	h.app.Audit.LogAdmin("clear-cache", "classification, rate limiter, and response caches reset")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":                     true,
		"classification_cleared": classEntries,
	})
}

// RebuildRequest is the body of POST /admin/rebuild.
type RebuildRequest struct {
	Index string `json:"index"` // catalogue or general
}

// Rebuild handles POST /admin/rebuild.
func (h *Handlers) Rebuild(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req RebuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"ok": false, "error": "invalid request body"})
		return
	}

	var (
		indexed int
		err     error
	)
	switch req.Index {
	case "catalogue":
		indexed, err = h.app.Builder.BuildCatalogue(r.Context(), h.app.Catalogue, h.app.Config.Vector.CatalogueIndexPath)
	case "general":
		indexed, err = h.app.Builder.BuildGeneral(r.Context(), h.app.Store, h.app.Config.Vector.GeneralIndexPath)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"ok": false, "error": "index must be 'catalogue' or 'general'"})
		return
	}

	if err != nil {
		h.logger.Error().Err(err).Str("index", req.Index).Msg("index rebuild failed")
		h.app.Audit.LogAdmin("index-rebuild", req.Index+" rebuild failed: "+err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"ok": false, "error": err.Error()})
		return
	}

	h.app.Loader.Invalidate()
	h.app.Audit.LogAdmin("index-rebuild", req.Index+" index rebuilt")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":         true,
		"index":      req.Index,
		"indexed":    indexed,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
}

// IndexStatus handles GET /admin/index-status.
func (h *Handlers) IndexStatus(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"catalogue_index": fileInfo(h.app.Config.Vector.CatalogueIndexPath),
		"general_index":   fileInfo(h.app.Config.Vector.GeneralIndexPath),
		"general_queries": fileInfo(h.app.Config.Vector.GeneralQueriesPath),
	}
	h.app.Audit.LogAdmin("status-check", "index status requested")
	writeJSON(w, http.StatusOK, payload)
}

// LogActivity handles GET /admin/log-activity.
func (h *Handlers) LogActivity(w http.ResponseWriter, r *http.Request) {
	data := r.URL.Query().Get("data")
	if data == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"ok": false, "error": "no data provided"})
		return
	}

	var activity struct {
		Activity string          `json:"activity"`
		Details  json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal([]byte(data), &activity); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"ok": false, "error": "invalid activity payload"})
		return
	}
	if activity.Activity == "" {
		activity.Activity = "unknown"
	}

	h.app.Audit.LogAdmin(activity.Activity, string(activity.Details))
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func fileInfo(path string) map[string]interface{} {
	st, err := os.Stat(path)
	if err != nil {
		return map[string]interface{}{"exists": false}
	}
	return map[string]interface{}{
		"exists":   true,
		"size":     st.Size(),
		"modified": st.ModTime().Format(time.RFC3339),
	}
}
