package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"erp-offline-sync/internal/cache"
	"erp-offline-sync/internal/config"
	"erp-offline-sync/internal/network"
	"erp-offline-sync/internal/queue"
	"erp-offline-sync/internal/store"
	"erp-offline-sync/internal/sync"
)

type Handler struct {
	manager *sync.Manager
	cache   *cache.Cache
	queue   *queue.Queue
	monitor *network.Monitor
	cfg     config.ServerConfig
}

func NewHandler(manager *sync.Manager, c *cache.Cache, q *queue.Queue, monitor *network.Monitor, cfg config.ServerConfig) *Handler {
	return &Handler{
		manager: manager,
		cache:   c,
		queue:   q,
		monitor: monitor,
		cfg:     cfg,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := h.cfg.CorsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sync/trigger", h.TriggerSync)
		r.Get("/sync/status", h.GetSyncStatus)
		r.Get("/sync/history", h.GetSyncHistory)

		r.Post("/cache/refresh", h.RefreshCache)
		r.Get("/cache/stats", h.GetCacheStats)
		r.Delete("/cache", h.ClearCache)
		r.Delete("/cache/{key}", h.RemoveCacheEntry)

		r.Get("/queue", h.ListPending)
		r.Post("/queue", h.EnqueueAction)
		r.Get("/queue/rejected", h.ListRejected)
		r.Delete("/queue/rejected/{id}", h.DiscardRejected)

		r.Get("/network/status", h.GetNetworkStatus)
		r.Post("/network/report", h.ReportNetwork)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.Sync(r.Context(), sync.TriggerManual)
	if err != nil {
		if errors.Is(err, sync.ErrSyncInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	depth, err := h.queue.Length(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]interface{}{
		"status":       h.manager.GetStatus(),
		"queue_depth":  depth,
		"online":       h.monitor.IsOnline(),
		"max_attempts": h.manager.MaxAttempts(),
	})
}

func (h *Handler) GetSyncHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.manager.History(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		entry := map[string]interface{}{
			"id":            rec.ID,
			"started_at":    rec.StartedAt,
			"trigger":       rec.Trigger,
			"success_count": rec.SuccessCount,
			"failed_count":  rec.FailedCount,
			"status":        rec.Status,
		}
		if rec.CompletedAt.Valid {
			entry["completed_at"] = rec.CompletedAt.Time
		}
		if rec.ErrorMessage.Valid {
			entry["error"] = rec.ErrorMessage.String
		}
		out = append(out, entry)
	}
	writeJSON(w, out)
}

func (h *Handler) RefreshCache(w http.ResponseWriter, r *http.Request) {
	refreshed, err := h.manager.RefreshCache(r.Context())
	if err != nil {
		// Partial refreshes still report what landed.
		writeJSONStatus(w, http.StatusBadGateway, map[string]interface{}{
			"refreshed": refreshed,
			"error":     err.Error(),
		})
		return
	}
	writeJSON(w, map[string]interface{}{"refreshed": refreshed})
}

func (h *Handler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, stats)
}

func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.ClearAll(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "cleared"})
}

func (h *Handler) RemoveCacheEntry(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.cache.Remove(r.Context(), key); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "removed", "key": key})
}

type enqueueRequest struct {
	Kind     string          `json:"kind"`
	Resource string          `json:"resource"`
	Body     json.RawMessage `json:"body"`
}

func (h *Handler) EnqueueAction(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	action, err := h.queue.Enqueue(r.Context(), store.ActionKind(req.Kind), req.Resource, req.Body)
	if err != nil {
		if errors.Is(err, queue.ErrUnavailable) {
			// The mutation was NOT recorded; the caller must know.
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSONStatus(w, http.StatusCreated, actionResponse(action))
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	actions, err := h.queue.Pending(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, actionsResponse(actions))
}

func (h *Handler) ListRejected(w http.ResponseWriter, r *http.Request) {
	actions, err := h.queue.Rejected(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, actionsResponse(actions))
}

func (h *Handler) DiscardRejected(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.queue.Discard(r.Context(), id); err != nil {
		if errors.Is(err, queue.ErrNotRejected) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "discarded", "id": id})
}

func (h *Handler) GetNetworkStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"online": h.monitor.IsOnline()})
}

type networkReport struct {
	Online bool `json:"online"`
}

// ReportNetwork receives link-state changes from the platform bridge.
func (h *Handler) ReportNetwork(w http.ResponseWriter, r *http.Request) {
	var report networkReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.monitor.Report(report.Online)
	writeJSON(w, map[string]string{"status": "reported"})
}

func actionResponse(a *store.PendingAction) map[string]interface{} {
	out := map[string]interface{}{
		"id":         a.ID,
		"kind":       a.Kind,
		"resource":   a.Resource,
		"body":       a.Body,
		"state":      a.State,
		"created_at": a.CreatedAt.Format(time.RFC3339),
		"attempts":   a.Attempts,
	}
	if a.RejectReason.Valid {
		out["reject_reason"] = a.RejectReason.String
	}
	return out
}

func actionsResponse(actions []*store.PendingAction) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(actions))
	for _, a := range actions {
		out = append(out, actionResponse(a))
	}
	return out
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
