package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"erp-offline-sync/internal/cache"
	"erp-offline-sync/internal/config"
	"erp-offline-sync/internal/database"
	"erp-offline-sync/internal/network"
	"erp-offline-sync/internal/queue"
	"erp-offline-sync/internal/store"
	"erp-offline-sync/internal/sync"
)

type stubRemote struct{}

func (stubRemote) Apply(ctx context.Context, a *store.PendingAction) error { return nil }
func (stubRemote) Fetch(ctx context.Context, resource string) ([]byte, error) {
	return []byte(`[]`), nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	db, err := database.NewDatabase(config.StorageConfig{Path: filepath.Join(t.TempDir(), "api.db")})
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	st, err := store.NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	c := cache.New(st)
	t.Cleanup(c.Close)
	q := queue.New(st)
	mon := network.NewMonitor(config.NetworkConfig{Debounce: "5ms", InitialOnline: true})
	t.Cleanup(mon.Close)

	m := sync.NewManager(config.SyncConfig{MaxAttempts: 5}, c, q, stubRemote{}, mon, st)
	t.Cleanup(m.Stop)

	h := NewHandler(m, c, q, mon, config.ServerConfig{})
	return h.Routes()
}

func doRequest(t *testing.T, router http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestEnqueueAndStatus(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/queue",
		[]byte(`{"kind":"create","resource":"events:tmp-1","body":{"title":"demo"}}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("enqueue status = %d, body = %s", rec.Code, rec.Body)
	}

	var created map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created["resource"] != "events:tmp-1" || created["state"] != "pending" {
		t.Errorf("created = %v", created)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/sync/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status["queue_depth"].(float64) != 1 {
		t.Errorf("queue_depth = %v, want 1", status["queue_depth"])
	}
	if status["status"] != "idle" {
		t.Errorf("status = %v, want idle", status["status"])
	}
	if status["max_attempts"].(float64) != 5 {
		t.Errorf("max_attempts = %v, want 5", status["max_attempts"])
	}
}

func TestEnqueueRejectsUnknownKind(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/queue",
		[]byte(`{"kind":"upsert","resource":"events:1"}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTriggerSyncDrains(t *testing.T) {
	router := newTestRouter(t)

	doRequest(t, router, http.MethodPost, "/api/v1/queue",
		[]byte(`{"kind":"create","resource":"events:tmp-1","body":{}}`))

	rec := doRequest(t, router, http.MethodPost, "/api/v1/sync/trigger", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("trigger status = %d, body = %s", rec.Code, rec.Body)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result["success_count"].(float64) != 1 {
		t.Errorf("success_count = %v, want 1", result["success_count"])
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/sync/status", nil)
	var status map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &status)
	if status["queue_depth"].(float64) != 0 {
		t.Errorf("queue_depth after drain = %v, want 0", status["queue_depth"])
	}
}

func TestNetworkReportAndStatus(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/network/status", nil)
	var status map[string]bool
	json.Unmarshal(rec.Body.Bytes(), &status)
	if !status["online"] {
		t.Fatalf("initial online = %v, want true", status["online"])
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/network/report", []byte(`{"online":false}`))
	if rec.Code != http.StatusOK {
		t.Errorf("report status = %d", rec.Code)
	}
	// The transition is debounced; the raw report alone does not flip it.
}

func TestCacheStatsAndClear(t *testing.T) {
	router := newTestRouter(t)

	// Refresh pulls the stub payload into the cache for configured
	// resources; with none configured, stats start empty.
	rec := doRequest(t, router, http.MethodGet, "/api/v1/cache/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats["total_items"].(float64) != 0 {
		t.Errorf("total_items = %v, want 0", stats["total_items"])
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/cache", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("clear status = %d", rec.Code)
	}
}

func TestDiscardUnknownRejected(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodDelete, "/api/v1/queue/rejected/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
