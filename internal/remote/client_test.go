package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"erp-offline-sync/internal/config"
	"erp-offline-sync/internal/store"
)

func newTestClient(url string) *HTTPClient {
	return NewHTTPClient(config.RemoteConfig{
		BaseURL:   url,
		Timeout:   "2s",
		AuthToken: "test-token",
	})
}

func TestApplyVerbMapping(t *testing.T) {
	tests := []struct {
		name       string
		kind       store.ActionKind
		resource   string
		wantMethod string
		wantPath   string
	}{
		{"create goes to collection", store.ActionCreate, "events:tmp-1", http.MethodPost, "/events"},
		{"update targets the record", store.ActionUpdate, "events:42", http.MethodPut, "/events/42"},
		{"delete targets the record", store.ActionDelete, "leads:7", http.MethodDelete, "/leads/7"},
		{"bare resource", store.ActionCreate, "goals", http.MethodPost, "/goals"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotMethod, gotPath, gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				gotPath = r.URL.Path
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			c := newTestClient(srv.URL)
			err := c.Apply(context.Background(), &store.PendingAction{
				ID:       "a-1",
				Kind:     tt.kind,
				Resource: tt.resource,
				Body:     []byte(`{"x":1}`),
			})
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if gotMethod != tt.wantMethod || gotPath != tt.wantPath {
				t.Errorf("request = %s %s, want %s %s", gotMethod, gotPath, tt.wantMethod, tt.wantPath)
			}
			if gotAuth != "Bearer test-token" {
				t.Errorf("auth header = %q", gotAuth)
			}
		})
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantRetryable bool
		wantPermanent bool
	}{
		{"server error retries", http.StatusInternalServerError, true, false},
		{"bad gateway retries", http.StatusBadGateway, true, false},
		{"validation rejection is permanent", http.StatusUnprocessableEntity, false, true},
		{"conflict is permanent", http.StatusConflict, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c := newTestClient(srv.URL)
			err := c.Apply(context.Background(), &store.PendingAction{
				Kind:     store.ActionCreate,
				Resource: "events:1",
				Body:     []byte(`{}`),
			})
			if err == nil {
				t.Fatal("Apply succeeded, want classified error")
			}
			if got := IsRetryable(err); got != tt.wantRetryable {
				t.Errorf("IsRetryable = %v, want %v (err: %v)", got, tt.wantRetryable, err)
			}
			if got := IsPermanent(err); got != tt.wantPermanent {
				t.Errorf("IsPermanent = %v, want %v (err: %v)", got, tt.wantPermanent, err)
			}

			var se *StatusError
			if !errors.As(err, &se) || se.Code != tt.status {
				t.Errorf("status error = %v, want code %d", err, tt.status)
			}
		})
	}
}

func TestTransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // nothing listens anymore

	c := newTestClient(url)
	err := c.Apply(context.Background(), &store.PendingAction{
		Kind:     store.ActionCreate,
		Resource: "events:1",
	})
	if err == nil {
		t.Fatal("Apply against closed server succeeded")
	}
	if !errors.Is(err, ErrNetworkUnreachable) {
		t.Errorf("err = %v, want ErrNetworkUnreachable", err)
	}
	if !IsRetryable(err) {
		t.Error("transport error not classified retryable")
	}
	if IsPermanent(err) {
		t.Error("transport error classified permanent")
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[{"id":7}]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	body, err := c.Fetch(context.Background(), "events:list")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != `[{"id":7}]` {
		t.Errorf("body = %s", body)
	}

	_, err = c.Fetch(context.Background(), "missing:list")
	if err == nil {
		t.Fatal("Fetch missing succeeded")
	}
	if !IsPermanent(err) {
		t.Errorf("404 not classified permanent: %v", err)
	}
}

func TestTimeoutDefault(t *testing.T) {
	c := NewHTTPClient(config.RemoteConfig{BaseURL: "http://x", Timeout: "bogus"})
	if c.http.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s default", c.http.Timeout)
	}
}
