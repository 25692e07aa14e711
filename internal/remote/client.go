package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"erp-offline-sync/internal/config"
	"erp-offline-sync/internal/store"
)

// ErrNetworkUnreachable marks a transport-level failure: the request never
// produced an HTTP response. Always retryable.
var ErrNetworkUnreachable = errors.New("network unreachable")

// StatusError is a non-2xx response from the backend. 5xx is retryable,
// 4xx is a permanent rejection of the request as sent.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned %d: %s", e.Code, e.Body)
}

// IsRetryable reports whether a replay attempt may succeed later without
// modification: network errors and 5xx responses.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrNetworkUnreachable) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return false
}

// IsPermanent reports whether the backend definitively rejected the
// request (4xx): the action can never succeed unmodified.
func IsPermanent(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500
	}
	return false
}

// Client is the remote REST backend as seen by the sync engine.
type Client interface {
	// Apply replays one queued mutation against the backend.
	Apply(ctx context.Context, action *store.PendingAction) error
	// Fetch retrieves the current server state of a resource.
	Fetch(ctx context.Context, resource string) ([]byte, error)
}

type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPClient(cfg config.RemoteConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.AuthToken,
		http:    &http.Client{Timeout: cfg.GetTimeout()},
	}
}

// resourcePath maps a logical resource name onto the backend URL space:
// "events:42" -> /events/42, "events:list" and "events" -> /events.
func resourcePath(resource string) string {
	parts := strings.SplitN(resource, ":", 2)
	if len(parts) == 1 || parts[1] == "" || parts[1] == "list" {
		return "/" + parts[0]
	}
	return "/" + parts[0] + "/" + parts[1]
}

// collectionPath is the family endpoint, used for creates.
func collectionPath(resource string) string {
	parts := strings.SplitN(resource, ":", 2)
	return "/" + parts[0]
}

func (c *HTTPClient) Apply(ctx context.Context, action *store.PendingAction) error {
	var method, path string
	switch action.Kind {
	case store.ActionCreate:
		method, path = http.MethodPost, collectionPath(action.Resource)
	case store.ActionUpdate:
		method, path = http.MethodPut, resourcePath(action.Resource)
	case store.ActionDelete:
		method, path = http.MethodDelete, resourcePath(action.Resource)
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}

	var body io.Reader
	if len(action.Body) > 0 && action.Kind != store.ActionDelete {
		body = bytes.NewReader(action.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

func (c *HTTPClient) Fetch(ctx context.Context, resource string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+resourcePath(resource), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	return io.ReadAll(resp.Body)
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	// Keep a snippet of the body for the rejection report.
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{
		Code: resp.StatusCode,
		Body: strings.TrimSpace(string(snippet)),
	}
}
