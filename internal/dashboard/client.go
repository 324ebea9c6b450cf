// Package dashboard implements the operator side of the relay: polling the
// alert feed, the review workflow, the monitoring toggle and the live stream
// view, without any rendering.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"invigilens/internal/alerts"
)

// APIError is a non-2xx answer from the Alert API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("alert api error %s", e.Status)
	}
	return fmt.Sprintf("alert api error %s: %s", e.Status, e.Message)
}

// Is lets callers match API errors against the alerts sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case alerts.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case alerts.ErrValidation:
		return e.StatusCode == http.StatusBadRequest
	}
	return false
}

// Client calls the Alert API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a client for the API at baseURL, e.g. http://localhost:5000.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// List fetches alerts, newest first. An empty status lists everything.
func (c *Client) List(ctx context.Context, status alerts.Status) ([]alerts.Alert, error) {
	u := c.BaseURL + "/api/alerts"
	if status != "" {
		u += "?" + url.Values{"status": {string(status)}}.Encode()
	}
	var out []alerts.Alert
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []alerts.Alert{}
	}
	return out, nil
}

// UpdateStatus records a review decision and returns the updated alert.
func (c *Client) UpdateStatus(ctx context.Context, id string, status alerts.Status) (alerts.Alert, error) {
	if id == "" {
		return alerts.Alert{}, fmt.Errorf("alert id required")
	}
	body, _ := json.Marshal(map[string]alerts.Status{"status": status})
	var out alerts.Alert
	err := c.do(ctx, http.MethodPut, c.BaseURL+"/api/alerts/"+url.PathEscape(id), body, &out)
	return out, err
}

// ClearHistory deletes every alert on the server and returns how many were
// removed. Evidence files stay on disk.
func (c *Client) ClearHistory(ctx context.Context) (int64, error) {
	var out struct {
		Message string `json:"message"`
		Deleted int64  `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, c.BaseURL+"/api/alerts", nil, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// Health checks if the API is available.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.BaseURL+"/healthz", nil, nil)
}

// EvidenceURL resolves an alert's evidence path to a URL on the API server.
// It returns "" when there is no evidence.
func (c *Client) EvidenceURL(evidencePath string) string {
	evidencePath = strings.TrimLeft(evidencePath, "/")
	if evidencePath == "" {
		return ""
	}
	segments := strings.Split(evidencePath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.BaseURL + "/evidence/" + strings.Join(segments, "/")
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("alert api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status}
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(bodyBytes, &msg) == nil && msg.Message != "" {
			apiErr.Message = msg.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(bodyBytes))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
