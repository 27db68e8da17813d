// Package collector implements the HTTP client for the remote collector
// service: problem detection, event reporting, and the liveness probe.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/config"
	apperrors "github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/errors"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/event"
)

// DetectRequest is the body of the problem detection call.
type DetectRequest struct {
	UserID       string `json:"userId"`
	Platform     string `json:"platform"`
	ProblemTitle string `json:"problemTitle"`
	ProblemURL   string `json:"problemUrl"`
}

// DetectResponse is the collector's answer to a detection call. The
// expected-time field has shipped under two names; ExpectedMinutes
// reconciles them.
type DetectResponse struct {
	ProblemID           string `json:"problemId"`
	ExpectedTime        *int   `json:"expectedTime,omitempty"`
	ExpectedTimeMinutes *int   `json:"expectedTimeMinutes,omitempty"`
}

// ExpectedMinutes returns the expected solve time in minutes, nil when the
// collector did not provide one.
func (r *DetectResponse) ExpectedMinutes() *int {
	if r.ExpectedTime != nil {
		return r.ExpectedTime
	}
	return r.ExpectedTimeMinutes
}

// eventBody is the wire form of an outbound event.
type eventBody struct {
	EventType string         `json:"eventType"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

// Client talks to the collector. The endpoint, credential, and per-attempt
// timeout are read from the settings store on every call so runtime
// settings changes take effect immediately.
type Client struct {
	settings   *config.Store
	httpClient *http.Client
}

// NewClient creates a collector client bound to the settings store.
func NewClient(settings *config.Store) *Client {
	return &Client{
		settings:   settings,
		httpClient: &http.Client{},
	}
}

// DetectProblem resolves a problem id for a freshly observed problem page.
func (c *Client) DetectProblem(ctx context.Context, req DetectRequest) (*DetectResponse, error) {
	var resp DetectResponse
	if err := c.post(ctx, "/api/v1/problems/detect", req, &resp); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeDetection, "problem detection failed", err)
	}
	if resp.ProblemID == "" {
		return nil, apperrors.New(apperrors.ErrCodeDetection, "collector returned no problem id", nil)
	}
	return &resp, nil
}

// PostEvent reports one event. The acknowledgement body is not relied upon.
func (c *Client) PostEvent(ctx context.Context, ev event.Event) error {
	body := eventBody{
		EventType: string(ev.Kind),
		Data:      ev.Data,
		Timestamp: ev.CreatedAt.UnixMilli(),
	}
	return c.post(ctx, "/api/v1/problems/events", body, nil)
}

// Health probes collector liveness. Success is any 2xx.
func (c *Client) Health(ctx context.Context) error {
	cfg := c.settings.Collector()
	ctx, cancel := context.WithTimeout(ctx, cfg.DeliveryTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL+"/api/v1/problems/health", nil)
	if err != nil {
		return apperrors.NewDelivery(0, "failed to create request", err)
	}
	c.addAuthHeaders(httpReq, cfg)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return apperrors.NewDelivery(0, "health probe failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return apperrors.NewDelivery(resp.StatusCode,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	cfg := c.settings.Collector()
	ctx, cancel := context.WithTimeout(ctx, cfg.DeliveryTimeout)
	defer cancel()

	data, err := json.Marshal(body)
	if err != nil {
		return apperrors.NewDelivery(0, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL+path, bytes.NewReader(data))
	if err != nil {
		return apperrors.NewDelivery(0, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.addAuthHeaders(httpReq, cfg)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return apperrors.NewDelivery(0, "failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(resp.Body)
		return apperrors.NewDelivery(resp.StatusCode,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.NewDelivery(resp.StatusCode, "failed to decode response", err)
		}
	}
	return nil
}

func (c *Client) addAuthHeaders(req *http.Request, cfg config.CollectorConfig) {
	if cfg.Credential != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", cfg.Credential))
	}
}
