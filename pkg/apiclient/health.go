package apiclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HealthStatus is the decoded form of the health envelope returned by both
// /health and /health/ready. Unlike the rest of the API these endpoints
// reply with the plain Response envelope on failure too (a 503 with
// status "unhealthy"), never an RFC 7807 problem, so it is parsed directly
// rather than through Client.do.
type HealthStatus struct {
	Healthy bool
	Error   string
	Data    map[string]any
}

func (c *Client) fetchHealth(path string) (*HealthStatus, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}

	status := &HealthStatus{
		Healthy: env.Status == "healthy",
		Error:   env.Error,
	}
	if len(env.Data) > 0 {
		_ = json.Unmarshal(env.Data, &status.Data)
	}
	return status, nil
}

// Liveness calls GET /health.
func (c *Client) Liveness() (*HealthStatus, error) {
	return c.fetchHealth("/health")
}

// Readiness calls GET /health/ready.
func (c *Client) Readiness() (*HealthStatus, error) {
	return c.fetchHealth("/health/ready")
}
