// Package clientproxy implements dispatchop.ClientProxy over plain HTTP:
// each registered endpoint's CallbackBaseURL is POSTed a JSON body for
// ObserveChannels, AddDispatchOperation, and HandleChannels.
package clientproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fmuellner/telepathy-mission-control/pkg/dispatchop"
	"github.com/fmuellner/telepathy-mission-control/pkg/registry"
)

var _ dispatchop.ClientProxy = (*Client)(nil)

// Client is the CDO -> client out-call transport (SPEC_FULL.md §6.2).
type Client struct {
	httpClient *http.Client
}

// New constructs a Client. httpClient may be nil to use http.DefaultClient;
// callers normally override per-call timeouts via the context passed to
// each method instead of the client's own Timeout field.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient}
}

// APIError is returned for any non-2xx response from a client endpoint.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client endpoint returned %d: %s", e.StatusCode, e.Message)
}

func (c *Client) post(ctx context.Context, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("clientproxy: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("clientproxy: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("clientproxy: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("clientproxy: read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}
	return nil
}

// ObserveChannels implements dispatchop.ClientProxy.
func (c *Client) ObserveChannels(ctx context.Context, ep *registry.Endpoint, req dispatchop.ObserveChannelsRequest) error {
	return c.post(ctx, ep.CallbackBaseURL+"/observe-channels", req)
}

// AddDispatchOperation implements dispatchop.ClientProxy.
func (c *Client) AddDispatchOperation(ctx context.Context, ep *registry.Endpoint, req dispatchop.AddDispatchOperationRequest) error {
	return c.post(ctx, ep.CallbackBaseURL+"/add-dispatch-operation", req)
}

// HandleChannels implements dispatchop.ClientProxy.
func (c *Client) HandleChannels(ctx context.Context, ep *registry.Endpoint, req dispatchop.HandleChannelsRequest) error {
	return c.post(ctx, ep.CallbackBaseURL+"/handle-channels", req)
}
