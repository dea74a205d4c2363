package clientproxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuellner/telepathy-mission-control/pkg/dispatchop"
	"github.com/fmuellner/telepathy-mission-control/pkg/registry"
)

func TestObserveChannelsPostsToCallbackPath(t *testing.T) {
	var gotPath string
	var gotBody dispatchop.ObserveChannelsRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(nil)
	ep := &registry.Endpoint{Name: "O1", CallbackBaseURL: server.URL}
	req := dispatchop.ObserveChannelsRequest{Account: "/acct1", Connection: "/conn1"}

	err := c.ObserveChannels(context.Background(), ep, req)
	require.NoError(t, err)
	assert.Equal(t, "/observe-channels", gotPath)
	assert.Equal(t, "/acct1", gotBody.Account)
}

func TestAddDispatchOperationPostsToCallbackPath(t *testing.T) {
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(nil)
	ep := &registry.Endpoint{Name: "A1", CallbackBaseURL: server.URL}

	err := c.AddDispatchOperation(context.Background(), ep, dispatchop.AddDispatchOperationRequest{CDOPath: "/do/do1"})
	require.NoError(t, err)
	assert.Equal(t, "/add-dispatch-operation", gotPath)
}

func TestHandleChannelsSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(APIError{Message: "handler busy"})
	}))
	defer server.Close()

	c := New(nil)
	ep := &registry.Endpoint{Name: "H1", CallbackBaseURL: server.URL}

	err := c.HandleChannels(context.Background(), ep, dispatchop.HandleChannelsRequest{})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "handler busy", apiErr.Message)
}

func TestHandleChannelsSurfacesTransportError(t *testing.T) {
	c := New(nil)
	ep := &registry.Endpoint{Name: "H1", CallbackBaseURL: "http://127.0.0.1:1"} // connection refused
	err := c.HandleChannels(context.Background(), ep, dispatchop.HandleChannelsRequest{})
	require.Error(t, err)
}
