package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fmuellner/telepathy-mission-control/pkg/controlplane/api/handlers"
	"github.com/fmuellner/telepathy-mission-control/pkg/dispatcher"
	"github.com/fmuellner/telepathy-mission-control/pkg/dispatchop"
	"github.com/fmuellner/telepathy-mission-control/pkg/filterchain"
	"github.com/fmuellner/telepathy-mission-control/pkg/handlermap"
	"github.com/fmuellner/telepathy-mission-control/pkg/registry"
)

func TestHealthHandler_Liveness_AlwaysOK(t *testing.T) {
	h := handlers.NewHealthHandler(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.Liveness(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHealthHandler_Readiness_NilDispatcher(t *testing.T) {
	h := handlers.NewHealthHandler(nil, registry.New("org.example.DispatchClient"))

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rr := httptest.NewRecorder()
	h.Readiness(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHealthHandler_Readiness_NilRegistry(t *testing.T) {
	reg := registry.New("org.example.DispatchClient")
	d := dispatcher.New("/do/", reg, handlermap.New(), filterchain.New(), nopProxy{}, dispatchop.NewCounter(), time.Second)

	h := handlers.NewHealthHandler(d, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rr := httptest.NewRecorder()
	h.Readiness(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHealthHandler_Readiness_Ready(t *testing.T) {
	reg := registry.New("org.example.DispatchClient")
	d := dispatcher.New("/do/", reg, handlermap.New(), filterchain.New(), nopProxy{}, dispatchop.NewCounter(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	h := handlers.NewHealthHandler(d, reg)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rr := httptest.NewRecorder()
	h.Readiness(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}
