package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fmuellner/telepathy-mission-control/pkg/accountstore"
	"github.com/fmuellner/telepathy-mission-control/pkg/controlplane/api"
	"github.com/fmuellner/telepathy-mission-control/pkg/controlplane/api/events"
	"github.com/fmuellner/telepathy-mission-control/pkg/dispatcher"
	"github.com/fmuellner/telepathy-mission-control/pkg/dispatchop"
	"github.com/fmuellner/telepathy-mission-control/pkg/filterchain"
	"github.com/fmuellner/telepathy-mission-control/pkg/handlermap"
	"github.com/fmuellner/telepathy-mission-control/pkg/registry"
)

func TestNewServer_RejectsShortSigningKey(t *testing.T) {
	reg := registry.New("org.example.DispatchClient")
	d := dispatcher.New("/do/", reg, handlermap.New(), filterchain.New(), nopProxy{}, dispatchop.NewCounter(), time.Second)

	_, err := api.NewServer(api.Config{Port: 0, JWTSigningKey: "too-short"}, d, reg, events.NewHub(), accountstore.NewManager())
	require.Error(t, err)
}

func TestNewServer_AppliesDefaults(t *testing.T) {
	reg := registry.New("org.example.DispatchClient")
	d := dispatcher.New("/do/", reg, handlermap.New(), filterchain.New(), nopProxy{}, dispatchop.NewCounter(), time.Second)

	srv, err := api.NewServer(api.Config{JWTSigningKey: "test-secret-key-that-is-at-least-32-characters-long"}, d, reg, events.NewHub(), accountstore.NewManager())
	require.NoError(t, err)
	require.Equal(t, 8080, srv.Port())
	require.NotNil(t, srv.JWTService())
}

func TestServer_StartStop(t *testing.T) {
	reg := registry.New("org.example.DispatchClient")
	d := dispatcher.New("/do/", reg, handlermap.New(), filterchain.New(), nopProxy{}, dispatchop.NewCounter(), time.Second)
	dctx, dcancel := context.WithCancel(context.Background())
	defer dcancel()
	go d.Run(dctx)

	srv, err := api.NewServer(api.Config{Port: 0, JWTSigningKey: "test-secret-key-that-is-at-least-32-characters-long"}, d, reg, events.NewHub(), accountstore.NewManager())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
