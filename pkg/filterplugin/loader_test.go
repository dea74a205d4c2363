package filterplugin_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuellner/telepathy-mission-control/pkg/filterchain"
	"github.com/fmuellner/telepathy-mission-control/pkg/filterplugin"
)

const sampleRuleFile = `
rules:
  - name: calls-only
    channel_type: org.example.Call
    direction: incoming
    match:
      - property: TargetHandleType
        equals: Contact
`

func TestLoader_LoadAllInstallsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "calls.yaml"), []byte(sampleRuleFile), 0o644))

	chain := filterchain.New()
	loader := filterplugin.NewLoader(dir, chain)

	require.NoError(t, loader.LoadAll())

	assert.True(t, chain.HasEntries("org.example.Call", filterchain.DirectionIncoming))
	assert.True(t, chain.Run("org.example.Call", filterchain.DirectionIncoming, map[string]any{"TargetHandleType": "Contact"}))
	assert.False(t, chain.Run("org.example.Call", filterchain.DirectionIncoming, map[string]any{"TargetHandleType": "Room"}))
}

func TestLoader_WatchPicksUpNewFile(t *testing.T) {
	dir := t.TempDir()

	chain := filterchain.New()
	loader := filterplugin.NewLoader(dir, chain)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loader.Watch(ctx)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "calls.yaml"), []byte(sampleRuleFile), 0o644))

	require.Eventually(t, func() bool {
		return chain.HasEntries("org.example.Call", filterchain.DirectionIncoming)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLoader_RemovingFileUninstallsRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calls.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRuleFile), 0o644))

	chain := filterchain.New()
	loader := filterplugin.NewLoader(dir, chain)
	require.NoError(t, loader.LoadAll())
	require.True(t, chain.HasEntries("org.example.Call", filterchain.DirectionIncoming))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loader.Watch(ctx)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		return !chain.HasEntries("org.example.Call", filterchain.DirectionIncoming)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLoader_InvalidRuleFileDoesNotInstallAnything(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("not: [valid"), 0o644))

	chain := filterchain.New()
	loader := filterplugin.NewLoader(dir, chain)

	require.NoError(t, loader.LoadAll())
	assert.Empty(t, loader.Loaded())
}
