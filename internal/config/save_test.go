package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Wallets = []string{"0xaaa"}
	cfg.Network = "scroll"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, Save(cfg, path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.Network, loaded.Network)
	assert.Equal(t, cfg.Wallets, loaded.Wallets)
	assert.Equal(t, cfg.Scheduler, loaded.Scheduler)
	assert.Equal(t, cfg.Protocols, loaded.Protocols)
}
