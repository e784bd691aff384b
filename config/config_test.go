package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9100
monitor:
  refresh_interval: 5s
  event_capacity: 50
  canvas_width: 800
  canvas_height: 600
log:
  file: /tmp/monitor.log
  database: /tmp/monitor.db
  level: debug
discovery:
  enabled: true
ntp:
  enabled: true
nodes:
  - name: alpha
    url: http://127.0.0.1:5000
    port: 5000
  - name: beta
    url: http://127.0.0.1:5001
    port: 5001
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.APIPort)
	assert.Equal(t, 5*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 50, cfg.EventCapacity)
	assert.Equal(t, 800.0, cfg.CanvasWidth)
	assert.Equal(t, 600.0, cfg.CanvasHeight)
	assert.Equal(t, "/tmp/monitor.log", cfg.LogFile)
	assert.Equal(t, "/tmp/monitor.db", cfg.LogDatabase)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DiscoveryOn)
	assert.True(t, cfg.NTPOn)

	require.Len(t, cfg.Nodes, 2)
	assert.Equal(t, "alpha", cfg.Nodes[0].Name)
	assert.Equal(t, "http://127.0.0.1:5001", cfg.Nodes[1].URL)
	assert.Equal(t, 5001, cfg.Nodes[1].Port)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
nodes:
  - url: http://127.0.0.1:5000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.APIPort)
	assert.Equal(t, 3*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 200, cfg.EventCapacity)
	assert.Equal(t, 1000.0, cfg.CanvasWidth)
	assert.Equal(t, 460.0, cfg.CanvasHeight)
	assert.Equal(t, "logs/monitor.log", cfg.LogFile)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DiscoveryOn)
	assert.False(t, cfg.NTPOn)
}

func TestLoad_DefaultsNodeNames(t *testing.T) {
	path := writeConfig(t, `
nodes:
  - url: http://127.0.0.1:5000
  - name: named
    url: http://127.0.0.1:5001
  - url: http://127.0.0.1:5002
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Nodes, 3)
	assert.Equal(t, "node-1", cfg.Nodes[0].Name)
	assert.Equal(t, "named", cfg.Nodes[1].Name)
	assert.Equal(t, "node-3", cfg.Nodes[2].Name, "Generated names follow position, not count")
}

func TestLoad_NodeWithoutURL(t *testing.T) {
	path := writeConfig(t, `
nodes:
  - name: broken
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no url")
}

func TestLoad_EmptyNodeListIsAllowed(t *testing.T) {
	// Discovery may still supply nodes later.
	path := writeConfig(t, `
server:
  port: 8090
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Nodes)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}
