package discovery

import (
	"net"
	"testing"

	"ledger-monitor/poller"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "node-a._ledger_node._tcp.local.",
		AddrV4:     net.ParseIP("192.168.1.10"),
		Port:       5000,
		InfoFields: []string{"id=node-a", "version=1"},
	}

	cfg, ok := configFromEntry(entry)
	require.True(t, ok)
	assert.Equal(t, "node-a", cfg.Name)
	assert.Equal(t, "http://192.168.1.10:5000", cfg.URL)
	assert.Equal(t, 5000, cfg.Port)
}

func TestConfigFromEntry_MissingID(t *testing.T) {
	entry := &mdns.ServiceEntry{
		AddrV4:     net.ParseIP("192.168.1.10"),
		Port:       5000,
		InfoFields: []string{"version=1"},
	}

	_, ok := configFromEntry(entry)
	assert.False(t, ok, "Entries without an id TXT record are skipped")
}

func TestConfigFromEntry_MissingAddress(t *testing.T) {
	entry := &mdns.ServiceEntry{Port: 5000, InfoFields: []string{"id=node-a"}}
	_, ok := configFromEntry(entry)
	assert.False(t, ok)
}

func TestMerge_AppendsNewNodes(t *testing.T) {
	configured := []poller.NodeConfig{
		{Name: "node-1", URL: "http://127.0.0.1:5000"},
	}
	discovered := []poller.NodeConfig{
		{Name: "node-2", URL: "http://127.0.0.1:5001"},
	}

	merged := Merge(configured, discovered)
	require.Len(t, merged, 2)
	assert.Equal(t, "node-1", merged[0].Name, "Configured nodes keep their position")
	assert.Equal(t, "node-2", merged[1].Name)
}

func TestMerge_SkipsDuplicates(t *testing.T) {
	configured := []poller.NodeConfig{
		{Name: "node-1", URL: "http://127.0.0.1:5000"},
	}
	discovered := []poller.NodeConfig{
		{Name: "node-1", URL: "http://10.0.0.1:5000"},  // same name
		{Name: "other", URL: "http://127.0.0.1:5000"},  // same url
		{Name: "node-2", URL: "http://127.0.0.1:5001"}, // genuinely new
	}

	merged := Merge(configured, discovered)
	require.Len(t, merged, 2)
	assert.Equal(t, "node-2", merged[1].Name)
}

func TestMerge_DoesNotMutateConfigured(t *testing.T) {
	configured := []poller.NodeConfig{{Name: "node-1", URL: "http://127.0.0.1:5000"}}
	Merge(configured, []poller.NodeConfig{{Name: "node-2", URL: "http://127.0.0.1:5001"}})
	require.Len(t, configured, 1)
}
