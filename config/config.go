package config

import (
	"fmt"
	"time"

	"ledger-monitor/poller"

	"github.com/spf13/viper"
)

// Config holds everything the monitor needs at startup. The node list is
// immutable once loaded.
type Config struct {
	APIPort         int
	RefreshInterval time.Duration
	EventCapacity   int
	CanvasWidth     float64
	CanvasHeight    float64
	LogFile         string
	LogDatabase     string
	LogLevel        string
	DiscoveryOn     bool
	NTPOn           bool
	Nodes           []poller.NodeConfig
}

// Load reads the yaml config at path and applies defaults for anything
// unset. A missing file is an error; an empty node list is not, since
// discovery may still supply nodes.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("server.port", 8090)
	v.SetDefault("monitor.refresh_interval", "3s")
	v.SetDefault("monitor.event_capacity", 200)
	v.SetDefault("monitor.canvas_width", 1000)
	v.SetDefault("monitor.canvas_height", 460)
	v.SetDefault("log.file", "logs/monitor.log")
	v.SetDefault("log.database", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("discovery.enabled", false)
	v.SetDefault("ntp.enabled", false)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{
		APIPort:       v.GetInt("server.port"),
		EventCapacity: v.GetInt("monitor.event_capacity"),
		CanvasWidth:   v.GetFloat64("monitor.canvas_width"),
		CanvasHeight:  v.GetFloat64("monitor.canvas_height"),
		LogFile:       v.GetString("log.file"),
		LogDatabase:   v.GetString("log.database"),
		LogLevel:      v.GetString("log.level"),
		DiscoveryOn:   v.GetBool("discovery.enabled"),
		NTPOn:         v.GetBool("ntp.enabled"),
	}

	cfg.RefreshInterval = v.GetDuration("monitor.refresh_interval")
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 3 * time.Second
	}

	if err := v.UnmarshalKey("nodes", &cfg.Nodes); err != nil {
		return nil, fmt.Errorf("failed to parse node list: %w", err)
	}
	for i, node := range cfg.Nodes {
		if node.URL == "" {
			return nil, fmt.Errorf("node %d (%s) has no url", i, node.Name)
		}
		if node.Name == "" {
			cfg.Nodes[i].Name = fmt.Sprintf("node-%d", i+1)
		}
	}

	return cfg, nil
}
