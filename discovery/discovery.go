package discovery

import (
	"fmt"
	"net"
	"strings"
	"time"

	"ledger-monitor/logger"
	"ledger-monitor/poller"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

var log = logger.Logger

const (
	// ServiceName is the mDNS service type ledger nodes advertise.
	ServiceName = "_ledger_node._tcp"

	// Domain is the standard mDNS domain.
	Domain = "local."

	// QueryTimeout bounds one discovery round.
	QueryTimeout = 3 * time.Second
)

// Discover queries the local network for ledger nodes advertising their HTTP
// port and returns them as node configs. Discovery runs before the monitor
// starts; the node set stays fixed for the process lifetime.
func Discover() ([]poller.NodeConfig, error) {
	log.Info("Starting ledger node discovery")

	entriesCh := make(chan *mdns.ServiceEntry, 8)
	found := make(map[string]poller.NodeConfig)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entriesCh {
			cfg, ok := configFromEntry(entry)
			if !ok {
				continue
			}
			if _, exists := found[cfg.Name]; !exists {
				found[cfg.Name] = cfg
				log.WithFields(logrus.Fields{
					"node": cfg.Name,
					"url":  cfg.URL,
					"port": cfg.Port,
				}).Info("Discovered ledger node")
			}
		}
	}()

	params := &mdns.QueryParam{
		Service:     ServiceName,
		Domain:      Domain,
		Timeout:     QueryTimeout,
		Entries:     entriesCh,
		DisableIPv6: true,
	}

	err := mdns.Query(params)
	close(entriesCh)
	<-done
	if err != nil {
		return nil, fmt.Errorf("failed to discover nodes: %w", err)
	}

	configs := make([]poller.NodeConfig, 0, len(found))
	for _, cfg := range found {
		configs = append(configs, cfg)
	}

	log.WithField("discoveredNodes", len(configs)).Info("Node discovery completed")
	return configs, nil
}

// configFromEntry turns one mDNS entry into a node config. The node ID comes
// from an id= TXT record; the address prefers IPv4.
func configFromEntry(entry *mdns.ServiceEntry) (poller.NodeConfig, bool) {
	nodeID := ""
	for _, txt := range entry.InfoFields {
		if strings.HasPrefix(txt, "id=") {
			nodeID = strings.TrimPrefix(txt, "id=")
			break
		}
	}
	if nodeID == "" {
		log.WithField("name", entry.Name).Warn("No node ID found in TXT records")
		return poller.NodeConfig{}, false
	}

	var nodeIP net.IP
	if entry.AddrV4 != nil {
		nodeIP = entry.AddrV4
	} else if entry.AddrV6 != nil {
		nodeIP = entry.AddrV6
	} else {
		log.WithField("nodeID", nodeID).Warn("No IP address found for node")
		return poller.NodeConfig{}, false
	}

	return poller.NodeConfig{
		Name: nodeID,
		URL:  fmt.Sprintf("http://%s", net.JoinHostPort(nodeIP.String(), fmt.Sprintf("%d", entry.Port))),
		Port: entry.Port,
	}, true
}

// Merge appends discovered nodes to the configured set, skipping any whose
// name or URL is already configured. Configured nodes keep their position so
// tie-break order stays stable.
func Merge(configured, discovered []poller.NodeConfig) []poller.NodeConfig {
	merged := make([]poller.NodeConfig, len(configured))
	copy(merged, configured)

	for _, cfg := range discovered {
		duplicate := false
		for _, existing := range merged {
			if existing.Name == cfg.Name || existing.URL == cfg.URL {
				duplicate = true
				break
			}
		}
		if !duplicate {
			merged = append(merged, cfg)
		}
	}
	return merged
}
