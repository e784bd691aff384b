package monitor

import (
	"context"
	"fmt"
	"strings"

	"ledger-monitor/events"
	"ledger-monitor/poller"

	"github.com/sirupsen/logrus"
)

// Write operations live outside the reconciliation core: they mutate a node
// and then request one extra cycle so the operator view reflects the change
// promptly. Outcomes are recorded as system events.

// nodeURL resolves a node name to its endpoint; an empty name means the
// current best node.
func (m *Monitor) nodeURL(name string) (string, error) {
	if name == "" {
		best := m.Snapshot().Best()
		if best == nil {
			return "", fmt.Errorf("no online node available")
		}
		return best.URL, nil
	}
	for _, cfg := range m.nodes {
		if cfg.Name == name {
			return cfg.URL, nil
		}
	}
	return "", fmt.Errorf("unknown node %s", name)
}

// requestExtraCycle schedules one follow-up refresh without blocking the
// write path; it coalesces with any cycle already in flight.
func (m *Monitor) requestExtraCycle() {
	go m.Refresh(context.Background())
}

func (m *Monitor) recordSystem(severity, message string, metadata map[string]interface{}) {
	m.eventLog.Append(events.New(m.now(), events.TypeSystem, severity, message, metadata))
}

// Mine triggers block production on the named node (best node when empty).
func (m *Monitor) Mine(ctx context.Context, nodeName string) error {
	url, err := m.nodeURL(nodeName)
	if err != nil {
		return err
	}
	defer m.requestExtraCycle()

	status, body, err := m.client.Get(ctx, url+"/mine", poller.ChainStateTimeout)
	if err != nil {
		m.recordSystem(events.SeverityError, fmt.Sprintf("Mining failed: %v", err), nil)
		return fmt.Errorf("mining request failed: %w", err)
	}
	if status < 200 || status > 299 {
		reason := strings.TrimSpace(string(body))
		m.recordSystem(events.SeverityError, fmt.Sprintf("Mining rejected: %s", reason), nil)
		return fmt.Errorf("mining rejected with status %d: %s", status, reason)
	}

	log.WithField("url", url).Info("Mining triggered")
	m.recordSystem(events.SeveritySuccess, "Mining triggered", map[string]interface{}{"url": url})
	return nil
}

// SubmitTransaction posts a transfer to the named node (best node when
// empty). A node rejection surfaces the response body verbatim as the
// failure reason. Acceptance by one online node is the only guarantee.
func (m *Monitor) SubmitTransaction(ctx context.Context, nodeName, sender, recipient string, amount float64) error {
	url, err := m.nodeURL(nodeName)
	if err != nil {
		return err
	}
	defer m.requestExtraCycle()

	payload := map[string]interface{}{
		"sender":    sender,
		"recipient": recipient,
		"amount":    amount,
	}
	status, body, err := m.client.Post(ctx, url+"/transactions/new", poller.ChainStateTimeout, payload)
	if err != nil {
		m.recordSystem(events.SeverityError, fmt.Sprintf("Transaction submission failed: %v", err), nil)
		return fmt.Errorf("transaction submission failed: %w", err)
	}
	if status < 200 || status > 299 {
		reason := strings.TrimSpace(string(body))
		m.recordSystem(events.SeverityError, fmt.Sprintf("Transaction rejected: %s", reason), nil)
		return fmt.Errorf("%s", reason)
	}

	log.WithFields(logrus.Fields{
		"sender":    sender,
		"recipient": recipient,
		"amount":    amount,
	}).Info("Transaction submitted")
	m.recordSystem(events.SeverityInfo,
		fmt.Sprintf("Transaction %s -> %s (%.2f) submitted", sender, recipient, amount), nil)
	return nil
}

// syncStrategy is one backend of the prioritized consensus-trigger chain.
type syncStrategy struct {
	name   string
	method string
	path   string
}

// syncStrategies is tried in priority order; the first success wins.
var syncStrategies = []syncStrategy{
	{name: "p2p-network-sync", method: "POST", path: "/network/sync"},
	{name: "legacy-resolve", method: "GET", path: "/nodes/resolve"},
	{name: "manual-chain-sync", method: "POST", path: "/chain/sync"},
	{name: "p2p-sync", method: "POST", path: "/p2p/sync"},
}

// TriggerSync asks the named node (best node when empty) to reconcile its
// chain, trying each strategy in order and stopping at the first that
// succeeds. Intermediate failures are swallowed; total failure is logged and
// reported as false, never escalated.
func (m *Monitor) TriggerSync(ctx context.Context, nodeName string) bool {
	url, err := m.nodeURL(nodeName)
	if err != nil {
		log.WithError(err).Warn("Sync skipped, no target node")
		return false
	}
	defer m.requestExtraCycle()

	for _, strategy := range syncStrategies {
		var status int
		var callErr error
		if strategy.method == "GET" {
			status, _, callErr = m.client.Get(ctx, url+strategy.path, poller.ChainStateTimeout)
		} else {
			status, _, callErr = m.client.Post(ctx, url+strategy.path, poller.ChainStateTimeout, nil)
		}
		if callErr != nil || status < 200 || status > 299 {
			log.WithFields(logrus.Fields{
				"strategy": strategy.name,
				"status":   status,
				"error":    callErr,
			}).Debug("Sync strategy failed, trying next")
			continue
		}

		log.WithFields(logrus.Fields{
			"strategy": strategy.name,
			"url":      url,
		}).Info("Chain sync triggered")
		m.recordSystem(events.SeveritySuccess,
			fmt.Sprintf("Chain sync triggered via %s", strategy.name),
			map[string]interface{}{"strategy": strategy.name, "url": url})
		return true
	}

	log.WithField("url", url).Warn("All sync strategies failed")
	m.recordSystem(events.SeverityError, "Chain sync failed on all strategies",
		map[string]interface{}{"url": url})
	return false
}

// RegisterPeers introduces peer URLs to the named node (best node when
// empty). This is a peer-management call, not part of reconciliation.
func (m *Monitor) RegisterPeers(ctx context.Context, nodeName string, peers []string) error {
	url, err := m.nodeURL(nodeName)
	if err != nil {
		return err
	}
	defer m.requestExtraCycle()

	status, body, err := m.client.Post(ctx, url+"/nodes/register", poller.ChainStateTimeout,
		map[string]interface{}{"nodes": peers})
	if err != nil {
		return fmt.Errorf("peer registration failed: %w", err)
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("peer registration rejected with status %d: %s", status, strings.TrimSpace(string(body)))
	}

	log.WithFields(logrus.Fields{
		"url":   url,
		"peers": len(peers),
	}).Info("Peers registered")
	return nil
}
