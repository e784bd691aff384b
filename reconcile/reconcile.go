package reconcile

import (
	"fmt"
	"time"

	"ledger-monitor/events"
	"ledger-monitor/ledger"
	"ledger-monitor/logger"
	"ledger-monitor/poller"

	"github.com/sirupsen/logrus"
)

var log = logger.Logger

// Health labels derived from the online-node percentage.
const (
	HealthHealthy  = "Healthy"
	HealthDegraded = "Degraded"
	HealthCritical = "Critical"
)

// maxBlockEventsPerCycle caps synthetic block events when the best height
// jumps by more than a few blocks in one cycle.
const maxBlockEventsPerCycle = 3

// AggregateStats is the cluster-wide summary recomputed each cycle.
type AggregateStats struct {
	OnlineNodes       int     `json:"online_nodes"`
	TotalNodes        int     `json:"total_nodes"`
	TotalBlocks       int     `json:"total_blocks"`
	TotalTransactions int     `json:"total_transactions"`
	HealthPercentage  float64 `json:"health_percentage"`
	Health            string  `json:"health"`
	HashRate          float64 `json:"hash_rate"`
}

// SelectBest returns the index of the online view with the maximum chain
// length, or -1 when no node is online. Ties resolve to the later view in
// configured order via a greater-or-equal scan.
func SelectBest(views []poller.NodeView) int {
	best := -1
	for i, view := range views {
		if !view.Online() {
			continue
		}
		if best == -1 || view.ChainLength >= views[best].ChainLength {
			best = i
		}
	}
	return best
}

// Selector picks the best node each cycle and emits block events when the
// selected height grows over the previous cycle's.
type Selector struct {
	lastHeight int
}

// NewSelector creates a selector with no observed height yet.
func NewSelector() *Selector {
	return &Selector{}
}

// Select runs best-node selection over the cycle's views and returns the
// selected index (-1 when every node is down) together with at most
// maxBlockEventsPerCycle block events, one per newly observed height.
func (s *Selector) Select(views []poller.NodeView, now time.Time) (int, []events.Event) {
	best := SelectBest(views)
	if best == -1 {
		log.Warn("No online node found, no best node this cycle")
		return -1, nil
	}

	height := views[best].ChainLength
	var emitted []events.Event
	if height > s.lastHeight {
		first := s.lastHeight + 1
		if height-s.lastHeight > maxBlockEventsPerCycle {
			first = height - maxBlockEventsPerCycle + 1
		}
		for h := first; h <= height; h++ {
			emitted = append(emitted, events.New(now, events.TypeBlock, events.SeveritySuccess,
				fmt.Sprintf("New block at height %d on %s", h, views[best].Name),
				map[string]interface{}{
					"height": h,
					"node":   views[best].Name,
				}))
		}
		log.WithFields(logrus.Fields{
			"node":       views[best].Name,
			"height":     height,
			"lastHeight": s.lastHeight,
			"events":     len(emitted),
		}).Info("Best node chain grew, block events emitted")
	}
	s.lastHeight = height

	return best, emitted
}

// MergeBalances folds the online views into one global balance map. Each
// address keeps the balance reported by the longest-chain contributor seen
// so far; on equal chain lengths the later node in configured order wins,
// consistent with best-node tie-breaking.
func MergeBalances(views []poller.NodeView) map[string]float64 {
	merged := map[string]float64{}
	source := map[string]int{} // address -> chain length of the contributor

	for _, view := range views {
		if !view.Online() {
			continue
		}
		for address, balance := range view.Balances {
			if recorded, seen := source[address]; !seen || view.ChainLength >= recorded {
				merged[address] = balance
				source[address] = view.ChainLength
			}
		}
	}
	return merged
}

// HealthLabel maps an online percentage to its three-level label.
func HealthLabel(percentage float64) string {
	switch {
	case percentage >= 80:
		return HealthHealthy
	case percentage >= 50:
		return HealthDegraded
	default:
		return HealthCritical
	}
}

// ComputeStats derives the aggregate summary from the cycle's views. Only
// online nodes contribute; a cycle with none yields zeros and a Critical
// label.
func ComputeStats(views []poller.NodeView) AggregateStats {
	stats := AggregateStats{TotalNodes: len(views)}

	for _, view := range views {
		if !view.Online() {
			continue
		}
		stats.OnlineNodes++
		if view.ChainLength > stats.TotalBlocks {
			stats.TotalBlocks = view.ChainLength
		}
		stats.TotalTransactions += ledger.TransactionCount(view.Chain)
		stats.HashRate += view.Stats.HashRate
	}

	if stats.TotalNodes > 0 {
		stats.HealthPercentage = float64(stats.OnlineNodes) / float64(stats.TotalNodes) * 100
	}
	stats.Health = HealthLabel(stats.HealthPercentage)

	return stats
}
