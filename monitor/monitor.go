package monitor

import (
	"context"
	"sync"
	"time"

	"ledger-monitor/events"
	"ledger-monitor/logger"
	"ledger-monitor/mempool"
	"ledger-monitor/poller"
	"ledger-monitor/reconcile"
	"ledger-monitor/topology"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var log = logger.Logger

// DefaultRefreshInterval drives the auto-refresh ticker.
const DefaultRefreshInterval = 3 * time.Second

// Default layout canvas, matching the dashboard drawing area.
const (
	DefaultCanvasWidth  = 1000.0
	DefaultCanvasHeight = 460.0
)

// Snapshot is the complete operator view produced by one refresh cycle. It
// is immutable once published; each cycle replaces it wholesale.
type Snapshot struct {
	Nodes     []poller.NodeView        `json:"nodes"`
	BestIndex int                      `json:"best_index"`
	BestNode  string                   `json:"best_node,omitempty"`
	Balances  map[string]float64       `json:"balances"`
	Stats     reconcile.AggregateStats `json:"stats"`
	Mempool   mempool.Snapshot         `json:"mempool"`
	Topology  topology.Graph           `json:"topology"`
	Events    []events.Event           `json:"events"`
	Timestamp time.Time                `json:"timestamp"`
}

// Best returns the selected best node's view, or nil when no node is online.
func (s Snapshot) Best() *poller.NodeView {
	if s.BestIndex < 0 || s.BestIndex >= len(s.Nodes) {
		return nil
	}
	view := s.Nodes[s.BestIndex]
	return &view
}

// Options configures a Monitor.
type Options struct {
	Nodes           []poller.NodeConfig
	RefreshInterval time.Duration
	EventCapacity   int
	CanvasWidth     float64
	CanvasHeight    float64
	Now             func() time.Time // nil means time.Now
}

// Monitor is the refresh scheduler: it drives poll -> select -> merge ->
// mempool/topology cycles on a timer or on demand, and publishes one
// immutable snapshot per cycle.
type Monitor struct {
	nodes           []poller.NodeConfig
	client          *poller.Client
	poller          *poller.Poller
	selector        *reconcile.Selector
	watcher         *mempool.Watcher
	resolver        *topology.Resolver
	eventLog        *events.Log
	now             func() time.Time
	refreshInterval time.Duration
	canvasWidth     float64
	canvasHeight    float64

	// flight coalesces overlapping refresh requests into one cycle.
	flight singleflight.Group

	mutex       sync.RWMutex
	snapshot    Snapshot
	subscribers []func(Snapshot)
	autoRefresh bool

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a monitor over a fixed node set. The initial snapshot shows
// every node in the checking state until the first cycle completes.
func New(opts Options) *Monitor {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	interval := opts.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	width := opts.CanvasWidth
	height := opts.CanvasHeight
	if width <= 0 || height <= 0 {
		width = DefaultCanvasWidth
		height = DefaultCanvasHeight
	}

	client := poller.NewClient()
	m := &Monitor{
		nodes:           opts.Nodes,
		client:          client,
		poller:          poller.New(client, now),
		selector:        reconcile.NewSelector(),
		watcher:         mempool.NewWatcher(client),
		resolver:        topology.NewResolver(client),
		eventLog:        events.NewLog(opts.EventCapacity),
		now:             now,
		refreshInterval: interval,
		canvasWidth:     width,
		canvasHeight:    height,
		autoRefresh:     true,
		stop:            make(chan struct{}),
	}

	checking := make([]poller.NodeView, len(opts.Nodes))
	for i, cfg := range opts.Nodes {
		checking[i] = poller.NodeView{
			Name:     cfg.Name,
			URL:      cfg.URL,
			Port:     cfg.Port,
			Status:   poller.StatusChecking,
			Balances: map[string]float64{},
		}
	}
	m.snapshot = Snapshot{
		Nodes:     checking,
		BestIndex: -1,
		Balances:  map[string]float64{},
		Stats:     reconcile.AggregateStats{TotalNodes: len(opts.Nodes), Health: reconcile.HealthCritical},
		Mempool:   mempool.Empty(),
		Topology:  topology.Graph{Source: topology.SourceDerived},
		Timestamp: now(),
	}

	return m
}

// Start runs the scheduler loop in the background.
func (m *Monitor) Start() {
	log.WithFields(logrus.Fields{
		"nodes":    len(m.nodes),
		"interval": m.refreshInterval,
	}).Info("Monitor started")
	go m.run()
}

// Stop ends the scheduler loop. An in-flight cycle runs to completion.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	log.Info("Monitor stopped")
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()

	// One immediate cycle so the operator view fills without waiting a tick.
	m.Refresh(context.Background())

	for {
		select {
		case <-ticker.C:
			if m.AutoRefresh() {
				m.Refresh(context.Background())
			}
		case <-m.stop:
			return
		}
	}
}

// SetAutoRefresh toggles scheduled cycles. Disabling never cancels an
// in-flight cycle, only future scheduling.
func (m *Monitor) SetAutoRefresh(enabled bool) {
	m.mutex.Lock()
	m.autoRefresh = enabled
	m.mutex.Unlock()
	log.WithField("enabled", enabled).Info("Auto refresh toggled")
}

// AutoRefresh reports whether scheduled cycles are enabled.
func (m *Monitor) AutoRefresh() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.autoRefresh
}

// Refresh runs one cycle and returns the published snapshot. Cycles are
// single-flight: a refresh requested while another is in flight coalesces
// into it and both callers observe the same snapshot.
func (m *Monitor) Refresh(ctx context.Context) Snapshot {
	result, _, _ := m.flight.Do("refresh", func() (interface{}, error) {
		return m.runCycle(ctx), nil
	})
	return result.(Snapshot)
}

// Snapshot returns the most recently published cycle result.
func (m *Monitor) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.snapshot
}

// OnSnapshot registers a subscriber notified after every published cycle.
// Subscribers must not mutate the snapshot.
func (m *Monitor) OnSnapshot(fn func(Snapshot)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Events returns the current event log, newest first.
func (m *Monitor) Events() []events.Event {
	return m.eventLog.Snapshot()
}

// Nodes returns the configured node set.
func (m *Monitor) Nodes() []poller.NodeConfig {
	out := make([]poller.NodeConfig, len(m.nodes))
	copy(out, m.nodes)
	return out
}

// runCycle performs one full reconciliation cycle: fan-out poll, best-node
// selection, balance merge, then mempool and topology refresh seeded by the
// best node. Selection and merge only run after every poll has completed;
// mempool and topology only after a best node exists for this same cycle.
func (m *Monitor) runCycle(ctx context.Context) Snapshot {
	started := m.now()
	views := m.poller.PollAll(ctx, m.nodes)

	bestIndex, blockEvents := m.selector.Select(views, m.now())
	balances := reconcile.MergeBalances(views)
	stats := reconcile.ComputeStats(views)

	pool := mempool.Empty()
	graph := topology.Graph{Source: topology.SourceDerived}
	bestName := ""
	var txEvents []events.Event
	if bestIndex >= 0 {
		best := views[bestIndex]
		bestName = best.Name
		pool, txEvents = m.watcher.Refresh(ctx, best.URL, m.now())
		graph = m.resolver.Resolve(ctx, best.URL, views)
	}
	graph = topology.Layout(graph, m.canvasWidth, m.canvasHeight)

	m.eventLog.Append(blockEvents...)
	m.eventLog.Append(txEvents...)

	snap := Snapshot{
		Nodes:     views,
		BestIndex: bestIndex,
		BestNode:  bestName,
		Balances:  balances,
		Stats:     stats,
		Mempool:   pool,
		Topology:  graph,
		Events:    m.eventLog.Snapshot(),
		Timestamp: started,
	}

	m.mutex.Lock()
	m.snapshot = snap
	subscribers := make([]func(Snapshot), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mutex.Unlock()

	for _, fn := range subscribers {
		fn(snap)
	}

	log.WithFields(logrus.Fields{
		"online":   stats.OnlineNodes,
		"total":    stats.TotalNodes,
		"bestNode": bestName,
		"health":   stats.Health,
		"duration": m.now().Sub(started),
	}).Info("Refresh cycle completed")

	return snap
}
