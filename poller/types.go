package poller

import (
	"time"

	"ledger-monitor/ledger"
)

// Node statuses. A view with any status other than StatusOnline carries an
// empty chain and empty balances.
const (
	StatusOnline   = "online"
	StatusOffline  = "offline"
	StatusTimeout  = "timeout"
	StatusChecking = "checking"
)

// NodeConfig identifies one ledger node endpoint. The configured set is
// fixed for the process lifetime.
type NodeConfig struct {
	Name string `json:"name" mapstructure:"name"`
	URL  string `json:"url" mapstructure:"url"`
	Port int    `json:"port" mapstructure:"port"`
}

// NodeStats carries the supplementary figures from GET /stats. Stats are
// best effort; a node without the endpoint reports all zeros.
type NodeStats struct {
	PeerCount           int     `json:"peer_count"`
	TotalTransactions   int     `json:"total_transactions"`
	PendingTransactions int     `json:"pending_transactions"`
	LastBlockTime       float64 `json:"last_block_time"`
	HashRate            float64 `json:"hash_rate"`
}

// NodeView is one node's polled state, replaced wholesale each cycle.
type NodeView struct {
	Name        string             `json:"name"`
	URL         string             `json:"url"`
	Port        int                `json:"port"`
	Status      string             `json:"status"`
	Chain       []ledger.Block     `json:"chain"`
	ChainLength int                `json:"chain_length"`
	Balances    map[string]float64 `json:"balances"`
	LastUpdated time.Time          `json:"last_updated"`
	Error       string             `json:"error,omitempty"`
	Stats       NodeStats          `json:"stats"`
}

// Online reports whether the node answered both chain and state requests.
func (v NodeView) Online() bool {
	return v.Status == StatusOnline
}
