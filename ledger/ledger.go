package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// CoinbaseSender is the reserved sender address of mining-reward transactions.
const CoinbaseSender = "0"

// Transaction is one transfer as reported by a ledger node. All fields are
// taken verbatim from the node; the monitor never recomputes or verifies them.
type Transaction struct {
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
	Fee       float64 `json:"fee,omitempty"`
	TxID      string  `json:"txid,omitempty"`
	Type      string  `json:"type,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

// IsReward reports whether the transaction is a coinbase (newly issued
// currency paid to a miner).
func (tx Transaction) IsReward() bool {
	return tx.Sender == CoinbaseSender
}

// Key returns a stable identity for the transaction: the node-assigned txid
// when present, otherwise a digest over the value-bearing fields.
func (tx Transaction) Key() string {
	if tx.TxID != "" {
		return tx.TxID
	}

	record := tx.Sender + "|" + tx.Recipient + "|" +
		strconv.FormatFloat(tx.Amount, 'f', -1, 64) + "|" +
		strconv.FormatFloat(tx.Fee, 'f', -1, 64) + "|" +
		strconv.FormatFloat(tx.Timestamp, 'f', -1, 64)

	sum := sha256.Sum256([]byte(record))
	return hex.EncodeToString(sum[:])
}

// Block is one block of a node's reported chain.
type Block struct {
	Index        uint64        `json:"index"`
	Timestamp    float64       `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	Proof        int64         `json:"proof"`
	PrevHash     string        `json:"previous_hash"`
	Hash         string        `json:"hash,omitempty"`
}

// ChainPayload is the body of GET /chain.
type ChainPayload struct {
	Chain  []Block `json:"chain"`
	Length int     `json:"length"`
}

// StatePayload is the body of GET /state.
type StatePayload struct {
	State map[string]float64 `json:"state"`
}

// MempoolPayload is the body of GET /mempool.
type MempoolPayload struct {
	Txs []Transaction `json:"txs"`
}

// NetworkInfo is the nested peer section of GET /stats.
type NetworkInfo struct {
	ConnectedPeers int `json:"connected_peers"`
}

// StatsPayload is the body of GET /stats. Every field is optional on the
// node side; absent fields decode to zero.
type StatsPayload struct {
	NetworkInfo         NetworkInfo `json:"network_info"`
	TotalTransactions   int         `json:"total_transactions"`
	PendingTransactions int         `json:"pending_transactions"`
	LastBlockTime       float64     `json:"last_block_time"`
	HashRate            float64     `json:"hash_rate"`
}

// TopologyNode is one vertex of a node-reported peer graph.
type TopologyNode struct {
	ID     string `json:"id"`
	Label  string `json:"label,omitempty"`
	Status string `json:"status,omitempty"`
}

// TopologyEdge is one link of a node-reported peer graph. Nodes emit edges
// either as {"from":..,"to":..} objects or as two-element arrays.
type TopologyEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// UnmarshalJSON accepts both the object and the pair form.
func (e *TopologyEdge) UnmarshalJSON(data []byte) error {
	type plainEdge TopologyEdge
	var obj plainEdge
	if err := json.Unmarshal(data, &obj); err == nil && (obj.From != "" || obj.To != "") {
		e.From, e.To = obj.From, obj.To
		return nil
	}

	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("edge is neither an object nor a pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("edge pair has %d elements, want 2", len(pair))
	}
	e.From, e.To = pair[0], pair[1]
	return nil
}

// TopologyPayload is the body of GET /topology.
type TopologyPayload struct {
	Nodes []TopologyNode `json:"nodes"`
	Edges []TopologyEdge `json:"edges"`
}

// CheckLinkage verifies that block indexes strictly increase and that each
// block's previous_hash matches its predecessor's hash. The monitor trusts
// node-reported chains, so this is a diagnostic for logging, never a reason
// to reject a poll.
func CheckLinkage(chain []Block) error {
	for i := 1; i < len(chain); i++ {
		if chain[i].Index <= chain[i-1].Index {
			return fmt.Errorf("block %d: index %d does not increase over %d",
				i, chain[i].Index, chain[i-1].Index)
		}
		if chain[i-1].Hash != "" && chain[i].PrevHash != chain[i-1].Hash {
			return fmt.Errorf("block %d: previous_hash %s does not match %s",
				i, chain[i].PrevHash, chain[i-1].Hash)
		}
	}
	return nil
}

// TransactionCount sums the transaction counts over all blocks of a chain.
func TransactionCount(chain []Block) int {
	total := 0
	for _, b := range chain {
		total += len(b.Transactions)
	}
	return total
}
