package mempool

import (
	"context"
	"fmt"
	"time"

	"ledger-monitor/events"
	"ledger-monitor/ledger"
	"ledger-monitor/logger"
	"ledger-monitor/poller"

	"github.com/sirupsen/logrus"
)

var log = logger.Logger

// Snapshot is the pending-transaction pool as reported by the current best
// node, keyed by transaction identity.
type Snapshot struct {
	Transactions map[string]ledger.Transaction `json:"transactions"`
}

// Empty returns a snapshot with no pending transactions.
func Empty() Snapshot {
	return Snapshot{Transactions: map[string]ledger.Transaction{}}
}

// Watcher fetches the best node's mempool each cycle and diffs it against
// the previous cycle's snapshot. Mempool visibility is strictly best effort;
// a node without the endpoint simply yields an empty pool.
type Watcher struct {
	client *poller.Client
	prev   map[string]ledger.Transaction
}

// NewWatcher creates a watcher with an empty previous snapshot.
func NewWatcher(client *poller.Client) *Watcher {
	return &Watcher{
		client: client,
		prev:   map[string]ledger.Transaction{},
	}
}

// Refresh fetches the pool from bestURL and returns the new snapshot plus
// the diff events: one info event per arrival, one success event per removal
// (a removed pending transaction is interpreted as mined). On fetch failure
// the snapshot is empty and no removal events are emitted, since a failed
// fetch is not evidence of mining. The stored previous snapshot is updated
// exactly once per call, regardless of outcome.
func (w *Watcher) Refresh(ctx context.Context, bestURL string, now time.Time) (Snapshot, []events.Event) {
	var payload ledger.MempoolPayload
	err := w.client.GetJSON(ctx, bestURL+"/mempool", poller.AuxTimeout, &payload)
	if err != nil {
		log.WithFields(logrus.Fields{
			"url":   bestURL,
			"error": err,
		}).Debug("Mempool unavailable, snapshot cleared")
		w.prev = map[string]ledger.Transaction{}
		return Empty(), nil
	}

	current := make(map[string]ledger.Transaction, len(payload.Txs))
	for _, tx := range payload.Txs {
		current[tx.Key()] = tx
	}

	var emitted []events.Event
	for key, tx := range current {
		if _, seen := w.prev[key]; !seen {
			emitted = append(emitted, events.New(now, events.TypeTx, events.SeverityInfo,
				fmt.Sprintf("Transaction %s -> %s (%.2f) pending", tx.Sender, tx.Recipient, tx.Amount),
				map[string]interface{}{
					"key":       key,
					"sender":    tx.Sender,
					"recipient": tx.Recipient,
					"amount":    tx.Amount,
				}))
		}
	}
	for key, tx := range w.prev {
		if _, still := current[key]; !still {
			emitted = append(emitted, events.New(now, events.TypeTx, events.SeveritySuccess,
				fmt.Sprintf("Transaction %s -> %s (%.2f) mined", tx.Sender, tx.Recipient, tx.Amount),
				map[string]interface{}{
					"key":       key,
					"sender":    tx.Sender,
					"recipient": tx.Recipient,
					"amount":    tx.Amount,
				}))
		}
	}

	if len(emitted) > 0 {
		log.WithFields(logrus.Fields{
			"pending": len(current),
			"events":  len(emitted),
		}).Info("Mempool changed")
	}

	w.prev = current
	return Snapshot{Transactions: current}, emitted
}
