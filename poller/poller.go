package poller

import (
	"context"
	"time"

	"ledger-monitor/ledger"
	"ledger-monitor/logger"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logger.Logger

// Poller turns one NodeConfig into one NodeView per poll. It never returns
// an error; every failure mode is expressed as a status value.
type Poller struct {
	client *Client
	now    func() time.Time
}

// New creates a poller. now stamps LastUpdated and may be backed by an
// NTP-adjusted source; nil falls back to time.Now.
func New(client *Client, now func() time.Time) *Poller {
	if now == nil {
		now = time.Now
	}
	return &Poller{client: client, now: now}
}

// Poll fetches chain and state concurrently, plus an independently failable
// stats request, and classifies the outcome. The node is online only when
// chain and state both succeed; a deadline expiry on either classifies the
// node as timeout, any other failure as offline. No retries are attempted.
func (p *Poller) Poll(ctx context.Context, cfg NodeConfig) NodeView {
	view := NodeView{
		Name:        cfg.Name,
		URL:         cfg.URL,
		Port:        cfg.Port,
		Status:      StatusChecking,
		Balances:    map[string]float64{},
		LastUpdated: p.now(),
	}

	var (
		chainPayload ledger.ChainPayload
		statePayload ledger.StatePayload
		statsPayload ledger.StatsPayload
		chainErr     error
		stateErr     error
		statsErr     error
	)

	// A plain group, not WithContext: one call's failure must never cancel
	// its siblings.
	var group errgroup.Group
	group.Go(func() error {
		chainErr = p.client.GetJSON(ctx, cfg.URL+"/chain", ChainStateTimeout, &chainPayload)
		return nil
	})
	group.Go(func() error {
		stateErr = p.client.GetJSON(ctx, cfg.URL+"/state", ChainStateTimeout, &statePayload)
		return nil
	})
	group.Go(func() error {
		statsErr = p.client.GetJSON(ctx, cfg.URL+"/stats", AuxTimeout, &statsPayload)
		return nil
	})
	group.Wait()

	view.LastUpdated = p.now()

	if chainErr != nil || stateErr != nil {
		fetchErr := chainErr
		if fetchErr == nil {
			fetchErr = stateErr
		}

		if IsTimeout(chainErr) || IsTimeout(stateErr) {
			view.Status = StatusTimeout
		} else {
			view.Status = StatusOffline
		}
		view.Error = fetchErr.Error()

		log.WithFields(logrus.Fields{
			"node":   cfg.Name,
			"url":    cfg.URL,
			"status": view.Status,
			"error":  view.Error,
		}).Warn("Node poll failed")
		return view
	}

	view.Status = StatusOnline
	view.Chain = chainPayload.Chain
	view.ChainLength = chainPayload.Length
	if view.ChainLength == 0 {
		view.ChainLength = len(chainPayload.Chain)
	}
	if statePayload.State != nil {
		view.Balances = statePayload.State
	}

	if err := ledger.CheckLinkage(view.Chain); err != nil {
		// Diagnostic only; the monitor trusts node-reported chains.
		log.WithFields(logrus.Fields{
			"node":  cfg.Name,
			"error": err,
		}).Warn("Node reported a chain with broken linkage")
	}

	// Stats failures never fail the poll. Missing figures stay at zero
	// rather than inheriting stale or invented values.
	if statsErr != nil {
		log.WithFields(logrus.Fields{
			"node":  cfg.Name,
			"error": statsErr,
		}).Debug("Stats unavailable for node")
	} else {
		view.Stats = NodeStats{
			PeerCount:           statsPayload.NetworkInfo.ConnectedPeers,
			TotalTransactions:   statsPayload.TotalTransactions,
			PendingTransactions: statsPayload.PendingTransactions,
			LastBlockTime:       statsPayload.LastBlockTime,
			HashRate:            statsPayload.HashRate,
		}
	}

	log.WithFields(logrus.Fields{
		"node":        cfg.Name,
		"chainLength": view.ChainLength,
		"accounts":    len(view.Balances),
	}).Debug("Node poll completed")
	return view
}

// PollAll fans out one Poll per configured node and fans the results back in,
// preserving configured order. Per-node isolation is mandatory: a slow or
// failing node never blocks another node's slot in the result.
func (p *Poller) PollAll(ctx context.Context, configs []NodeConfig) []NodeView {
	views := make([]NodeView, len(configs))

	var group errgroup.Group
	for i, cfg := range configs {
		i, cfg := i, cfg
		group.Go(func() error {
			views[i] = p.Poll(ctx, cfg)
			return nil
		})
	}
	group.Wait()

	return views
}
