package topology

import (
	"context"
	"math"

	"ledger-monitor/ledger"
	"ledger-monitor/logger"
	"ledger-monitor/poller"

	"github.com/sirupsen/logrus"
)

var log = logger.Logger

// Graph sources: reported comes from a node's /topology endpoint, derived is
// the synthesized star fallback.
const (
	SourceReported = "reported"
	SourceDerived  = "derived"
)

// LayoutMargin keeps the layout circle off the canvas edge.
const LayoutMargin = 40.0

// Node is one vertex of the operator-facing peer graph. Positions are absent
// until Layout places the graph.
type Node struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Status     string  `json:"status"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Positioned bool    `json:"positioned"`
}

// Edge is one link between two graph nodes.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the peer topology for one cycle.
type Graph struct {
	Nodes  []Node `json:"nodes"`
	Edges  []Edge `json:"edges"`
	Source string `json:"source"`
}

// Resolver fetches the best node's peer graph, falling back to a derived
// star when the endpoint is missing or its payload malformed.
type Resolver struct {
	client *poller.Client
}

// NewResolver creates a topology resolver.
func NewResolver(client *poller.Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve returns the cycle's topology. A reported graph requires a
// well-formed payload with a non-empty node list; anything less degrades to
// the derived fallback without affecting node status.
func (r *Resolver) Resolve(ctx context.Context, bestURL string, views []poller.NodeView) Graph {
	var payload ledger.TopologyPayload
	err := r.client.GetJSON(ctx, bestURL+"/topology", poller.AuxTimeout, &payload)
	if err == nil && len(payload.Nodes) > 0 {
		graph := Graph{Source: SourceReported}
		for _, n := range payload.Nodes {
			label := n.Label
			if label == "" {
				label = n.ID
			}
			graph.Nodes = append(graph.Nodes, Node{ID: n.ID, Label: label, Status: n.Status})
		}
		for _, e := range payload.Edges {
			graph.Edges = append(graph.Edges, Edge{From: e.From, To: e.To})
		}
		log.WithFields(logrus.Fields{
			"nodes": len(graph.Nodes),
			"edges": len(graph.Edges),
		}).Debug("Using reported topology")
		return graph
	}

	if err != nil {
		log.WithFields(logrus.Fields{
			"url":   bestURL,
			"error": err,
		}).Debug("Topology unavailable, deriving star fallback")
	} else {
		log.WithField("url", bestURL).Debug("Topology payload had no nodes, deriving star fallback")
	}
	return Derive(views)
}

// Derive synthesizes a star graph from the currently online nodes: the first
// online node acts as hub with one edge to every other online node.
func Derive(views []poller.NodeView) Graph {
	graph := Graph{Source: SourceDerived}

	hub := ""
	for _, view := range views {
		if !view.Online() {
			continue
		}
		graph.Nodes = append(graph.Nodes, Node{
			ID:     view.Name,
			Label:  view.Name,
			Status: view.Status,
		})
		if hub == "" {
			hub = view.Name
		} else {
			graph.Edges = append(graph.Edges, Edge{From: hub, To: view.Name})
		}
	}
	return graph
}

// Layout places the graph's nodes on a circle of radius
// min(width, height)/2 - LayoutMargin centered in the canvas, the i-th node
// at angle 2*pi*i/N. Stateless on purpose: membership changes between cycles,
// so positions are recomputed every time and never cached.
func Layout(graph Graph, width, height float64) Graph {
	n := len(graph.Nodes)
	if n == 0 {
		return graph
	}

	radius := math.Min(width, height)/2 - LayoutMargin
	centerX := width / 2
	centerY := height / 2

	placed := make([]Node, n)
	for i, node := range graph.Nodes {
		angle := 2 * math.Pi * float64(i) / float64(n)
		node.X = centerX + radius*math.Cos(angle)
		node.Y = centerY + radius*math.Sin(angle)
		node.Positioned = true
		placed[i] = node
	}

	out := graph
	out.Nodes = placed
	return out
}
