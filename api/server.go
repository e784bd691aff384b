package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ledger-monitor/logger"
	"ledger-monitor/monitor"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

var log = logger.Logger

// Server exposes the monitor over HTTP: read endpoints for the published
// snapshot, write endpoints proxying node mutations, and a websocket feed.
type Server struct {
	port       string
	monitor    *monitor.Monitor
	hub        *Hub
	httpServer *http.Server
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// NewServer creates a new API server over the given monitor.
func NewServer(port string, mon *monitor.Monitor) *Server {
	log.WithField("port", port).Info("Creating ledger monitor API server")

	s := &Server{
		port:    port,
		monitor: mon,
		hub:     NewHub(),
	}

	// Every published cycle goes out on the websocket feed.
	mon.OnSnapshot(s.hub.Broadcast)

	return s
}

// Router builds the route table. Split out so tests can drive handlers
// without a listener.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleHome).Methods(http.MethodGet)
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/nodes", s.handleNodes).Methods(http.MethodGet)
	r.HandleFunc("/api/balances", s.handleBalances).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/mempool", s.handleMempool).Methods(http.MethodGet)
	r.HandleFunc("/api/topology", s.handleTopology).Methods(http.MethodGet)
	r.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/logs", s.handleLogs).Methods(http.MethodGet)
	r.HandleFunc("/api/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/auto-refresh", s.handleAutoRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/mine", s.handleMine).Methods(http.MethodPost)
	r.HandleFunc("/api/transactions", s.handleSubmitTransaction).Methods(http.MethodPost)
	r.HandleFunc("/api/sync", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/api/peers/register", s.handleRegisterPeers).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.hub.HandleWS)

	return s.corsMiddleware(s.loggingMiddleware(r))
}

// Start starts the API server and blocks until it stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Router(),
	}

	log.WithField("address", s.httpServer.Addr).Info("Monitor API server started")
	return s.httpServer.ListenAndServe()
}

// Stop stops the API server and closes websocket clients.
func (s *Server) Stop() error {
	log.Info("Stopping monitor API server")
	s.hub.Close()
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// Middleware for CORS
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Middleware for logging
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)

		log.WithFields(logrus.Fields{
			"method":   r.Method,
			"url":      r.URL.Path,
			"duration": duration.String(),
			"remote":   r.RemoteAddr,
		}).Debug("API request processed")
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, APIResponse{Success: false, Error: message})
}

// writeSuccess writes a success response
func (s *Server) writeSuccess(w http.ResponseWriter, data interface{}, message string) {
	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data, Message: message})
}

// handleHome serves the API home page
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	homeData := map[string]interface{}{
		"service":     "Ledger Monitor API",
		"version":     "1.0.0",
		"description": "REST API for monitoring a cluster of ledger nodes",
		"endpoints": map[string]string{
			"GET /api/health":          "Health check",
			"GET /api/snapshot":        "Full current cycle snapshot",
			"GET /api/nodes":           "Per-node views",
			"GET /api/balances":        "Merged global balances",
			"GET /api/stats":           "Aggregate network statistics",
			"GET /api/mempool":         "Best node pending transactions",
			"GET /api/topology":        "Peer topology with radial layout",
			"GET /api/events":          "Observed state transitions",
			"GET /api/logs":            "Monitor log records",
			"POST /api/refresh":        "Run one refresh cycle now",
			"POST /api/auto-refresh":   "Toggle scheduled refresh",
			"POST /api/mine":           "Trigger mining on a node",
			"POST /api/transactions":   "Submit a transaction",
			"POST /api/sync":           "Trigger chain sync on a node",
			"POST /api/peers/register": "Register peer URLs on a node",
			"GET /ws":                  "Websocket snapshot feed",
		},
		"timestamp": time.Now(),
	}

	s.writeSuccess(w, homeData, "Ledger Monitor API is running")
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.Snapshot()
	healthData := map[string]interface{}{
		"status":       "healthy",
		"timestamp":    time.Now(),
		"online_nodes": snap.Stats.OnlineNodes,
		"total_nodes":  snap.Stats.TotalNodes,
		"auto_refresh": s.monitor.AutoRefresh(),
	}

	s.writeSuccess(w, healthData, "Monitor API server is healthy")
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeSuccess(w, s.monitor.Snapshot(), "Current cycle snapshot")
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.Snapshot()
	responseData := map[string]interface{}{
		"nodes":      snap.Nodes,
		"best_node":  snap.BestNode,
		"node_count": len(snap.Nodes),
		"timestamp":  snap.Timestamp,
	}
	s.writeSuccess(w, responseData, fmt.Sprintf("%d configured nodes", len(snap.Nodes)))
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.Snapshot()
	responseData := map[string]interface{}{
		"balances":  snap.Balances,
		"accounts":  len(snap.Balances),
		"timestamp": snap.Timestamp,
	}
	s.writeSuccess(w, responseData, fmt.Sprintf("%d accounts in merged state", len(snap.Balances)))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.Snapshot()
	s.writeSuccess(w, snap.Stats, "Aggregate network statistics")
}

func (s *Server) handleMempool(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.Snapshot()
	responseData := map[string]interface{}{
		"mempool":   snap.Mempool,
		"pending":   len(snap.Mempool.Transactions),
		"best_node": snap.BestNode,
		"timestamp": snap.Timestamp,
	}
	s.writeSuccess(w, responseData, fmt.Sprintf("%d pending transactions", len(snap.Mempool.Transactions)))
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.Snapshot()
	s.writeSuccess(w, snap.Topology, fmt.Sprintf("Topology (%s)", snap.Topology.Source))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	evts := s.monitor.Events()
	responseData := map[string]interface{}{
		"events":    evts,
		"count":     len(evts),
		"timestamp": time.Now(),
	}
	s.writeSuccess(w, responseData, fmt.Sprintf("%d events", len(evts)))
}

// handleLogs serves monitor log records from the SQLite log store.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit, must be a positive integer")
			return
		}
		limit = parsed
	}

	var (
		records []logger.LogEntry
		err     error
	)
	if search := r.URL.Query().Get("search"); search != "" {
		records, err = logger.SearchLogs(search, limit)
	} else {
		records, err = logger.QueryLogs(r.URL.Query().Get("level"), nil, nil, limit)
	}
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	responseData := map[string]interface{}{
		"logs":  records,
		"count": len(records),
	}
	s.writeSuccess(w, responseData, fmt.Sprintf("%d log records", len(records)))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	log.WithField("remoteAddr", r.RemoteAddr).Info("Manual refresh triggered via API")
	snap := s.monitor.Refresh(r.Context())
	s.writeSuccess(w, snap, "Refresh cycle completed")
}

func (s *Server) handleAutoRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.monitor.SetAutoRefresh(body.Enabled)
	s.writeSuccess(w, map[string]interface{}{"enabled": body.Enabled}, "Auto refresh updated")
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Node string `json:"node"`
	}
	// Body is optional; an empty body targets the best node.
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := s.monitor.Mine(r.Context(), body.Node); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeSuccess(w, nil, "Mining triggered")
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Node      string  `json:"node"`
		Sender    string  `json:"sender"`
		Recipient string  `json:"recipient"`
		Amount    float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Sender == "" || body.Recipient == "" {
		s.writeError(w, http.StatusBadRequest, "sender and recipient are required")
		return
	}

	if err := s.monitor.SubmitTransaction(r.Context(), body.Node, body.Sender, body.Recipient, body.Amount); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeSuccess(w, nil, "Transaction submitted")
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Node string `json:"node"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	ok := s.monitor.TriggerSync(r.Context(), body.Node)
	s.writeSuccess(w, map[string]interface{}{"synced": ok}, "Sync attempt completed")
}

func (s *Server) handleRegisterPeers(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Node  string   `json:"node"`
		Peers []string `json:"peers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(body.Peers) == 0 {
		s.writeError(w, http.StatusBadRequest, "peers list is required")
		return
	}

	if err := s.monitor.RegisterPeers(r.Context(), body.Node, body.Peers); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeSuccess(w, map[string]interface{}{"peers": len(body.Peers)}, "Peers registered")
}
