package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ledger-monitor/monitor"
	"ledger-monitor/poller"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, nodes ...poller.NodeConfig) (*Server, *httptest.Server) {
	t.Helper()
	mon := monitor.New(monitor.Options{Nodes: nodes})
	s := NewServer("0", mon)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { s.hub.Close() })
	return s, ts
}

func decodeResponse(t *testing.T, resp *http.Response) APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var out APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandleHealth(t *testing.T) {
	_, ts := testServer(t, poller.NodeConfig{Name: "node-1", URL: "http://127.0.0.1:1"})

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeResponse(t, resp)
	assert.True(t, body.Success)

	data := body.Data.(map[string]interface{})
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, 1.0, data["total_nodes"])
	assert.Equal(t, true, data["auto_refresh"])
}

func TestHandleSnapshot_InitialState(t *testing.T) {
	_, ts := testServer(t, poller.NodeConfig{Name: "node-1", URL: "http://127.0.0.1:1"})

	resp, err := http.Get(ts.URL + "/api/snapshot")
	require.NoError(t, err)
	body := decodeResponse(t, resp)
	require.True(t, body.Success)

	data := body.Data.(map[string]interface{})
	assert.Equal(t, -1.0, data["best_index"])
	nodes := data["nodes"].([]interface{})
	require.Len(t, nodes, 1)
	assert.Equal(t, "checking", nodes[0].(map[string]interface{})["status"])
}

func TestHandleNodes(t *testing.T) {
	_, ts := testServer(t,
		poller.NodeConfig{Name: "node-1", URL: "http://127.0.0.1:1"},
		poller.NodeConfig{Name: "node-2", URL: "http://127.0.0.1:2"},
	)

	resp, err := http.Get(ts.URL + "/api/nodes")
	require.NoError(t, err)
	body := decodeResponse(t, resp)
	require.True(t, body.Success)
	assert.Equal(t, "2 configured nodes", body.Message)

	data := body.Data.(map[string]interface{})
	assert.Equal(t, 2.0, data["node_count"])
}

func TestHandleAutoRefresh(t *testing.T) {
	s, ts := testServer(t)

	resp, err := http.Post(ts.URL+"/api/auto-refresh", "application/json",
		strings.NewReader(`{"enabled": false}`))
	require.NoError(t, err)
	body := decodeResponse(t, resp)
	assert.True(t, body.Success)
	assert.False(t, s.monitor.AutoRefresh())
}

func TestHandleAutoRefresh_BadBody(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Post(ts.URL+"/api/auto-refresh", "application/json",
		strings.NewReader("{not json"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeResponse(t, resp)
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.Error)
}

func TestHandleSubmitTransaction_Validation(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Post(ts.URL+"/api/transactions", "application/json",
		strings.NewReader(`{"sender": "alice"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeResponse(t, resp)
	assert.Contains(t, body.Error, "recipient")
}

func TestHandleMine_UnknownNode(t *testing.T) {
	_, ts := testServer(t, poller.NodeConfig{Name: "node-1", URL: "http://127.0.0.1:1"})

	resp, err := http.Post(ts.URL+"/api/mine", "application/json",
		strings.NewReader(`{"node": "nope"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	body := decodeResponse(t, resp)
	assert.Contains(t, body.Error, "unknown node")
}

func TestHandleRegisterPeers_EmptyList(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Post(ts.URL+"/api/peers/register", "application/json",
		strings.NewReader(`{"node": "node-1", "peers": []}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	_, ts := testServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/snapshot", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Post(ts.URL+"/api/snapshot", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebsocket_ReceivesBroadcastSnapshots(t *testing.T) {
	s, ts := testServer(t, poller.NodeConfig{Name: "node-1", URL: "http://127.0.0.1:1"})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Broadcast directly: the hub is wired to the monitor's subscriber list,
	// and this is the same path a completed cycle takes.
	s.hub.Broadcast(s.monitor.Snapshot())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "snapshot", msg.Type)
	require.Len(t, msg.Data.Nodes, 1)
	assert.Equal(t, "node-1", msg.Data.Nodes[0].Name)
}

func TestHub_CloseRejectsNewClients(t *testing.T) {
	s, ts := testServer(t)
	s.hub.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		// The upgrade may still complete; the server closes immediately after.
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, readErr := conn.ReadMessage()
		assert.Error(t, readErr, "A closed hub should disconnect the client")
		conn.Close()
	}
}
