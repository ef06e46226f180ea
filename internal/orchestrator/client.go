// Package orchestrator implements the narrow contract between a tile and
// the orchestrator process: register/lookup peers, and ask for tiles to be
// spawned or killed. The spawning mechanics themselves (containers,
// subnets, security groups) are explicitly out of scope (spec.md §1); this
// package carries only the five-endpoint HTTP contract.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kartikbazzad/territory/internal/grid"
)

// Client is an HTTP client for the orchestrator's five endpoints. GameID and
// NodeID are bound once at construction so Client can satisfy both
// httpapi.OrchestratorClient (which passes game_id explicitly per call) and
// evaluator.Orchestrator (whose KillAll/KillSelf carry no arguments).
type Client struct {
	baseURL string
	gameID  string
	nodeID  string
	http    *http.Client
}

// NewClient builds a Client pointed at the orchestrator's MASTER_URL, bound
// to the calling tile's game and node ID.
func NewClient(baseURL, gameID, nodeID string) *Client {
	return &Client{
		baseURL: baseURL,
		gameID:  gameID,
		nodeID:  nodeID,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// RegisterWorkerRequest is the body of POST /register_worker.
type RegisterWorkerRequest struct {
	GameID   string     `json:"game_id"`
	NodeID   string     `json:"node_id"`
	Coord    grid.Coord `json:"coord"`
	RaftAddr string     `json:"raft_addr"`
	DataAddr string     `json:"data_addr"`
	IsClient bool       `json:"is_client"`
}

// RegisterWorker announces this tile to the orchestrator's peer directory.
func (c *Client) RegisterWorker(ctx context.Context, req RegisterWorkerRequest) error {
	return c.post(ctx, "/register_worker", req, nil)
}

// PeerInfo is one entry in the /get_peer response.
type PeerInfo struct {
	NodeID   string     `json:"node_id"`
	Coord    grid.Coord `json:"coord"`
	RaftAddr string     `json:"raft_addr"`
	DataAddr string     `json:"data_addr"`
	IsClient bool       `json:"is_client"`
}

// GetPeers returns the current peer directory for gameID.
func (c *Client) GetPeers(ctx context.Context, gameID string) ([]PeerInfo, error) {
	var peers []PeerInfo
	url := fmt.Sprintf("%s/get_peer?game_id=%s", c.baseURL, gameID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: get_peer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("orchestrator: get_peer: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&peers); err != nil {
		return nil, fmt.Errorf("orchestrator: decode get_peer response: %w", err)
	}
	return peers, nil
}

// SpawnSingleNode asks the orchestrator to spawn one new tile process at
// coord, owned by ownerID (0 = neutral).
func (c *Client) SpawnSingleNode(ctx context.Context, gameID string, coord grid.Coord, ownerID uint64) error {
	return c.post(ctx, "/spawn_single_node", map[string]any{
		"game_id":  gameID,
		"coord":    coord,
		"owner_id": ownerID,
	}, nil)
}

// KillAll asks the orchestrator to terminate every tile in this Client's
// game, once game_over fires (spec.md §4.7).
func (c *Client) KillAll(ctx context.Context) error {
	return c.post(ctx, "/kill_workers", map[string]any{"game_id": c.gameID}, nil)
}

// KillSelf asks the orchestrator to terminate the caller's own process.
func (c *Client) KillSelf(ctx context.Context) error {
	return c.post(ctx, "/kill", map[string]any{"node_id": c.nodeID}, nil)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("orchestrator: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("orchestrator: %s: status %d: %s", path, resp.StatusCode, body)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
