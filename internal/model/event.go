package model

import (
	"encoding/json"
	"fmt"

	"github.com/kartikbazzad/territory/internal/grid"
)

// EventType tags which of the six GameEvent variants a payload carries.
type EventType string

const (
	EventPlayerJoin                EventType = "player_join"
	EventNodeInitializationStarted EventType = "node_initialization_started"
	EventNodeInitializationComplete EventType = "node_initialization_complete"
	EventSetNodeTarget             EventType = "set_node_target"
	EventNodeMetricsReport         EventType = "node_metrics_report"
	EventNodeCaptured              EventType = "node_captured"
)

// GameEvent is the log's payload: a tagged union over the six event kinds.
// Exactly one of the embedded fields is meaningful, selected by Type.
type GameEvent struct {
	Type EventType `json:"type"`
	Ts   uint64    `json:"ts"`

	PlayerJoin                *PlayerJoin                `json:"player_join,omitempty"`
	NodeInitializationStarted *NodeInitializationStarted `json:"node_initialization_started,omitempty"`
	NodeInitializationComplete *NodeInitializationComplete `json:"node_initialization_complete,omitempty"`
	SetNodeTarget              *SetNodeTarget              `json:"set_node_target,omitempty"`
	NodeMetricsReport          *NodeMetricsReport          `json:"node_metrics_report,omitempty"`
	NodeCaptured               *NodeCaptured               `json:"node_captured,omitempty"`
}

// PlayerJoin is emitted once per player, when they first join the game.
type PlayerJoin struct {
	PlayerID     uint64     `json:"player_id"`
	Name         string     `json:"name"`
	CapitalCoord grid.Coord `json:"capital_coord"`
	NodeIP       string     `json:"node_ip"`
	IsClient     bool       `json:"is_client"`
}

// NodeInitializationStarted creates a neutral or owned Regular tile.
// Idempotent: a second event for an already-present coord is a no-op.
type NodeInitializationStarted struct {
	Coord   grid.Coord `json:"coord"`
	OwnerID uint64     `json:"owner_id"` // 0 = neutral
}

// NodeInitializationComplete marks a tile Ready and records its dataplane IP.
type NodeInitializationComplete struct {
	Coord  grid.Coord `json:"coord"`
	NodeIP string     `json:"node_ip"`
}

// SetNodeTarget overwrites a tile's attack target.
type SetNodeTarget struct {
	Coord  grid.Coord   `json:"coord"`
	Target AttackTarget `json:"target"`
}

// NodeMetricsReport replaces the latest metrics sample for a coord.
type NodeMetricsReport struct {
	Coord       grid.Coord `json:"coord"`
	BandwidthIn uint64     `json:"bandwidth_in"`
	PacketLoss  float32    `json:"packet_loss"`
}

// NodeCaptured transfers ownership of a tile, proposed only by the leader.
type NodeCaptured struct {
	Coord       grid.Coord `json:"coord"`
	NewOwnerID  uint64     `json:"new_owner_id"`
}

func newEvent(typ EventType, ts uint64) GameEvent {
	return GameEvent{Type: typ, Ts: ts}
}

// NewPlayerJoin builds a PlayerJoin event.
func NewPlayerJoin(ts uint64, e PlayerJoin) GameEvent {
	ev := newEvent(EventPlayerJoin, ts)
	ev.PlayerJoin = &e
	return ev
}

// NewNodeInitializationStarted builds a NodeInitializationStarted event.
func NewNodeInitializationStarted(ts uint64, e NodeInitializationStarted) GameEvent {
	ev := newEvent(EventNodeInitializationStarted, ts)
	ev.NodeInitializationStarted = &e
	return ev
}

// NewNodeInitializationComplete builds a NodeInitializationComplete event.
func NewNodeInitializationComplete(ts uint64, e NodeInitializationComplete) GameEvent {
	ev := newEvent(EventNodeInitializationComplete, ts)
	ev.NodeInitializationComplete = &e
	return ev
}

// NewSetNodeTarget builds a SetNodeTarget event.
func NewSetNodeTarget(ts uint64, e SetNodeTarget) GameEvent {
	ev := newEvent(EventSetNodeTarget, ts)
	ev.SetNodeTarget = &e
	return ev
}

// NewNodeMetricsReport builds a NodeMetricsReport event.
func NewNodeMetricsReport(ts uint64, e NodeMetricsReport) GameEvent {
	ev := newEvent(EventNodeMetricsReport, ts)
	ev.NodeMetricsReport = &e
	return ev
}

// NewNodeCaptured builds a NodeCaptured event.
func NewNodeCaptured(ts uint64, e NodeCaptured) GameEvent {
	ev := newEvent(EventNodeCaptured, ts)
	ev.NodeCaptured = &e
	return ev
}

// Encode serializes the event for the Raft log entry's payload bytes.
func Encode(ev GameEvent) ([]byte, error) {
	return json.Marshal(ev)
}

// Decode parses an event from a log entry's payload bytes. Empty bytes
// decode to a blank/membership event (Type == "").
func Decode(data []byte) (GameEvent, error) {
	if len(data) == 0 {
		return GameEvent{}, nil
	}
	var ev GameEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return GameEvent{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// IsBlank reports whether ev is a blank/membership entry (empty payload).
func (ev GameEvent) IsBlank() bool { return ev.Type == "" }
