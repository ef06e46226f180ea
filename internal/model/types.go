// Package model holds the game's data model: players, tiles, attack
// targets, metrics, and the reducer's output GameState. Types here are
// plain data — all mutation goes through the reducer package.
package model

import "github.com/kartikbazzad/territory/internal/grid"

// TileKind classifies a tile's role in the game.
type TileKind int

const (
	Regular TileKind = iota
	Capital
	Client
)

func (k TileKind) String() string {
	switch k {
	case Capital:
		return "capital"
	case Client:
		return "client"
	default:
		return "regular"
	}
}

// InitState tracks whether a tile's process has finished starting up.
type InitState int

const (
	Initializing InitState = iota
	Ready
)

func (s InitState) String() string {
	if s == Ready {
		return "ready"
	}
	return "initializing"
}

// TargetKind tags the two AttackTarget variants.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetCoordinate
	TargetPlayer
)

// AttackTarget is a tagged union: either a grid coordinate (the dataplane
// flood destination) or a player (used only for the final-kill flood).
type AttackTarget struct {
	Kind     TargetKind  `json:"kind"`
	Coord    grid.Coord  `json:"coord,omitempty"`
	PlayerID uint64      `json:"player_id,omitempty"`
}

// CoordTarget builds a Coordinate-variant AttackTarget.
func CoordTarget(c grid.Coord) AttackTarget {
	return AttackTarget{Kind: TargetCoordinate, Coord: c}
}

// PlayerTarget builds a Player-variant AttackTarget.
func PlayerTarget(playerID uint64) AttackTarget {
	return AttackTarget{Kind: TargetPlayer, PlayerID: playerID}
}

// IsCoord reports whether t targets a grid coordinate.
func (t AttackTarget) IsCoord() bool { return t.Kind == TargetCoordinate }

// IsPlayer reports whether t targets a player (final kill).
func (t AttackTarget) IsPlayer() bool { return t.Kind == TargetPlayer }

// Player is a participant in the game.
type Player struct {
	PlayerID     uint64     `json:"player_id"`
	Name         string     `json:"name"`
	CapitalCoord grid.Coord `json:"capital_coord"`
	Alive        bool       `json:"alive"`
	JoinTime     uint64     `json:"join_time"`
	IsClient     bool       `json:"is_client"`
}

// Tile is one materialized grid cell (a live tile process).
type Tile struct {
	Coord     grid.Coord    `json:"coord"`
	OwnerID   uint64        `json:"owner_id"` // 0 = neutral
	Kind      TileKind      `json:"kind"`
	IsClient  bool          `json:"is_client"`
	Target    *AttackTarget `json:"target,omitempty"`
	InitState InitState     `json:"init_state"`
}

// NodeMetrics is the latest reported signal for one tile.
type NodeMetrics struct {
	BandwidthIn uint64  `json:"bandwidth_in"` // bytes/s
	PacketLoss  float32 `json:"packet_loss"`  // in [0,1]
	Timestamp   uint64  `json:"timestamp"`
}

// GameState is the reducer's authoritative, derived output.
type GameState struct {
	Players             map[uint64]*Player        `json:"players"`
	Nodes                map[grid.Coord]*Tile      `json:"nodes"`
	NodeMetrics          map[grid.Coord]NodeMetrics `json:"node_metrics"`
	NodeIPs              map[grid.Coord]string     `json:"node_ips"`
	ClientIPs            map[uint64]string         `json:"client_ips"`
	LastAppliedLogIndex  uint64                    `json:"last_applied_log_index"`
	GameOver             bool                      `json:"game_over"`
}

// NewGameState returns an empty GameState, the reducer's zero value.
func NewGameState() *GameState {
	return &GameState{
		Players:     make(map[uint64]*Player),
		Nodes:       make(map[grid.Coord]*Tile),
		NodeMetrics: make(map[grid.Coord]NodeMetrics),
		NodeIPs:     make(map[grid.Coord]string),
		ClientIPs:   make(map[uint64]string),
	}
}

// AlivePlayerCount returns how many players currently have Alive = true.
func (s *GameState) AlivePlayerCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Alive {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the state, used by the HTTP surface so
// readers never observe a state the reducer is concurrently mutating.
func (s *GameState) Clone() *GameState {
	out := NewGameState()
	for id, p := range s.Players {
		cp := *p
		out.Players[id] = &cp
	}
	for c, t := range s.Nodes {
		cp := *t
		if t.Target != nil {
			tgt := *t.Target
			cp.Target = &tgt
		}
		out.Nodes[c] = &cp
	}
	for c, m := range s.NodeMetrics {
		out.NodeMetrics[c] = m
	}
	for c, ip := range s.NodeIPs {
		out.NodeIPs[c] = ip
	}
	for id, ip := range s.ClientIPs {
		out.ClientIPs[id] = ip
	}
	out.LastAppliedLogIndex = s.LastAppliedLogIndex
	out.GameOver = s.GameOver
	return out
}
