package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kartikbazzad/territory/pkg/eventbus"
	"github.com/kartikbazzad/territory/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsPush is the periodic summary pushed to /ws subscribers, per spec.md §4.6.
type wsPush struct {
	LogIndex           uint64 `json:"log_index"`
	EventCount         int    `json:"counts"`
	LatestEventSummary string `json:"latest_event_summary"`
}

const wsPushInterval = 500 * time.Millisecond

// handleWebSocket upgrades to a websocket connection and pushes wsPush
// summaries every 500ms whenever the underlying state has changed.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Get().Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	changed := make(chan struct{}, 1)
	sub := eventbus.SubscriberFunc(func(*eventbus.Message) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	s.bus.Subscribe("game_event", sub)
	defer s.bus.Unsubscribe("game_event", sub)

	ticker := time.NewTicker(wsPushInterval)
	defer ticker.Stop()

	var lastIndex uint64
	for {
		select {
		case <-ticker.C:
			state := s.state()
			if state.LastAppliedLogIndex == lastIndex {
				continue
			}
			lastIndex = state.LastAppliedLogIndex
			push := wsPush{
				LogIndex:           state.LastAppliedLogIndex,
				EventCount:         len(state.Nodes) + len(state.Players),
				LatestEventSummary: "state updated",
			}
			data, err := json.Marshal(push)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-changed:
			continue // let the next tick pick up the state; avoids a write race with the ticker branch
		}
	}
}
