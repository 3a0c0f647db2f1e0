// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jaycherian/go-media-narrator/internal/core/model"
)

// historyLimit bounds the events kept per run for late subscribers.
const historyLimit = 64

// Hub fans run events out to websocket subscribers. It implements
// workflow.EventSink. Events of a run are kept until the hub forgets the run,
// so a client connecting after the run started still sees every stage.
type Hub struct {
	mu      sync.Mutex
	history map[string][]model.RunEvent
	subs    map[string]map[chan model.RunEvent]struct{}
	order   []string
	maxRuns int
}

func NewHub(maxRuns int) *Hub {
	if maxRuns < 1 {
		maxRuns = 100
	}
	return &Hub{
		history: make(map[string][]model.RunEvent),
		subs:    make(map[string]map[chan model.RunEvent]struct{}),
		maxRuns: maxRuns,
	}
}

// Publish records the event and hands it to every subscriber of the run.
// A subscriber that cannot keep up misses events instead of blocking the run.
func (h *Hub) Publish(event model.RunEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.history[event.RunID]; !ok {
		h.order = append(h.order, event.RunID)
		if len(h.order) > h.maxRuns {
			oldest := h.order[0]
			h.order = h.order[1:]
			delete(h.history, oldest)
		}
	}
	events := append(h.history[event.RunID], event)
	if len(events) > historyLimit {
		events = events[len(events)-historyLimit:]
	}
	h.history[event.RunID] = events

	for ch := range h.subs[event.RunID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns the events published so far and a channel for the next
// ones. cancel must be called once the caller stops reading.
func (h *Hub) Subscribe(runID string) (past []model.RunEvent, next <-chan model.RunEvent, cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	past = append([]model.RunEvent(nil), h.history[runID]...)
	ch := make(chan model.RunEvent, historyLimit)
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[chan model.RunEvent]struct{})
	}
	h.subs[runID][ch] = struct{}{}

	cancel = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[runID], ch)
		if len(h.subs[runID]) == 0 {
			delete(h.subs, runID)
		}
	}
	return past, ch, cancel
}

func terminal(event model.RunEvent) bool {
	return event.Status != model.RunRunning
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamEvents upgrades the request and writes the run's events as JSON
// messages until the run ends or the client goes away.
func (s *Server) streamEvents(c *gin.Context) {
	runID := c.Param("id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "run_id", runID, "error", err)
		return
	}
	defer conn.Close()

	past, next, cancel := s.Events.Subscribe(runID)
	defer cancel()

	for _, event := range past {
		if err := conn.WriteJSON(event); err != nil {
			return
		}
		if terminal(event) {
			closeNormally(conn)
			return
		}
	}

	// the read side only detects a closed client
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		case event := <-next:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
			if terminal(event) {
				closeNormally(conn)
				return
			}
		}
	}
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
