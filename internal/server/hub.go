package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"

	"loom/internal/event"
	"loom/internal/logging"
)

// historyLimit bounds the per-run event history retained for replay to late
// websocket subscribers.
const historyLimit = 1024

// historyRuns bounds how many runs keep replayable history at once; the
// least recently active run is evicted first, so a long-lived server does
// not accumulate history for every run it ever served.
const historyRuns = 128

// Hub fans lifecycle events out to websocket clients per run. It subscribes
// to the bus once; the bus's ordering contract carries through to each
// client, and a client connecting mid-run first receives the run's retained
// history in order.
type Hub struct {
	mu      sync.Mutex
	history *lru.Cache[string, []event.Event]
	clients map[string][]chan event.Event
	logger  logging.Logger
}

// NewHub creates a hub and attaches it to the bus.
func NewHub(bus *event.Bus, logger logging.Logger) *Hub {
	history, _ := lru.New[string, []event.Event](historyRuns)
	h := &Hub{
		history: history,
		clients: make(map[string][]chan event.Event),
		logger:  logging.OrNop(logger),
	}
	bus.SubscribeAll(h.handle)
	return h
}

func (h *Hub) handle(ev event.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	history, _ := h.history.Get(ev.RunID)
	history = append(history, ev)
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	h.history.Add(ev.RunID, history)

	for _, ch := range h.clients[ev.RunID] {
		select {
		case ch <- ev:
		default:
			// A stalled client loses events rather than stalling the bus.
		}
	}
}

// attach registers a client channel and returns the run's history so far.
func (h *Hub) attach(runID string) ([]event.Event, chan event.Event) {
	ch := make(chan event.Event, 256)
	h.mu.Lock()
	defer h.mu.Unlock()
	retained, _ := h.history.Get(runID)
	history := append([]event.Event(nil), retained...)
	h.clients[runID] = append(h.clients[runID], ch)
	return history, ch
}

func (h *Hub) detach(runID string, ch chan event.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.clients[runID]
	for i, c := range clients {
		if c == ch {
			clients = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(clients) == 0 {
		delete(h.clients, runID)
		return
	}
	h.clients[runID] = clients
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// streamEvents upgrades to a websocket and streams the run's events: retained
// history first, then live events, all in publish order.
func (s *Server) streamEvents(c *gin.Context) {
	if s.hub == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "event streaming is not enabled"})
		return
	}
	runID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed for run %s: %v", runID, err)
		return
	}
	defer conn.Close()

	history, live := s.hub.attach(runID)
	defer s.hub.detach(runID, live)

	for _, ev := range history {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}

	// Reads only matter for detecting the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-live:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
