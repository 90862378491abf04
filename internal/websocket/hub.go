package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"media-reaper/internal/deletion"
	"media-reaper/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The bridge client is not a browser page.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StrategyEvent is one strategy attempt inside a DeletionEvent
type StrategyEvent struct {
	Strategy   string  `json:"strategy"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
	DurationMs float64 `json:"duration_ms"`
}

// DeletionEvent is broadcast to every client once a request finishes
type DeletionEvent struct {
	Type       string          `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	Path       string          `json:"path"`
	Deleted    bool            `json:"deleted"`
	Strategy   string          `json:"strategy,omitempty"`
	Attempts   []StrategyEvent `json:"attempts"`
	DurationMs float64         `json:"duration_ms"`
}

// NewDeletionEvent converts a deletion result into its wire form
func NewDeletionEvent(r deletion.Result) DeletionEvent {
	attempts := make([]StrategyEvent, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		se := StrategyEvent{
			Strategy:   o.Strategy,
			Status:     o.Status(),
			DurationMs: float64(o.Duration.Microseconds()) / 1000,
		}
		if o.Err != nil {
			se.Error = o.Err.Error()
		}
		attempts = append(attempts, se)
	}
	return DeletionEvent{
		Type:       "deletion",
		Timestamp:  r.StartedAt,
		Path:       r.Path,
		Deleted:    r.Deleted,
		Strategy:   r.Strategy,
		Attempts:   attempts,
		DurationMs: float64(r.Duration.Microseconds()) / 1000,
	}
}

// Client represents a WebSocket client connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains active WebSocket connections and fans events out to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	log        *logrus.Entry
}

// NewHub creates a new WebSocket hub
func NewHub(log *logrus.Entry) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run serves the hub until ctx is cancelled, then closes every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.setClientGauge()
			h.log.WithField("clients", len(h.clients)).Debug("event client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.setClientGauge()
				h.log.WithField("clients", len(h.clients)).Debug("event client disconnected")
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client; drop it rather than block the hub.
					close(client.send)
					delete(h.clients, client)
					h.setClientGauge()
				}
			}

		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.setClientGauge()
			return
		}
	}
}

func (h *Hub) setClientGauge() {
	if metrics.WebSocketClients != nil {
		metrics.WebSocketClients.Set(float64(len(h.clients)))
	}
}

// ObserveDeletion queues an event for every connected client. It never
// blocks the deletion request: when the queue is full the event is dropped.
func (h *Hub) ObserveDeletion(r deletion.Result) {
	data, err := json.Marshal(NewDeletionEvent(r))
	if err != nil {
		h.log.WithError(err).Error("failed to encode deletion event")
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		h.log.WithField("path", r.Path).Warn("event queue full, dropping deletion event")
	}
}

// HandleEvents upgrades the request and streams deletion events to it
func HandleEvents(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.WithError(err).Warn("websocket upgrade failed")
			return
		}

		client := &Client{
			hub:  hub,
			conn: conn,
			send: make(chan []byte, sendBuffer),
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

// readPump drains the connection so pongs and close frames are processed
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Debug("websocket read error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
