// Package hub pushes simulator snapshots to WebSocket clients and relays
// their operator actions back to the simulator.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleetfusion/internal/metrics"
	"github.com/ukydev/fleetfusion/internal/models"
	"github.com/ukydev/fleetfusion/internal/simulator"
)

// Message types exchanged with clients.
const (
	TypeInitialState      = "initial_state"
	TypeStateUpdate       = "state_update"
	TypeExecuteArbitrage  = "execute_arbitrage"
	TypeDismissArbitrage  = "dismiss_arbitrage"
	TypeArbitrageExecuted = "arbitrage_executed"
	TypeArbitrageDismiss  = "arbitrage_dismissed"
	TypePing              = "ping"
	TypePong              = "pong"
	TypeError             = "error"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 32
)

// Message is the JSON envelope for every frame.
type Message struct {
	Type      string           `json:"type"`
	Data      *models.Snapshot `json:"data,omitempty"`
	TruckID   string           `json:"truckId,omitempty"`
	Accepted  *bool            `json:"accepted,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Controller is the part of the simulator the hub drives.
type Controller interface {
	Snapshot() models.Snapshot
	ExecuteFix() bool
	DismissOpportunity() bool
}

type outbound struct {
	c    *client
	data []byte
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	request *http.Request
}

// Hub tracks connected clients and fans out snapshot updates.
type Hub struct {
	simulator.NopObserver

	ctrl       Controller
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	direct     chan outbound
	done       chan struct{}

	// CanAct decides whether the connection behind r may perform action
	// (execute_arbitrage or dismiss_arbitrage). Nil allows everyone.
	CanAct func(r *http.Request, action string) bool
}

// New creates a hub bound to ctrl. Call Run before serving clients.
func New(ctrl Controller) *Hub {
	return &Hub{
		ctrl:       ctrl,
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		direct:     make(chan outbound),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			// The snapshot is taken after the client joins, so every later
			// change reaches it as a state_update.
			h.clients[c] = true
			snap := h.ctrl.Snapshot()
			initial, err := encode(Message{Type: TypeInitialState, Data: &snap})
			if err != nil {
				log.WithError(err).Error("Failed to encode initial state")
				h.drop(c)
				continue
			}
			c.send <- initial
			metrics.WebSocketClients.Set(float64(len(h.clients)))
			log.WithField("total", len(h.clients)).Info("WebSocket client connected")

		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
				log.WithField("total", len(h.clients)).Info("WebSocket client disconnected")
			}

		case out := <-h.direct:
			if h.clients[out.c] {
				select {
				case out.c.send <- out.data:
				default:
				}
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					log.Warn("WebSocket client too slow, disconnecting")
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	metrics.WebSocketClients.Set(float64(len(h.clients)))
}

// SnapshotChanged queues a state_update for every client. It never blocks.
func (h *Hub) SnapshotChanged(snap models.Snapshot) {
	h.Broadcast(Message{Type: TypeStateUpdate, Data: &snap})
}

// Broadcast queues msg for all clients, dropping it when the queue is full.
func (h *Hub) Broadcast(msg Message) {
	data, err := encode(msg)
	if err != nil {
		log.WithError(err).Error("Failed to encode WebSocket message")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.WithField("type", msg.Type).Warn("WebSocket broadcast queue full, dropping message")
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// HandleWS upgrades the request and serves the client until it disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Error("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), request: r}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in Message
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("WebSocket read failed")
			}
			return
		}
		if reply, ok := h.handle(c, in); ok {
			h.reply(c, reply)
		}
	}
}

// handle applies one client message. Executions are broadcast to everyone;
// other answers go back to the sender only.
func (h *Hub) handle(c *client, in Message) (Message, bool) {
	switch in.Type {
	case TypePing:
		return Message{Type: TypePong}, true

	case TypeExecuteArbitrage, TypeDismissArbitrage:
		if h.CanAct != nil && !h.CanAct(c.request, in.Type) {
			return Message{Type: TypeError, Error: "insufficient permissions"}, true
		}
		truckID := in.TruckID
		if truckID == "" {
			if opp := h.ctrl.Snapshot().Arbitrage; opp != nil {
				truckID = opp.TruckID
			}
		}
		if in.Type == TypeExecuteArbitrage {
			accepted := h.ctrl.ExecuteFix()
			log.WithFields(log.Fields{"truck_id": truckID, "accepted": accepted}).Info("Arbitrage execution requested")
			h.Broadcast(Message{Type: TypeArbitrageExecuted, TruckID: truckID, Accepted: &accepted})
			return Message{}, false
		}
		accepted := h.ctrl.DismissOpportunity()
		return Message{Type: TypeArbitrageDismiss, TruckID: truckID, Accepted: &accepted}, true

	default:
		return Message{Type: TypeError, Error: "unknown message type: " + in.Type}, true
	}
}

func (h *Hub) reply(c *client, msg Message) {
	data, err := encode(msg)
	if err != nil {
		log.WithError(err).Error("Failed to encode WebSocket reply")
		return
	}
	// c.send is closed by Run, so replies go through it too.
	select {
	case h.direct <- outbound{c: c, data: data}:
	case <-h.done:
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func encode(msg Message) ([]byte, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return json.Marshal(msg)
}
