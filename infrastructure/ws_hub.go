package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"jackpotd/domain/events"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const wsWriteTimeout = 5 * time.Second

// PoolMeterHub streams live jackpot meter updates to websocket clients.
// Every connected client sees every pool change; there is no per-tier
// subscription.
type PoolMeterHub struct {
	upgrader websocket.Upgrader

	mu            sync.Mutex
	conns         map[*websocket.Conn]struct{}
	subscriptions []*events.Subscription
}

// NewPoolMeterHub creates a hub with a custom origin policy
func NewPoolMeterHub(allowOrigin func(r *http.Request) bool) *PoolMeterHub {
	return &PoolMeterHub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

// Start subscribes the hub to pool events on the bus
func (h *PoolMeterHub) Start(bus *events.Bus) {
	h.subscriptions = append(h.subscriptions,
		bus.Subscribe(events.EventTypePoolUpdated, func(ctx context.Context, event events.Event) {
			if e, ok := event.(events.PoolUpdatedEvent); ok {
				h.broadcast(map[string]any{
					"type":      "pool_updated",
					"group":     e.Group,
					"amount":    e.NewAmount,
					"oldAmount": e.OldAmount,
				})
			}
		}),
		bus.Subscribe(events.EventTypeJackpotWon, func(ctx context.Context, event events.Event) {
			if e, ok := event.(events.JackpotWonEvent); ok {
				h.broadcast(map[string]any{
					"type":   "jackpot_won",
					"group":  e.Group,
					"amount": e.Amount,
					"reseed": e.NewAmount,
				})
			}
		}),
	)
}

// Stop unsubscribes from the bus and disconnects every client
func (h *PoolMeterHub) Stop() {
	for _, sub := range h.subscriptions {
		sub.Unsubscribe()
	}
	h.subscriptions = nil

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.Close()
	}
	h.conns = make(map[*websocket.Conn]struct{})
}

// HandleWS upgrades the request and keeps the connection registered
// until the client goes away. Inbound traffic is limited to pings.
func (h *PoolMeterHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	clients := len(h.conns)
	h.mu.Unlock()
	log.WithField("clients", clients).Debug("Pool meter client connected")

	for {
		var msg map[string]string
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if msg["type"] == "ping" {
			h.mu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			_ = conn.WriteJSON(map[string]string{"type": "pong"})
			h.mu.Unlock()
		}
	}

	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// broadcast sends one update to every client. Writes are serialized
// under the hub lock; a client that cannot be written to is dropped.
func (h *PoolMeterHub) broadcast(update map[string]any) {
	data, err := json.Marshal(update)
	if err != nil {
		log.WithError(err).Error("Failed to encode meter update")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			_ = conn.Close()
			delete(h.conns, conn)
		}
	}
}
