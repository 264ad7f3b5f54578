package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// settlementChannel is the Redis Pub/Sub channel for settlement events, so a
// webhook landing on one instance reaches a pending page connected to another.
const settlementChannel = "payments:settled"

// Event is a message pushed to a connected client.
type Event struct {
	Type       string    `json:"type"`
	PaymentID  uuid.UUID `json:"paymentId"`
	Amount     float64   `json:"amount"`
	NewBalance float64   `json:"newBalance"`
}

type settlementMessage struct {
	UserID           string `json:"user_id"`
	Event            Event  `json:"event"`
	SenderInstanceID string `json:"sender_instance_id"`
}

// Connection represents one WebSocket client.
type Connection struct {
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub tracks connected clients per user and fans settlement events out
// across instances through Redis Pub/Sub. Works single-instance without
// Redis.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]map[*Connection]bool

	redis  *redis.Client // nil disables cross-instance fanout
	pubsub *redis.PubSub

	register   chan *Connection
	unregister chan *Connection

	ctx        context.Context
	cancel     context.CancelFunc
	instanceID string
}

// NewHub creates the settlement hub
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		connections: make(map[uuid.UUID]map[*Connection]bool),
		redis:       redisClient,
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		ctx:         ctx,
		cancel:      cancel,
		instanceID:  uuid.NewString(),
	}
	if redisClient != nil {
		h.pubsub = redisClient.Subscribe(ctx, settlementChannel)
	}
	return h
}

// Run starts the hub loop (call in goroutine)
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.runSubscriber()
	}

	for {
		select {
		case <-h.ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.connections[conn.UserID] == nil {
				h.connections[conn.UserID] = make(map[*Connection]bool)
			}
			h.connections[conn.UserID][conn] = true
			h.mu.Unlock()
			log.Debug().Str("user_id", conn.UserID.String()).Msg("websocket client connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.connections[conn.UserID]; ok {
				if _, exists := conns[conn]; exists {
					delete(conns, conn)
					close(conn.Send)
				}
				if len(conns) == 0 {
					delete(h.connections, conn.UserID)
				}
			}
			h.mu.Unlock()
			log.Debug().Str("user_id", conn.UserID.String()).Msg("websocket client disconnected")
		}
	}
}

// Shutdown stops the hub loop and the Redis subscription.
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		_ = h.pubsub.Close()
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) { h.register <- conn }

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) { h.unregister <- conn }

// NotifySettled pushes a settlement event to the paying user, locally and to
// peer instances. Implements the payment service's notifier hook.
func (h *Hub) NotifySettled(userID, paymentID uuid.UUID, amount, newBalance float64) {
	event := Event{
		Type:       "payment_settled",
		PaymentID:  paymentID,
		Amount:     amount,
		NewBalance: newBalance,
	}

	h.sendLocal(userID, event)

	if h.redis == nil {
		return
	}
	payload, err := json.Marshal(settlementMessage{
		UserID:           userID.String(),
		Event:            event,
		SenderInstanceID: h.instanceID,
	})
	if err != nil {
		return
	}
	if err := h.redis.Publish(h.ctx, settlementChannel, payload).Err(); err != nil {
		log.Error().Err(err).Msg("failed to publish settlement event")
	}
}

func (h *Hub) runSubscriber() {
	ch := h.pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var m settlementMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				continue
			}
			if m.SenderInstanceID == h.instanceID {
				continue
			}
			userID, err := uuid.Parse(m.UserID)
			if err != nil {
				continue
			}
			h.sendLocal(userID, m.Event)
		}
	}
}

func (h *Hub) sendLocal(userID uuid.UUID, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.connections[userID] {
		select {
		case conn.Send <- data:
		default:
			log.Warn().Str("user_id", userID.String()).Msg("websocket send buffer full, dropping event")
		}
	}
}
