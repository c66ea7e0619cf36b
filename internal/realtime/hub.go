package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gracetrack-api/internal/models"
	"github.com/noah-isme/gracetrack-api/internal/service"
)

const (
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 64
	loadTimeout  = 5 * time.Second
)

// Message is the websocket envelope in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Subscription is a client's interest in one ordered collection.
type Subscription struct {
	Collection models.Collection `json:"collection"`
	OrderBy    string            `json:"orderBy,omitempty"`
	Direction  string            `json:"direction,omitempty"`
}

// Snapshot is pushed to subscribers on subscribe and after every change to the collection.
type Snapshot struct {
	Collection models.Collection `json:"collection"`
	OrderBy    string            `json:"orderBy,omitempty"`
	Direction  string            `json:"direction,omitempty"`
	Items      interface{}       `json:"items"`
	At         time.Time         `json:"at"`
}

// SnapshotLoader reads the current ordered contents of a collection.
type SnapshotLoader interface {
	Load(ctx context.Context, q service.SnapshotQuery) (interface{}, error)
}

// Hub tracks connected clients per church and pushes snapshots when collections change.
type Hub struct {
	mu       sync.RWMutex
	churches map[string]map[*Client]struct{}
	loader   SnapshotLoader
	metrics  *service.MetricsService
	logger   *zap.Logger
}

// NewHub creates a hub. metrics may be nil.
func NewHub(loader SnapshotLoader, metrics *service.MetricsService, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		churches: make(map[string]map[*Client]struct{}),
		loader:   loader,
		metrics:  metrics,
		logger:   logger,
	}
}

// Register adds a client to its church room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.churches[c.ChurchID] == nil {
		h.churches[c.ChurchID] = make(map[*Client]struct{})
	}
	h.churches[c.ChurchID][c] = struct{}{}
	total := h.countLocked()
	h.mu.Unlock()
	h.metrics.SetRealtimeClients(total)
	h.logger.Debug("realtime client connected", zap.String("client_id", c.ID), zap.String("church_id", c.ChurchID))
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if room, ok := h.churches[c.ChurchID]; ok {
		if _, member := room[c]; member {
			delete(room, c)
			c.closeSend()
		}
		if len(room) == 0 {
			delete(h.churches, c.ChurchID)
		}
	}
	total := h.countLocked()
	h.mu.Unlock()
	h.metrics.SetRealtimeClients(total)
	h.logger.Debug("realtime client disconnected", zap.String("client_id", c.ID), zap.String("church_id", c.ChurchID))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	total := 0
	for _, room := range h.churches {
		total += len(room)
	}
	return total
}

// Deliver reloads the changed collection once per distinct ordering and pushes it to every local
// subscriber in the church.
func (h *Hub) Deliver(ctx context.Context, event models.ChangeEvent) {
	h.mu.RLock()
	room := h.churches[event.ChurchID]
	targets := make(map[Subscription][]*Client)
	for c := range room {
		if sub, ok := c.subscription(event.Collection); ok {
			targets[sub] = append(targets[sub], c)
		}
	}
	h.mu.RUnlock()

	for sub, clients := range targets {
		msg, err := h.snapshotMessage(ctx, event.ChurchID, sub)
		if err != nil {
			h.logger.Warn("failed to load snapshot",
				zap.String("church_id", event.ChurchID),
				zap.String("collection", string(sub.Collection)),
				zap.Error(err))
			continue
		}
		for _, c := range clients {
			c.trySend(msg)
		}
	}
}

// PushSnapshot sends the current contents of sub to a single client.
func (h *Hub) PushSnapshot(ctx context.Context, c *Client, sub Subscription) error {
	msg, err := h.snapshotMessage(ctx, c.ChurchID, sub)
	if err != nil {
		return err
	}
	c.trySend(msg)
	return nil
}

func (h *Hub) snapshotMessage(ctx context.Context, churchID string, sub Subscription) (Message, error) {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()
	items, err := h.loader.Load(ctx, service.SnapshotQuery{
		ChurchID:   churchID,
		Collection: sub.Collection,
		OrderBy:    sub.OrderBy,
		Direction:  sub.Direction,
	})
	if err != nil {
		return Message{}, err
	}
	return newMessage("snapshot", Snapshot{
		Collection: sub.Collection,
		OrderBy:    sub.OrderBy,
		Direction:  sub.Direction,
		Items:      items,
		At:         time.Now().UTC(),
	}), nil
}

func newMessage(event string, payload interface{}) Message {
	data, err := json.Marshal(payload)
	if err != nil {
		data = nil
	}
	return Message{Event: event, Data: data}
}
