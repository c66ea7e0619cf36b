package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/gracetrack-api/internal/models"
	appErrors "github.com/noah-isme/gracetrack-api/pkg/errors"
	"github.com/noah-isme/gracetrack-api/pkg/response"
)

const maxMessageSize = 4096

// TokenValidator resolves the identity behind an access token.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// Client is a single websocket connection scoped to one church.
type Client struct {
	ID       string
	ChurchID string
	Identity string

	hub    *Hub
	conn   *websocket.Conn
	send   chan Message
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[models.Collection]Subscription
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, claims *models.JWTClaims, logger *zap.Logger) *Client {
	return &Client{
		ID:       uuid.NewString(),
		ChurchID: claims.Church(),
		Identity: claims.Identity(),
		hub:      hub,
		conn:     conn,
		send:     make(chan Message, sendBuffer),
		logger:   logger,
		subs:     make(map[models.Collection]Subscription),
	}
}

// ServeWs upgrades authenticated requests and runs the client loops. The token is read from the
// token query parameter since browsers cannot set headers on websocket handshakes.
func ServeWs(hub *Hub, tokens TokenValidator, allowedOrigins []string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			token = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		}
		if token == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "token required"))
			return
		}
		claims, err := tokens.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := newClient(hub, conn, claims, logger)
		hub.Register(client)
		go client.writePump()
		client.readPump(c.Request.Context())
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

func (c *Client) subscription(collection models.Collection) (Subscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[collection]
	return sub, ok
}

func (c *Client) subscribe(sub Subscription) {
	c.mu.Lock()
	c.subs[sub.Collection] = sub
	c.mu.Unlock()
}

func (c *Client) unsubscribe(collection models.Collection) {
	c.mu.Lock()
	delete(c.subs, collection)
	c.mu.Unlock()
}

func (c *Client) trySend(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.logger.Debug("realtime send buffer full, dropping message", zap.String("client_id", c.ID), zap.String("event", msg.Event))
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) sendError(message string) {
	c.trySend(newMessage("error", map[string]string{"message": message}))
}

// normalizeSubscription validates the collection and pins the whitelisted ordering.
func normalizeSubscription(raw json.RawMessage) (Subscription, bool) {
	var sub Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return Subscription{}, false
	}
	collection, ok := models.ParseCollection(string(sub.Collection))
	if !ok {
		return Subscription{}, false
	}
	sub.Collection = collection
	if order, ok := models.ResolveOrder(collection, sub.OrderBy, sub.Direction); ok {
		sub.OrderBy = order.Field
		sub.Direction = string(order.Direction)
	} else {
		sub.OrderBy, sub.Direction = "", ""
	}
	return sub, true
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("realtime read failed", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))

		switch msg.Event {
		case "subscribe":
			sub, ok := normalizeSubscription(msg.Data)
			if !ok {
				c.sendError("unknown collection")
				continue
			}
			c.subscribe(sub)
			if err := c.hub.PushSnapshot(ctx, c, sub); err != nil {
				c.logger.Warn("failed to push initial snapshot", zap.String("client_id", c.ID), zap.String("collection", string(sub.Collection)), zap.Error(err))
				c.sendError("snapshot unavailable")
			}
		case "unsubscribe":
			sub, ok := normalizeSubscription(msg.Data)
			if ok {
				c.unsubscribe(sub.Collection)
			}
		case "ping":
			c.trySend(Message{Event: "pong"})
		default:
			c.sendError("unknown event")
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
