package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/tradingd/internal/core/events"
	"github.com/bikeshrana/tradingd/internal/tickcache"
)

// WebSocketHandler streams order executions and tick updates over
// /api/v1/stream, grounded on the sibling pi5-trading-system project's
// websocket handler and adapted to this core's single outbound event
// kind plus a Tick Cache poller in place of its multi-channel event bus.
type WebSocketHandler struct {
	logger       zerolog.Logger
	upgrader     websocket.Upgrader
	clients      map[*wsClient]bool
	clientsMu    sync.RWMutex
	eventBus     *events.EventBus
	cache        tickcache.Cache
	tickInterval time.Duration
}

type wsClient struct {
	conn     *websocket.Conn
	send     chan []byte
	handler  *WebSocketHandler
	clientID string
}

// wsMessage is the envelope every broadcast and client reply is wrapped in.
type wsMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewWebSocketHandler wires the handler to the EventBus it listens on and
// the Tick Cache it polls for price broadcasts.
func NewWebSocketHandler(logger zerolog.Logger, eventBus *events.EventBus, cache tickcache.Cache, tickInterval time.Duration) *WebSocketHandler {
	return &WebSocketHandler{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:      make(map[*wsClient]bool),
		eventBus:     eventBus,
		cache:        cache,
		tickInterval: tickInterval,
	}
}

// HandleConnection upgrades an HTTP request to a WebSocket and registers
// the client for broadcasts. Handles GET /api/v1/stream.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = "client_" + time.Now().Format("20060102150405")
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{
		conn:     conn,
		send:     make(chan []byte, 256),
		handler:  h,
		clientID: clientID,
	}

	h.registerClient(client)
	h.logger.Info().Str("client_id", clientID).Msg("websocket client connected")

	go client.writePump()
	go client.readPump()

	client.sendMessage("connected", map[string]string{
		"client_id": clientID,
		"message":   "connected to tradingd stream",
	})
}

func (h *WebSocketHandler) registerClient(client *wsClient) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[client] = true
}

func (h *WebSocketHandler) unregisterClient(client *wsClient) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.logger.Info().Str("client_id", client.clientID).Msg("websocket client disconnected")
	}
}

// Broadcast fans a message out to every connected client, dropping it
// (and disconnecting the client) where a send channel is already full.
func (h *WebSocketHandler) Broadcast(messageType string, data interface{}) {
	msg := wsMessage{Type: messageType, Timestamp: time.Now(), Data: data}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal websocket message")
		return
	}

	h.clientsMu.RLock()
	var slow []*wsClient
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.clientsMu.RUnlock()
	for _, client := range slow {
		h.unregisterClient(client)
	}
}

// StartEventListener subscribes to order-execution events and polls the
// Tick Cache on tickInterval, broadcasting both to connected clients
// until ctx is canceled.
func (h *WebSocketHandler) StartEventListener(ctx context.Context) {
	executedCh := h.eventBus.Subscribe(events.EventTypeOrderExecuted)
	ticker := time.NewTicker(h.tickInterval)
	defer ticker.Stop()

	h.logger.Info().Msg("websocket event listener started")
	for {
		select {
		case event := <-executedCh:
			if exec, ok := event.(*events.OrderExecutedEvent); ok {
				h.Broadcast("order_executed", map[string]interface{}{
					"orderId":        exec.OrderID,
					"accountId":      exec.AccountID,
					"symbol":         exec.Symbol,
					"side":           exec.Side,
					"qty":            exec.Qty,
					"executionPrice": exec.ExecutionPrice,
					"commission":     exec.Commission,
				})
			}

		case <-ticker.C:
			h.broadcastTicks(ctx)

		case <-ctx.Done():
			h.logger.Info().Msg("websocket event listener stopped")
			return
		}
	}
}

func (h *WebSocketHandler) broadcastTicks(ctx context.Context) {
	symbols, err := h.cache.Symbols(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("tick cache symbol listing failed")
		return
	}
	for _, symbol := range symbols {
		q, ok, err := h.cache.Get(ctx, symbol)
		if err != nil || !ok {
			continue
		}
		h.Broadcast("tick", q)
	}
}

// GetClientCount returns the number of connected clients.
func (h *WebSocketHandler) GetClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.handler.logger.Error().Err(err).Msg("failed to write websocket message")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.handler.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.handler.logger.Error().Err(err).Msg("websocket read error")
			}
			break
		}
		c.handleIncomingMessage(message)
	}
}

func (c *wsClient) handleIncomingMessage(message []byte) {
	var msg map[string]interface{}
	if err := json.Unmarshal(message, &msg); err != nil {
		c.handler.logger.Error().Err(err).Msg("failed to unmarshal client message")
		return
	}
	msgType, ok := msg["type"].(string)
	if !ok {
		return
	}

	switch msgType {
	case "ping":
		c.sendMessage("pong", map[string]string{"status": "ok"})
	default:
		c.handler.logger.Warn().Str("type", msgType).Msg("unknown message type from client")
	}
}

func (c *wsClient) sendMessage(messageType string, data interface{}) {
	msg := wsMessage{Type: messageType, Timestamp: time.Now(), Data: data}
	payload, err := json.Marshal(msg)
	if err != nil {
		c.handler.logger.Error().Err(err).Msg("failed to marshal message")
		return
	}
	select {
	case c.send <- payload:
	default:
		c.handler.logger.Warn().Str("client_id", c.clientID).Msg("client send channel full")
	}
}
