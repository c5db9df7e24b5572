package api

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/thereceipt/label-engine/internal/device"
	"github.com/thereceipt/label-engine/internal/printer"
)

// WebSocket message types
const (
	EventScan       = "scan"
	EventConnection = "connection"
	EventCommand    = "command"
	EventResponse   = "response"
	EventError      = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn   *websocket.Conn
	send   chan WSMessage
	server *Server
	once   sync.Once
}

// hub tracks connected clients for broadcasts
type hub struct {
	clients map[*WSClient]bool
	mu      sync.RWMutex
}

func newHub() *hub {
	return &hub{clients: make(map[*WSClient]bool)}
}

func (h *hub) add(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *hub) remove(c *WSClient) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// broadcast never blocks; slow clients miss messages
func (h *hub) broadcast(msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Client send buffer full, skip
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		delete(h.clients, client)
		client.close()
	}
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &WSClient{
		conn:   conn,
		send:   make(chan WSMessage, 256),
		server: s,
	}
	s.hub.add(client)

	log.Info().Str("remote", c.Request.RemoteAddr).Msg("📡 websocket client connected")

	go client.readPump()
	go client.writePump()
}

func (c *WSClient) close() {
	c.once.Do(func() { close(c.send) })
}

func (c *WSClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			log.Debug().Err(err).Msg("websocket write error")
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *WSClient) readPump() {
	defer func() {
		c.server.hub.remove(c)
		log.Info().Msg("📡 websocket client disconnected")
	}()

	for {
		var msg WSMessage
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("websocket error")
			}
			return
		}

		c.handleMessage(&msg)
	}
}

func (c *WSClient) handleMessage(msg *WSMessage) {
	switch msg.Event {
	case EventCommand:
		cmd, _ := msg.Data["command"].(string)
		if cmd == "" {
			c.reply(EventError, map[string]interface{}{"error": "command is required"})
			return
		}

		result := c.server.executor.Execute(cmd)
		data := map[string]interface{}{
			"success": result.Success,
		}
		if result.Message != "" {
			data["message"] = result.Message
		}
		if result.Error != "" {
			data["error"] = result.Error
			data["code"] = result.Code
		}
		for k, v := range result.Data {
			data[k] = v
		}
		c.reply(EventResponse, data)

	default:
		c.reply(EventError, map[string]interface{}{"error": fmt.Sprintf("unknown event: %s", msg.Event)})
	}
}

// reply queues a message for this client only
func (c *WSClient) reply(event string, data map[string]interface{}) {
	c.server.hub.mu.RLock()
	defer c.server.hub.mu.RUnlock()

	if !c.server.hub.clients[c] {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}

// BroadcastDevice sends a newly discovered device to all clients
func (s *Server) BroadcastDevice(dev device.Device) {
	data := map[string]interface{}{
		"id":   dev.ID,
		"name": dev.Name,
	}
	if dev.SignalStrength != nil {
		data["signalStrength"] = *dev.SignalStrength
	}

	s.hub.broadcast(WSMessage{Event: EventScan, Data: data})
}

// BroadcastConnection sends a connection state change to all clients
func (s *Server) BroadcastConnection(ev printer.ConnectionEvent) {
	data := map[string]interface{}{
		"state": ev.State.String(),
	}
	if ev.Device != nil {
		data["device"] = ev.Device
	}
	if ev.Reason != nil {
		data["reason"] = printer.Code(ev.Reason)
	}

	s.hub.broadcast(WSMessage{Event: EventConnection, Data: data})
}
