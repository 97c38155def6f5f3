package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"codeblocks-live/internal/protocol"
	"codeblocks-live/internal/ratelimit"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024 * 1024
	messagesPerSecond = 100
	messageBurst      = 200
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one live connection. Room membership and role live in the hub's
// registry; the client only pumps frames.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	id          string
	rateLimiter *ratelimit.Limiter
}

func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	client := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 512),
		id:          uuid.NewString(),
		rateLimiter: ratelimit.NewLimiter(messagesPerSecond, messageBurst),
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.disconnect <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			log.Printf("Invalid frame from client %s: %v", c.id, err)
			continue
		}

		switch env.Event {
		case protocol.EventJoinRoom:
			var roomID string
			if err := json.Unmarshal(env.Data, &roomID); err != nil || roomID == "" {
				log.Printf("Bad join-room payload from client %s", c.id)
				continue
			}
			c.hub.register <- joinRequest{client: c, roomID: roomID}

		case protocol.EventLeaveRoom:
			var roomID string
			_ = json.Unmarshal(env.Data, &roomID)
			c.hub.unregister <- leaveRequest{client: c, roomID: roomID}

		case protocol.EventCodeUpdate:
			if !c.rateLimiter.Allow() {
				rateLimitWarnings++
				if rateLimitWarnings%100 == 1 {
					log.Printf("Rate limit exceeded for client %s (warning #%d)", c.id, rateLimitWarnings)
				}
				if rateLimitWarnings > 1000 {
					log.Printf("Disconnecting client %s for excessive rate limit violations", c.id)
					return
				}
				continue
			}

			var upd protocol.CodeUpdate
			if err := json.Unmarshal(env.Data, &upd); err != nil || upd.RoomID == "" {
				log.Printf("Bad code-update payload from client %s", c.id)
				continue
			}
			c.hub.broadcast <- &Message{
				RoomID: upd.RoomID,
				Data:   frame(protocol.EventReceiveCode, upd.Code),
				Sender: c,
			}

		default:
			log.Printf("Unknown event %q from client %s", env.Event, c.id)
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

// enqueue hands a frame to the write pump without blocking the hub.
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		// Buffer full: drop the frame, a later full-buffer payload supersedes it
	}
}
