package dashboard

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sonroyaalmerol/beatbox/internal/state"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// client is one dashboard socket.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	sendCh chan state.Message
	id     string
	userID string
	intake *rate.Limiter

	roomsMu sync.Mutex
	rooms   map[string]struct{}

	closeChan chan struct{}
	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn, userID string) *client {
	return &client{
		hub:       h,
		conn:      conn,
		sendCh:    make(chan state.Message, sendBuffer),
		id:        uuid.New().String(),
		userID:    userID,
		intake:    rate.NewLimiter(rate.Limit(h.opts.IntakeRate), h.opts.IntakeBurst),
		rooms:     make(map[string]struct{}),
		closeChan: make(chan struct{}),
	}
}

func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.log.Error("websocket read error", slog.Any("error", err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.hub.handleMessage(c, message)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.sendCh:
			data, err := json.Marshal(message)
			if err != nil {
				c.hub.log.Error("failed to marshal message", slog.Any("error", err))
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.log.Debug("failed to write message", slog.Any("error", err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// send never blocks; it is called under player session locks.
func (c *client) send(msg state.Message) {
	select {
	case <-c.closeChan:
		return
	default:
	}
	select {
	case c.sendCh <- msg:
	default:
		c.hub.log.Warn("dashboard send buffer full, dropping message",
			slog.String("conn", c.id), slog.String("event", msg.Event))
	}
}

func (c *client) sendError(guildID string, err error) {
	c.send(state.Message{Event: state.EventPlayerError, Data: state.PlayerErrorPayload{
		GuildID: guildID,
		Message: errorMessage(err),
	}})
}

func (c *client) join(guildID string) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	c.rooms[guildID] = struct{}{}
}

func (c *client) leave(guildID string) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	delete(c.rooms, guildID)
}

func (c *client) joined() []string {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for g := range c.rooms {
		out = append(out, g)
	}
	return out
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.conn.Close()
		c.hub.unregister(c)
		c.hub.log.Info("dashboard client disconnected", slog.String("conn", c.id))
	})
}
