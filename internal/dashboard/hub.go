// Package dashboard serves the web dashboard's socket: guild rooms that
// receive player broadcasts, and control messages routed to the player.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sonroyaalmerol/beatbox/internal/player"
	"github.com/sonroyaalmerol/beatbox/internal/resolver"
	"github.com/sonroyaalmerol/beatbox/internal/state"
)

// Resolver looks up tracks for queue:add and search:query.
type Resolver interface {
	Resolve(ctx context.Context, query string, requester state.Requester) (resolver.Result, error)
	Search(ctx context.Context, query string, limit int) ([]state.Track, error)
}

type Options struct {
	Registry   *player.Registry
	Controller *player.Controller
	Resolver   Resolver
	// Requester describes a dashboard user on tracks they add.
	Requester func(userID string) state.Requester

	// AllowedOrigin restricts the websocket Origin header; empty allows any.
	AllowedOrigin  string
	IntakeRate     float64
	IntakeBurst    int
	RequestTimeout time.Duration
	Version        string
	Logger         *slog.Logger
}

type Hub struct {
	opts     Options
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[*client]struct{}

	startTime time.Time
}

func New(opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.IntakeRate <= 0 {
		opts.IntakeRate = 20
	}
	if opts.IntakeBurst <= 0 {
		opts.IntakeBurst = 40
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Controller == nil {
		opts.Controller = &player.Controller{Registry: opts.Registry, Auth: player.AllowAll}
	}
	h := &Hub{
		opts:      opts,
		log:       opts.Logger,
		clients:   make(map[string]*client),
		rooms:     make(map[string]map[*client]struct{}),
		startTime: time.Now(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return opts.AllowedOrigin == "" || r.Header.Get("Origin") == opts.AllowedOrigin
		},
	}
	return h
}

// Handler serves /ws, /health and /stats.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWebSocket)
	mux.Handle("/health", &healthHandler{hub: h})
	mux.Handle("/stats", &statsHandler{hub: h})
	return mux
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("failed to upgrade websocket", slog.Any("error", err))
		return
	}

	c := newClient(h, conn, userID)
	h.register(c)
	h.log.Info("dashboard client connected",
		slog.String("conn", c.id), slog.String("user", userID), slog.String("addr", r.RemoteAddr))

	go c.readPump()
	go c.writePump()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
	for _, g := range c.joined() {
		h.leaveLocked(c, g)
	}
}

func (h *Hub) joinRoom(c *client, guildID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[guildID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[guildID] = room
	}
	room[c] = struct{}{}
	c.join(guildID)
}

func (h *Hub) leaveRoom(c *client, guildID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, guildID)
}

func (h *Hub) leaveLocked(c *client, guildID string) {
	if room, ok := h.rooms[guildID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, guildID)
		}
	}
	c.leave(guildID)
}

func (h *Hub) toRoom(guildID string, msg state.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[guildID] {
		c.send(msg)
	}
}

func (h *Hub) BroadcastState(ps state.PlayerState) {
	h.toRoom(ps.GuildID, state.Message{Event: state.EventPlayerState, Data: ps})
}

func (h *Hub) BroadcastQueue(ps state.PlayerState) {
	h.toRoom(ps.GuildID, state.Message{Event: state.EventQueueUpdate, Data: ps})
}

func (h *Hub) BroadcastError(guildID, message string, t *state.Track) {
	h.toRoom(guildID, state.Message{Event: state.EventPlayerError, Data: state.PlayerErrorPayload{
		GuildID: guildID, Message: message, Track: t,
	}})
}

func (h *Hub) BroadcastVoice(p state.VoiceUpdatePayload) {
	h.toRoom(p.GuildID, state.Message{Event: state.EventVoiceUpdate, Data: p})
}

// Close disconnects every dashboard client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.close()
	}
}

type Stats struct {
	Sessions    int   `json:"sessions"`
	Playing     int   `json:"playing"`
	Connections int   `json:"connections"`
	Rooms       int   `json:"rooms"`
	Uptime      int64 `json:"uptime"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	st := Stats{
		Connections: len(h.clients),
		Rooms:       len(h.rooms),
		Uptime:      time.Since(h.startTime).Milliseconds(),
	}
	h.mu.RUnlock()
	if h.opts.Registry != nil {
		for _, s := range h.opts.Registry.Sessions() {
			st.Sessions++
			if s.State().Playing {
				st.Playing++
			}
		}
	}
	return st
}
