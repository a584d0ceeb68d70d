// Package audionode talks to the external audio node that joins voice
// channels and streams tracks. It implements player.Audio.
package audionode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sonroyaalmerol/beatbox/internal/state"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

var ErrNotConnected = errors.New("audio node not connected")

// EventHandler receives node events. It is called from the read loop.
type EventHandler interface {
	OnTrackEnd(guildID, reason string)
	OnTrackError(guildID, message string)
	OnPlayerUpdate(guildID string, positionMs int64)
	OnVoiceClosed(guildID string)
}

type Options struct {
	URL        string
	BotID      snowflake.ID
	ClientName string
	Handler    EventHandler
	// ReconnectInterval is the minimum time between connection attempts.
	ReconnectInterval time.Duration
	Logger            *slog.Logger
}

type Client struct {
	opts Options
	log  *slog.Logger

	sendCh    chan Message
	connected atomic.Bool
	limiter   *rate.Limiter

	mu        sync.Mutex
	sessionID string
	voice     map[snowflake.ID]VoiceUpdateData
	stats     StatsData
}

func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ClientName == "" {
		opts.ClientName = "beatbox"
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 5 * time.Second
	}
	return &Client{
		opts:    opts,
		log:     opts.Logger,
		sendCh:  make(chan Message, 256),
		limiter: rate.NewLimiter(rate.Every(opts.ReconnectInterval), 1),
		voice:   make(map[snowflake.ID]VoiceUpdateData),
	}
}

// SetHandler installs the event handler. It must be called before Run.
func (c *Client) SetHandler(h EventHandler) { c.opts.Handler = h }

func (c *Client) Connected() bool { return c.connected.Load() }

func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) Stats() StatsData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Run keeps a connection to the node until ctx is cancelled, reconnecting
// at most once per ReconnectInterval.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("audio node connection lost", slog.Any("error", err))
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	header := http.Header{}
	header.Set("Client-Name", c.opts.ClientName)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		return fmt.Errorf("dial audio node: %w", err)
	}
	defer conn.Close()

	// anything queued while offline refers to a dead connection
	c.drain()

	if err := c.write(conn, Message{Op: OpIdentify, Data: IdentifyData{ClientID: c.opts.BotID}}); err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	for _, vu := range c.knownVoice() {
		if err := c.write(conn, Message{Op: OpVoiceUpdate, Data: vu}); err != nil {
			return fmt.Errorf("resend voice update: %w", err)
		}
	}

	done := make(chan struct{})
	writeErr := make(chan error, 1)
	go func() { writeErr <- c.writePump(conn, done) }()

	c.connected.Store(true)
	c.log.Info("audio node connected", slog.String("url", c.opts.URL))

	readErr := make(chan error, 1)
	go func() { readErr <- c.readPump(conn) }()

	select {
	case err = <-readErr:
	case err = <-writeErr:
	case <-ctx.Done():
		err = ctx.Err()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	}
	c.connected.Store(false)
	close(done)
	conn.Close()
	return err
}

func (c *Client) drain() {
	for {
		select {
		case <-c.sendCh:
		default:
			return
		}
	}
}

func (c *Client) knownVoice() []VoiceUpdateData {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]VoiceUpdateData, 0, len(c.voice))
	for _, v := range c.voice {
		out = append(out, v)
	}
	return out
}

func (c *Client) write(conn *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) writePump(conn *websocket.Conn, done <-chan struct{}) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg := <-c.sendCh:
			if err := c.write(conn, msg); err != nil {
				return err
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-done:
			return nil
		}
	}
}

func (c *Client) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg struct {
		Op   uint8           `json:"op"`
		Data json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Error("failed to unmarshal node message", slog.Any("error", err))
		return
	}

	h := c.opts.Handler
	switch msg.Op {
	case OpReady:
		var ready ReadyData
		if c.decode(msg.Data, &ready) {
			c.mu.Lock()
			c.sessionID = ready.SessionID
			c.mu.Unlock()
			c.log.Info("audio node ready", slog.String("session", ready.SessionID), slog.Bool("resumed", ready.Resumed))
		}
	case OpPlayerUpdate:
		var u PlayerUpdateData
		if c.decode(msg.Data, &u) && h != nil {
			h.OnPlayerUpdate(u.GuildID.String(), u.Position)
		}
	case OpTrackStart:
		var ts TrackStartData
		if c.decode(msg.Data, &ts) {
			c.log.Debug("node track start", slog.String("guildID", ts.GuildID.String()), slog.String("url", ts.Track.URL))
		}
	case OpTrackEnd:
		var te TrackEndData
		if c.decode(msg.Data, &te) && h != nil {
			h.OnTrackEnd(te.GuildID.String(), te.Reason)
		}
	case OpTrackError:
		var te TrackErrorData
		if c.decode(msg.Data, &te) && h != nil {
			h.OnTrackError(te.GuildID.String(), te.Error)
		}
	case OpVoiceConnect:
		var vc VoiceConnectData
		if c.decode(msg.Data, &vc) {
			c.log.Debug("node joined voice", slog.String("guildID", vc.GuildID.String()), slog.String("channelID", vc.ChannelID.String()))
		}
	case OpVoiceDisconnect:
		var vd VoiceDisconnectData
		if !c.decode(msg.Data, &vd) {
			return
		}
		c.mu.Lock()
		delete(c.voice, vd.GuildID)
		c.mu.Unlock()
		// a disconnect we asked for is already handled by the session
		if vd.Reason != "requested" && h != nil {
			h.OnVoiceClosed(vd.GuildID.String())
		}
	case OpPong:
	case OpStats:
		var st StatsData
		if c.decode(msg.Data, &st) {
			c.mu.Lock()
			c.stats = st
			c.mu.Unlock()
		}
	default:
		c.log.Warn("unknown op code", slog.Uint64("op", uint64(msg.Op)))
	}
}

func (c *Client) decode(data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		c.log.Error("failed to unmarshal node payload", slog.Any("error", err))
		return false
	}
	return true
}

// enqueue never blocks; player sessions call it under their lock.
func (c *Client) enqueue(msg Message) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	select {
	case c.sendCh <- msg:
		return nil
	default:
		return fmt.Errorf("audio node send buffer full")
	}
}

func parseGuild(guildID string) (snowflake.ID, error) {
	id, err := snowflake.Parse(guildID)
	if err != nil {
		return 0, fmt.Errorf("guild id %q: %w", guildID, err)
	}
	return id, nil
}

func (c *Client) guildOp(op uint8, guildID string) error {
	id, err := parseGuild(guildID)
	if err != nil {
		return err
	}
	return c.enqueue(Message{Op: op, Data: GuildData{GuildID: id}})
}

func (c *Client) Play(guildID string, t state.Track, startMs int64, volume int) error {
	id, err := parseGuild(guildID)
	if err != nil {
		return err
	}
	return c.enqueue(Message{Op: OpPlay, Data: PlayData{GuildID: id, URL: t.URI, StartTime: startMs, Volume: volume}})
}

func (c *Client) Pause(guildID string) error  { return c.guildOp(OpPause, guildID) }
func (c *Client) Resume(guildID string) error { return c.guildOp(OpResume, guildID) }
func (c *Client) Stop(guildID string) error   { return c.guildOp(OpStop, guildID) }

func (c *Client) Seek(guildID string, positionMs int64) error {
	id, err := parseGuild(guildID)
	if err != nil {
		return err
	}
	return c.enqueue(Message{Op: OpSeek, Data: SeekData{GuildID: id, Position: positionMs}})
}

func (c *Client) Volume(guildID string, volume int) error {
	id, err := parseGuild(guildID)
	if err != nil {
		return err
	}
	return c.enqueue(Message{Op: OpVolume, Data: VolumeData{GuildID: id, Volume: volume}})
}

func (c *Client) Disconnect(guildID string) error {
	id, err := parseGuild(guildID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.voice, id)
	c.mu.Unlock()
	return c.enqueue(Message{Op: OpDisconnect, Data: GuildData{GuildID: id}})
}

// VoiceUpdate forwards the bot's Discord voice credentials for a guild. They
// are kept and replayed after a reconnect.
func (c *Client) VoiceUpdate(guildID, channelID, sessionID, token, endpoint string) error {
	gid, err := parseGuild(guildID)
	if err != nil {
		return err
	}
	cid, err := snowflake.Parse(channelID)
	if err != nil {
		return fmt.Errorf("channel id %q: %w", channelID, err)
	}
	vu := VoiceUpdateData{
		GuildID:   gid,
		ChannelID: cid,
		SessionID: sessionID,
		Event:     VoiceServerEvent{Token: token, GuildID: guildID, Endpoint: endpoint},
	}
	c.mu.Lock()
	c.voice[gid] = vu
	c.mu.Unlock()
	return c.enqueue(Message{Op: OpVoiceUpdate, Data: vu})
}

func (c *Client) Ping() error { return c.enqueue(Message{Op: OpPing}) }
