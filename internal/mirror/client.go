package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sonroyaalmerol/beatbox/internal/clock"
	"github.com/sonroyaalmerol/beatbox/internal/state"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 1 << 20
)

var ErrClosed = errors.New("mirror client closed")

type ClientOptions struct {
	UserID string
	Clock  clock.Clock
	Grace  time.Duration
	// RequeueOnRepeat must match the bot's setting for skip predictions.
	RequeueOnRepeat bool
	Rand            *rand.Rand
	Logger          *slog.Logger

	OnError   func(state.PlayerErrorPayload)
	OnResults func(state.SearchResult)
	OnVoice   func(state.VoiceUpdatePayload)
}

// Client is a dashboard connection subscribed to one guild. Incoming player
// states feed its Store; action methods predict locally and then send.
type Client struct {
	conn    *websocket.Conn
	guildID string
	opts    ClientOptions
	store   *Store
	log     *slog.Logger

	sendCh    chan state.Message
	joined    chan struct{}
	joinOnce  sync.Once
	closeCh   chan struct{}
	closeOnce sync.Once
}

// Dial connects to the dashboard socket at rawURL and joins guildID.
func Dial(ctx context.Context, rawURL, guildID string, opts ClientOptions) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse dashboard url: %w", err)
	}
	if opts.UserID != "" {
		q := u.Query()
		q.Set("userId", opts.UserID)
		u.RawQuery = q.Encode()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial dashboard: %w", err)
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	c := &Client{
		conn:    conn,
		guildID: guildID,
		opts:    opts,
		store:   NewStore(guildID, opts.Clock, opts.Grace),
		log:     opts.Logger,
		sendCh:  make(chan state.Message, 64),
		joined:  make(chan struct{}),
		closeCh: make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()

	if err := c.send(state.EventJoinGuild, state.GuildPayload{GuildID: guildID}); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Store() *Store { return c.store }

func (c *Client) GuildID() string { return c.guildID }

// WaitJoined blocks until the first snapshot for the guild arrives.
func (c *Client) WaitJoined(ctx context.Context) error {
	select {
	case <-c.joined:
		return nil
	case <-c.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.closeCh }

// Close flushes queued messages and ends the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.store.Close()
	})
}

func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPingHandler(func(data string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Error("dashboard read error", slog.Any("error", err))
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.sendCh:
			if err := c.write(msg); err != nil {
				c.log.Error("failed to write message", slog.Any("error", err))
				c.Close()
				return
			}
		case <-c.closeCh:
		drain:
			for {
				select {
				case msg := <-c.sendCh:
					if c.write(msg) != nil {
						return
					}
				default:
					break drain
				}
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) write(msg state.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal message", slog.Any("error", err))
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) handle(data []byte) {
	var msg state.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("failed to unmarshal message", slog.Any("error", err))
		return
	}

	switch msg.Event {
	case state.EventPlayerState, state.EventQueueUpdate:
		var ps state.PlayerState
		if err := json.Unmarshal(msg.Data, &ps); err != nil {
			c.log.Warn("failed to unmarshal state", slog.Any("error", err))
			return
		}
		if ps.GuildID != c.guildID {
			return
		}
		first := false
		c.joinOnce.Do(func() { first = true })
		if first {
			c.store.Reset(ps)
			close(c.joined)
			return
		}
		c.store.Receive(ps)
	case state.EventPlayerError:
		var p state.PlayerErrorPayload
		if json.Unmarshal(msg.Data, &p) == nil && c.opts.OnError != nil {
			c.opts.OnError(p)
		}
	case state.EventSearchResults:
		var r state.SearchResult
		if json.Unmarshal(msg.Data, &r) == nil && c.opts.OnResults != nil {
			c.opts.OnResults(r)
		}
	case state.EventVoiceUpdate:
		var v state.VoiceUpdatePayload
		if json.Unmarshal(msg.Data, &v) == nil && c.opts.OnVoice != nil {
			c.opts.OnVoice(v)
		}
	default:
		c.log.Debug("unhandled event", slog.String("event", msg.Event))
	}
}

func (c *Client) send(event string, data any) error {
	select {
	case <-c.closeCh:
		return ErrClosed
	default:
	}
	select {
	case c.sendCh <- state.Message{Event: event, Data: data}:
		return nil
	default:
		return fmt.Errorf("send %s: buffer full", event)
	}
}

func (c *Client) act(p Prediction, event string, data any) error {
	if p != nil {
		c.store.ApplyOptimistic(p)
	}
	return c.send(event, data)
}

func (c *Client) guild() state.GuildPayload { return state.GuildPayload{GuildID: c.guildID} }

func (c *Client) Pause() error  { return c.act(PredictPause(), state.EventPlayerPause, c.guild()) }
func (c *Client) Resume() error { return c.act(PredictResume(), state.EventPlayerResume, c.guild()) }
func (c *Client) Stop() error   { return c.act(PredictStop(), state.EventPlayerStop, c.guild()) }

func (c *Client) Skip() error {
	now := time.Now()
	if c.opts.Clock != nil {
		now = c.opts.Clock.Now()
	}
	return c.act(PredictSkip(c.opts.RequeueOnRepeat, now), state.EventPlayerSkip, c.guild())
}

// Previous waits for the server broadcast.
func (c *Client) Previous() error { return c.act(nil, state.EventPlayerPrevious, c.guild()) }

func (c *Client) Seek(ms int64) error {
	return c.act(PredictSeek(ms), state.EventPlayerSeek, state.SeekPayload{GuildID: c.guildID, Position: ms})
}

func (c *Client) SetVolume(v int) error {
	return c.act(PredictVolume(v), state.EventPlayerVolume, state.VolumePayload{GuildID: c.guildID, Volume: v})
}

func (c *Client) SetRepeat(mode state.RepeatMode) error {
	return c.act(PredictRepeat(mode), state.EventPlayerRepeat, state.RepeatPayload{GuildID: c.guildID, Mode: mode})
}

func (c *Client) Shuffle() error {
	return c.act(PredictShuffle(c.opts.Rand), state.EventPlayerShuffle, c.guild())
}

func (c *Client) Remove(index int) error {
	return c.act(PredictRemove(index), state.EventQueueRemove, state.QueueRemovePayload{GuildID: c.guildID, Position: index})
}

func (c *Client) Move(from, to int) error {
	return c.act(PredictMove(from, to), state.EventQueueMove, state.QueueMovePayload{GuildID: c.guildID, From: from, To: to})
}

func (c *Client) Clear() error { return c.act(PredictClear(), state.EventQueueClear, c.guild()) }

// Add asks the bot to resolve query and queue the result.
func (c *Client) Add(query string) error {
	return c.act(nil, state.EventQueueAdd, state.QueueAddPayload{GuildID: c.guildID, Query: query})
}

func (c *Client) Search(query string) error {
	return c.act(nil, state.EventSearch, state.SearchPayload{GuildID: c.guildID, Query: query})
}

// Leave unsubscribes from the guild and closes the connection.
func (c *Client) Leave() error {
	err := c.send(state.EventLeaveGuild, c.guild())
	c.Close()
	return err
}
