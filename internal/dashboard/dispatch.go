package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/sonroyaalmerol/beatbox/internal/player"
	"github.com/sonroyaalmerol/beatbox/internal/resolver"
	"github.com/sonroyaalmerol/beatbox/internal/spotify"
	"github.com/sonroyaalmerol/beatbox/internal/state"
)

var (
	ErrRateLimited = errors.New("rate limited")
	ErrBadRequest  = errors.New("bad request")
	ErrNoResolver  = errors.New("search is unavailable")
)

// errorMessage is the text shown to dashboard users for err.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, player.ErrNoActivePlayer), errors.Is(err, player.ErrDestroyed):
		return "No active player in this server"
	case errors.Is(err, player.ErrNotPermitted):
		return "You need the DJ role to do that"
	case errors.Is(err, player.ErrNothingPlaying):
		return "Nothing is playing"
	case errors.Is(err, player.ErrOutOfBounds):
		return "That position is not in the queue"
	case errors.Is(err, player.ErrOutOfRange):
		return "Value out of range"
	case errors.Is(err, player.ErrEmptyQueue):
		return "The queue is empty"
	case errors.Is(err, player.ErrInsufficientTracks):
		return "Not enough tracks in the queue"
	case errors.Is(err, player.ErrEmptyHistory):
		return "No previous track"
	case errors.Is(err, player.ErrInvalidRepeatMode):
		return "Invalid repeat mode"
	case errors.Is(err, player.ErrQueueFull):
		return "The queue is full"
	case errors.Is(err, resolver.ErrNotFound):
		return "No results found"
	case errors.Is(err, spotify.ErrNotConfigured):
		return "Spotify links are not configured"
	case errors.Is(err, resolver.ErrEmptyQuery), errors.Is(err, ErrBadRequest):
		return "Bad request"
	case errors.Is(err, ErrRateLimited):
		return "Slow down"
	case errors.Is(err, ErrNoResolver):
		return "Search is unavailable"
	}
	return "Something went wrong"
}

func (h *Hub) handleMessage(c *client, data []byte) {
	if !c.intake.Allow() {
		c.sendError("", ErrRateLimited)
		return
	}

	var msg state.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.log.Debug("failed to unmarshal message", slog.Any("error", err))
		c.sendError("", ErrBadRequest)
		return
	}
	var g state.GuildPayload
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &g); err != nil {
			c.sendError("", ErrBadRequest)
			return
		}
	}
	if g.GuildID == "" {
		c.sendError("", ErrBadRequest)
		return
	}
	gid := g.GuildID

	switch msg.Event {
	case state.EventJoinGuild:
		h.joinRoom(c, gid)
		c.send(state.Message{Event: state.EventPlayerState, Data: h.snapshot(gid)})
	case state.EventLeaveGuild:
		h.leaveRoom(c, gid)

	case state.EventPlayerPause:
		h.control(c, gid, player.OpPause, (*player.Session).Pause)
	case state.EventPlayerResume:
		h.control(c, gid, player.OpResume, (*player.Session).Resume)
	case state.EventPlayerPrevious:
		h.control(c, gid, player.OpPrevious, (*player.Session).Previous)
	case state.EventPlayerStop:
		h.control(c, gid, player.OpStop, (*player.Session).Stop)
	case state.EventPlayerShuffle:
		h.control(c, gid, player.OpShuffle, (*player.Session).Shuffle)
	case state.EventPlayerSkip:
		ctx, cancel := h.requestContext()
		defer cancel()
		out, err := h.opts.Controller.Skip(ctx, gid, c.userID)
		if err != nil {
			c.sendError(gid, err)
			return
		}
		if out.By == "vote" && !out.Vote.Skipped {
			h.log.Debug("dashboard skip vote", "guildID", gid, "votes", out.Vote.Votes, "required", out.Vote.Required)
		}

	case state.EventPlayerSeek:
		var p state.SeekPayload
		if !decode(c, msg.Data, &p) {
			return
		}
		h.control(c, gid, player.OpSeek, func(s *player.Session) error { return s.Seek(p.Position) })
	case state.EventPlayerVolume:
		var p state.VolumePayload
		if !decode(c, msg.Data, &p) {
			return
		}
		h.control(c, gid, player.OpVolume, func(s *player.Session) error { return s.SetVolume(p.Volume) })
	case state.EventPlayerRepeat:
		var p state.RepeatPayload
		if !decode(c, msg.Data, &p) {
			return
		}
		h.control(c, gid, player.OpRepeat, func(s *player.Session) error { return s.SetRepeat(p.Mode) })
	case state.EventQueueRemove:
		var p state.QueueRemovePayload
		if !decode(c, msg.Data, &p) {
			return
		}
		h.control(c, gid, player.OpQueueRemove, func(s *player.Session) error {
			_, err := s.QueueRemove(p.Position)
			return err
		})
	case state.EventQueueMove:
		var p state.QueueMovePayload
		if !decode(c, msg.Data, &p) {
			return
		}
		h.control(c, gid, player.OpQueueMove, func(s *player.Session) error {
			_, err := s.QueueMove(p.From, p.To)
			return err
		})
	case state.EventQueueClear:
		h.control(c, gid, player.OpQueueClear, func(s *player.Session) error {
			_, err := s.QueueClear()
			return err
		})

	case state.EventQueueAdd:
		var p state.QueueAddPayload
		if !decode(c, msg.Data, &p) {
			return
		}
		go h.queueAdd(c, gid, p.Query)
	case state.EventSearch:
		var p state.SearchPayload
		if !decode(c, msg.Data, &p) {
			return
		}
		go h.search(c, gid, p.Query)

	default:
		h.log.Debug("unknown dashboard event", slog.String("event", msg.Event))
	}
}

func decode(c *client, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		c.sendError("", ErrBadRequest)
		return false
	}
	return true
}

func (h *Hub) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.opts.RequestTimeout)
}

func (h *Hub) snapshot(guildID string) state.PlayerState {
	if h.opts.Registry == nil {
		return state.Idle(guildID)
	}
	return h.opts.Registry.Snapshot(guildID)
}

// control runs fn on the guild's session after the permission check.
// Failures only go back to the sender; the session broadcasts successes.
func (h *Hub) control(c *client, guildID string, op player.Op, fn func(*player.Session) error) {
	ctx, cancel := h.requestContext()
	defer cancel()
	s, err := h.opts.Controller.Guard(ctx, guildID, c.userID, op)
	if err == nil {
		err = fn(s)
	}
	if err != nil {
		h.log.Debug("dashboard action rejected", "guildID", guildID, "op", op, "err", err)
		c.sendError(guildID, err)
	}
}

func (h *Hub) requester(userID string) state.Requester {
	if h.opts.Requester != nil {
		return h.opts.Requester(userID)
	}
	return state.Requester{ID: userID, Username: "dashboard"}
}

func (h *Hub) queueAdd(c *client, guildID, query string) {
	ctx, cancel := h.requestContext()
	defer cancel()

	sess, err := h.opts.Controller.Guard(ctx, guildID, c.userID, player.OpQueueAdd)
	if err != nil {
		c.sendError(guildID, err)
		return
	}
	if h.opts.Resolver == nil {
		c.sendError(guildID, ErrNoResolver)
		return
	}
	res, err := h.opts.Resolver.Resolve(ctx, query, h.requester(c.userID))
	if err != nil {
		h.log.Debug("dashboard resolve failed", "guildID", guildID, "query", query, "err", err)
		c.sendError(guildID, err)
		return
	}
	// the session may have been torn down while resolving
	if h.opts.Registry.Peek(guildID) != sess || sess.Destroyed() {
		c.sendError(guildID, player.ErrNoActivePlayer)
		return
	}
	if len(res.Tracks) == 1 {
		_, err = sess.QueueAdd(res.Tracks[0], -1)
	} else {
		_, err = sess.QueueAddMany(res.Tracks)
	}
	if err != nil {
		c.sendError(guildID, err)
	}
}

func (h *Hub) search(c *client, guildID, query string) {
	if h.opts.Resolver == nil {
		c.sendError(guildID, ErrNoResolver)
		return
	}
	ctx, cancel := h.requestContext()
	defer cancel()
	tracks, err := h.opts.Resolver.Search(ctx, query, state.SearchLimit)
	if err != nil {
		h.log.Debug("dashboard search failed", "query", query, "err", err)
		c.send(state.Message{Event: state.EventPlayerError, Data: state.PlayerErrorPayload{
			GuildID: guildID, Message: "Search failed",
		}})
		return
	}
	c.send(state.Message{Event: state.EventSearchResults, Data: state.SearchResult{
		Tracks: tracks, Source: string(resolver.KindSearch),
	}})
}
