package player

import (
	"context"
	"errors"
	"fmt"
)

// Op names an end-user operation for authorization.
type Op string

const (
	OpPause       Op = "pause"
	OpResume      Op = "resume"
	OpSkip        Op = "skip"
	OpPrevious    Op = "previous"
	OpStop        Op = "stop"
	OpSeek        Op = "seek"
	OpVolume      Op = "volume"
	OpRepeat      Op = "repeat"
	OpShuffle     Op = "shuffle"
	OpQueueAdd    Op = "queue:add"
	OpQueueRemove Op = "queue:remove"
	OpQueueMove   Op = "queue:move"
	OpQueueClear  Op = "queue:clear"
	OpDedupe      Op = "removedupes"
	OpLeaveClean  Op = "leavecleanup"
	OpTwentyFour  Op = "247"
)

// DJOnly reports whether op is restricted to DJs when a DJ role is set.
func (op Op) DJOnly() bool {
	switch op {
	case OpQueueAdd, OpTwentyFour:
		return false
	}
	return true
}

// Authorizer decides whether userID may run op in guildID. A nil error
// allows the operation.
type Authorizer interface {
	Authorize(ctx context.Context, guildID, userID string, op Op) error
}

type AuthorizerFunc func(ctx context.Context, guildID, userID string, op Op) error

func (f AuthorizerFunc) Authorize(ctx context.Context, guildID, userID string, op Op) error {
	return f(ctx, guildID, userID, op)
}

// AllowAll permits everything.
var AllowAll Authorizer = AuthorizerFunc(func(context.Context, string, string, Op) error { return nil })

// VoiceInfo reports voice channel membership for vote skipping.
type VoiceInfo interface {
	// Listeners counts the non-bot members in the bot's voice channel.
	Listeners(guildID string) int
}

// Controller is the permission checked entry point used by commands,
// buttons and the dashboard.
type Controller struct {
	Registry *Registry
	Auth     Authorizer
	Voice    VoiceInfo
}

// Guard resolves the guild's session and authorizes op for userID.
func (c *Controller) Guard(ctx context.Context, guildID, userID string, op Op) (*Session, error) {
	s, err := c.Registry.Get(guildID)
	if err != nil {
		return nil, err
	}
	auth := c.Auth
	if auth == nil {
		auth = AllowAll
	}
	if err := auth.Authorize(ctx, guildID, userID, op); err != nil {
		if errors.Is(err, ErrNotPermitted) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNotPermitted, err)
	}
	return s, nil
}

type SkipOutcome struct {
	// By is "requester", "dj" or "vote".
	By   string
	Vote VoteResult
}

// Skip lets the track's requester and DJs skip outright. Everyone else
// casts a vote.
func (c *Controller) Skip(ctx context.Context, guildID, userID string) (SkipOutcome, error) {
	s, err := c.Registry.Get(guildID)
	if err != nil {
		return SkipOutcome{}, err
	}
	cur := s.Current()
	if cur == nil {
		return SkipOutcome{}, ErrNothingPlaying
	}
	if cur.Requester.ID != "" && cur.Requester.ID == userID {
		return SkipOutcome{By: "requester"}, s.Skip()
	}
	if c.Auth == nil || c.Auth.Authorize(ctx, guildID, userID, OpSkip) == nil {
		return SkipOutcome{By: "dj"}, s.Skip()
	}
	listeners := 1
	if c.Voice != nil {
		listeners = c.Voice.Listeners(guildID)
	}
	res, err := s.VoteSkip(userID, listeners)
	return SkipOutcome{By: "vote", Vote: res}, err
}
