// Package engagement keeps per-user usage counters and per-guild listening
// sessions, and sends a one-time promo DM to regular users.
package engagement

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sonroyaalmerol/beatbox/internal/clock"
	"github.com/sonroyaalmerol/beatbox/internal/repository"
	"github.com/sonroyaalmerol/beatbox/internal/state"
)

const (
	InteractionThreshold = 30
	VoiceTimeThreshold   = 600 // seconds
	FlushInterval        = 2 * time.Minute
	storeTimeout         = 5 * time.Second
)

type Store interface {
	IncrementInteractions(ctx context.Context, user string) (repository.Engagement, error)
	AddVoiceTime(ctx context.Context, user string, seconds int64) (repository.Engagement, error)
	MarkPromoSent(ctx context.Context, user string, at time.Time) (bool, error)
	RecordPlay(ctx context.Context, guild string, t state.Track, at time.Time) error
	StartListeningSession(ctx context.Context, guild string, at time.Time) (int64, error)
	IncrementSessionTracks(ctx context.Context, id int64) error
	EndListeningSession(ctx context.Context, id int64, at time.Time) error
}

// Promoter delivers the promo message. It is only called after the user
// was marked as promoted.
type Promoter func(ctx context.Context, userID string) error

type voiceEntry struct {
	joined time.Time
	timer  clock.Timer
	gen    uint64
}

type Tracker struct {
	store   Store
	clk     clock.Clock
	promote Promoter
	log     *slog.Logger

	mu       sync.Mutex
	voice    map[string]*voiceEntry
	sessions map[string]int64
	gen      uint64
}

func New(store Store, clk clock.Clock, promote Promoter, log *slog.Logger) *Tracker {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		store:    store,
		clk:      clk,
		promote:  promote,
		log:      log,
		voice:    make(map[string]*voiceEntry),
		sessions: make(map[string]int64),
	}
}

func (t *Tracker) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

// TrackInteraction counts a slash command or button press.
func (t *Tracker) TrackInteraction(userID string) {
	ctx, cancel := t.ctx()
	defer cancel()
	e, err := t.store.IncrementInteractions(ctx, userID)
	if err != nil {
		t.log.Error("engagement: track interaction failed", "userID", userID, "err", err)
		return
	}
	if e.InteractionCount >= InteractionThreshold {
		t.maybePromote(ctx, e)
	}
}

// VoiceJoin records that a user joined the bot's channel. Accumulated time
// is flushed every FlushInterval while they stay.
func (t *Tracker) VoiceJoin(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.voice[userID]; ok && old.timer != nil {
		old.timer.Stop()
	}
	t.gen++
	e := &voiceEntry{joined: t.clk.Now(), gen: t.gen}
	t.voice[userID] = e
	t.armLocked(userID, e)
}

func (t *Tracker) armLocked(userID string, e *voiceEntry) {
	gen := e.gen
	e.timer = t.clk.AfterFunc(FlushInterval, func() { t.flush(userID, gen) })
}

func (t *Tracker) flush(userID string, gen uint64) {
	t.mu.Lock()
	e, ok := t.voice[userID]
	if !ok || e.gen != gen {
		t.mu.Unlock()
		return
	}
	secs := t.takeElapsedLocked(e)
	t.armLocked(userID, e)
	t.mu.Unlock()

	if secs > 0 {
		t.addVoiceTime(userID, secs)
	}
}

// takeElapsedLocked returns whole seconds since the last flush and moves
// the mark forward by that much.
func (t *Tracker) takeElapsedLocked(e *voiceEntry) int64 {
	secs := int64(t.clk.Now().Sub(e.joined) / time.Second)
	if secs <= 0 {
		return 0
	}
	e.joined = e.joined.Add(time.Duration(secs) * time.Second)
	return secs
}

func (t *Tracker) VoiceLeave(userID string) {
	t.mu.Lock()
	e, ok := t.voice[userID]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.voice, userID)
	if e.timer != nil {
		e.timer.Stop()
	}
	secs := t.takeElapsedLocked(e)
	t.mu.Unlock()

	if secs > 0 {
		t.addVoiceTime(userID, secs)
	}
}

// InVoice reports whether the user is being timed.
func (t *Tracker) InVoice(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.voice[userID]
	return ok
}

func (t *Tracker) addVoiceTime(userID string, secs int64) {
	ctx, cancel := t.ctx()
	defer cancel()
	e, err := t.store.AddVoiceTime(ctx, userID, secs)
	if err != nil {
		t.log.Error("engagement: voice time flush failed", "userID", userID, "err", err)
		return
	}
	if e.TotalVoiceTime >= VoiceTimeThreshold {
		t.maybePromote(ctx, e)
	}
}

func (t *Tracker) maybePromote(ctx context.Context, e repository.Engagement) {
	if e.PromoSent || t.promote == nil {
		return
	}
	// marked first so concurrent triggers send at most once
	marked, err := t.store.MarkPromoSent(ctx, e.UserID, t.clk.Now())
	if err != nil {
		t.log.Error("engagement: mark promo failed", "userID", e.UserID, "err", err)
		return
	}
	if !marked {
		return
	}
	if err := t.promote(ctx, e.UserID); err != nil {
		t.log.Warn("engagement: promo not delivered", "userID", e.UserID, "err", err)
		return
	}
	t.log.Info("engagement: promo sent", "userID", e.UserID)
}

// SessionStarted opens a listening session for the guild unless one is
// already open.
func (t *Tracker) SessionStarted(guildID string) {
	t.mu.Lock()
	_, open := t.sessions[guildID]
	t.mu.Unlock()
	if open {
		return
	}
	ctx, cancel := t.ctx()
	defer cancel()
	id, err := t.store.StartListeningSession(ctx, guildID, t.clk.Now())
	if err != nil {
		t.log.Error("engagement: start session failed", "guildID", guildID, "err", err)
		return
	}
	t.mu.Lock()
	t.sessions[guildID] = id
	t.mu.Unlock()
}

// TrackPlayed records a play and counts it against the open session,
// opening one if needed.
func (t *Tracker) TrackPlayed(guildID string, tr state.Track) {
	t.SessionStarted(guildID)
	ctx, cancel := t.ctx()
	defer cancel()
	if err := t.store.RecordPlay(ctx, guildID, tr, t.clk.Now()); err != nil {
		t.log.Error("engagement: record play failed", "guildID", guildID, "err", err)
	}
	t.mu.Lock()
	id, ok := t.sessions[guildID]
	t.mu.Unlock()
	if !ok {
		return
	}
	if err := t.store.IncrementSessionTracks(ctx, id); err != nil {
		t.log.Error("engagement: session track count failed", "guildID", guildID, "err", err)
	}
}

func (t *Tracker) SessionEnded(guildID string) {
	t.mu.Lock()
	id, ok := t.sessions[guildID]
	delete(t.sessions, guildID)
	t.mu.Unlock()
	if !ok {
		return
	}
	ctx, cancel := t.ctx()
	defer cancel()
	if err := t.store.EndListeningSession(ctx, id, t.clk.Now()); err != nil {
		t.log.Error("engagement: end session failed", "guildID", guildID, "err", err)
	}
}

// Close flushes everyone still in voice and ends open sessions.
func (t *Tracker) Close() {
	t.mu.Lock()
	users := make([]string, 0, len(t.voice))
	for u := range t.voice {
		users = append(users, u)
	}
	guilds := make([]string, 0, len(t.sessions))
	for g := range t.sessions {
		guilds = append(guilds, g)
	}
	t.mu.Unlock()

	for _, u := range users {
		t.VoiceLeave(u)
	}
	for _, g := range guilds {
		t.SessionEnded(g)
	}
}
