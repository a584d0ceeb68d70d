package player

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sonroyaalmerol/beatbox/internal/clock"
	"github.com/sonroyaalmerol/beatbox/internal/state"
)

type Options struct {
	Audio             Audio
	Broadcaster       Broadcaster
	Clock             clock.Clock
	DisconnectTimeout time.Duration
	// RequeueOnRepeat appends the finished track to the queue tail on skip
	// when repeat mode is queue.
	RequeueOnRepeat bool
	MaxQueue        int
	Rand            *rand.Rand
	Hooks           Hooks
	Logger          *slog.Logger
}

// DefaultOptions returns the settings used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		DisconnectTimeout: DefaultDisconnectTimeout,
		RequeueOnRepeat:   true,
		MaxQueue:          state.MaxQueueSize,
	}
}

// Registry owns the live sessions, one per guild.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	opts  Options
	hooks Hooks
	seq   atomic.Uint64
}

func NewRegistry(opts Options) *Registry {
	if opts.Audio == nil {
		opts.Audio = nopAudio{}
	}
	if opts.Broadcaster == nil {
		opts.Broadcaster = nopBroadcaster{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.DisconnectTimeout <= 0 {
		opts.DisconnectTimeout = DefaultDisconnectTimeout
	}
	if opts.MaxQueue <= 0 {
		opts.MaxQueue = state.MaxQueueSize
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		opts:     opts,
		hooks:    opts.Hooks,
	}
}

// SetBroadcaster swaps the broadcaster for sessions created afterwards. It
// exists because the dashboard hub needs the registry to be built first.
func (r *Registry) SetBroadcaster(b Broadcaster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.Broadcaster = b
}

func (r *Registry) SetAudio(a Audio) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.Audio = a
}

func (r *Registry) nextSeq() uint64 { return r.seq.Add(1) }

// Get returns the guild's session or ErrNoActivePlayer.
func (r *Registry) Get(guildID string) (*Session, error) {
	if s := r.Peek(guildID); s != nil {
		return s, nil
	}
	return nil, ErrNoActivePlayer
}

func (r *Registry) Peek(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[guildID]
}

// Create returns the live session for guildID, creating it with cfg when
// there is none. cfg is ignored for an existing session.
func (r *Registry) Create(guildID string, cfg SessionConfig) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[guildID]; ok {
		return s, false
	}

	ps := state.Idle(guildID)
	if cfg.Volume > 0 && cfg.Volume <= state.MaxVolume {
		ps.Volume = cfg.Volume
	}
	if m, err := state.ParseRepeatMode(string(cfg.RepeatMode)); err == nil {
		ps.RepeatMode = m
	}
	s := &Session{
		reg:             r,
		guildID:         guildID,
		audio:           r.opts.Audio,
		out:             r.opts.Broadcaster,
		clk:             r.opts.Clock,
		log:             r.opts.Logger,
		rnd:             rand.New(rand.NewPCG(r.opts.Rand.Uint64(), r.opts.Rand.Uint64())),
		requeue:         r.opts.RequeueOnRepeat,
		maxQueue:        r.opts.MaxQueue,
		idleAfter:       r.opts.DisconnectTimeout,
		textChanID:      cfg.TextChannelID,
		ps:              ps,
		voiceChanID:     cfg.VoiceChannelID,
		twentyFourSeven: cfg.TwentyFourSeven,
	}
	r.sessions[guildID] = s
	r.opts.Logger.Debug("player created", "guildID", guildID)
	return s, true
}

// Snapshot returns the guild's state, or the idle state if no session exists.
func (r *Registry) Snapshot(guildID string) state.PlayerState {
	if s := r.Peek(guildID); s != nil {
		return s.State()
	}
	return state.Idle(guildID)
}

func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Remove destroys the guild's session if there is one.
func (r *Registry) Remove(guildID, reason string) bool {
	s := r.Peek(guildID)
	if s == nil {
		return false
	}
	s.Destroy(reason)
	return true
}

// remove drops s from the map unless a newer session already replaced it.
func (r *Registry) remove(guildID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[guildID]; ok && cur == s {
		delete(r.sessions, guildID)
	}
}

// Shutdown destroys every session.
func (r *Registry) Shutdown() {
	for _, s := range r.Sessions() {
		s.Destroy("shutdown")
	}
}

// The methods below route audio node events to the owning session.

func (r *Registry) OnTrackEnd(guildID, reason string) {
	if s := r.Peek(guildID); s != nil {
		s.HandleTrackEnd(reason)
	}
}

func (r *Registry) OnTrackError(guildID, message string) {
	if s := r.Peek(guildID); s != nil {
		s.HandleTrackError(message)
	}
}

func (r *Registry) OnPlayerUpdate(guildID string, positionMs int64) {
	if s := r.Peek(guildID); s != nil {
		s.HandlePosition(positionMs)
	}
}

func (r *Registry) OnVoiceClosed(guildID string) {
	if s := r.Peek(guildID); s != nil {
		s.HandleVoiceClosed()
	}
}
