// Package mirror keeps a dashboard's local copy of a guild's player state.
// User actions are predicted locally and applied at once; server broadcasts
// that arrive shortly after an action are held back for a grace window so a
// stale in-flight state does not undo the prediction.
package mirror

import (
	"slices"
	"sync"
	"time"

	"github.com/sonroyaalmerol/beatbox/internal/clock"
	"github.com/sonroyaalmerol/beatbox/internal/state"
)

const DefaultGrace = 800 * time.Millisecond

// Prediction computes the expected next state from the current one. It must
// not modify its argument.
type Prediction func(state.PlayerState) state.PlayerState

type Store struct {
	clk   clock.Clock
	grace time.Duration

	mu        sync.Mutex
	current   state.PlayerState
	lastSeq   uint64
	actedAt   time.Time
	acted     bool
	buffered  *state.PlayerState
	flush     clock.Timer
	flushGen  uint64
	listeners []func(state.PlayerState)
}

// NewStore returns a store showing the idle state for guildID. A zero grace
// uses DefaultGrace and a nil clock uses wall time.
func NewStore(guildID string, clk clock.Clock, grace time.Duration) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Store{clk: clk, grace: grace, current: state.Idle(guildID)}
}

func (s *Store) State() state.PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Buffered returns the held back server state, if any.
func (s *Store) Buffered() (state.PlayerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffered == nil {
		return state.PlayerState{}, false
	}
	return s.buffered.Clone(), true
}

// OnChange registers fn to be called with every newly displayed state.
func (s *Store) OnChange(fn func(state.PlayerState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// ApplyOptimistic displays predict(current) immediately, starts a new grace
// window and discards any buffered server state.
func (s *Store) ApplyOptimistic(predict Prediction) {
	s.mu.Lock()
	next := predict(s.current.Clone())
	next.Seq = s.current.Seq
	s.current = next
	s.actedAt = s.clk.Now()
	s.acted = true
	s.buffered = nil
	if s.flush != nil {
		s.flush.Stop()
	}
	// a fired timer's callback may still be waiting on mu; the generation
	// tells it apart from the live one
	s.flushGen++
	gen := s.flushGen
	s.flush = s.clk.AfterFunc(s.grace, func() { s.flushBuffered(gen) })
	s.mu.Unlock()
	s.notify(next)
}

// Receive takes a server broadcast. Within the grace window it replaces the
// buffered state; outside it is displayed at once. States carrying a
// sequence number not newer than one already seen are dropped.
func (s *Store) Receive(ps state.PlayerState) {
	s.mu.Lock()
	if ps.Seq != 0 {
		if ps.Seq <= s.lastSeq {
			s.mu.Unlock()
			return
		}
		s.lastSeq = ps.Seq
	}
	if s.acted && s.clk.Now().Sub(s.actedAt) < s.grace {
		held := ps.Clone()
		s.buffered = &held
		s.mu.Unlock()
		return
	}
	s.buffered = nil
	s.current = ps.Clone()
	out := s.current.Clone()
	s.mu.Unlock()
	s.notify(out)
}

func (s *Store) flushBuffered(gen uint64) {
	s.mu.Lock()
	if gen != s.flushGen {
		s.mu.Unlock()
		return
	}
	s.flush = nil
	if s.buffered == nil {
		s.mu.Unlock()
		return
	}
	s.current = *s.buffered
	s.buffered = nil
	out := s.current.Clone()
	s.mu.Unlock()
	s.notify(out)
}

// Reset replaces everything with ps, as when (re)subscribing to a guild.
func (s *Store) Reset(ps state.PlayerState) {
	s.mu.Lock()
	if s.flush != nil {
		s.flush.Stop()
		s.flush = nil
	}
	s.flushGen++
	s.current = ps.Clone()
	s.lastSeq = ps.Seq
	s.acted = false
	s.buffered = nil
	out := s.current.Clone()
	s.mu.Unlock()
	s.notify(out)
}

// Close stops the pending flush timer.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flush != nil {
		s.flush.Stop()
		s.flush = nil
	}
	s.flushGen++
}

func (s *Store) notify(ps state.PlayerState) {
	s.mu.Lock()
	fns := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ps)
	}
}
