package player

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/sonroyaalmerol/beatbox/internal/clock"
	"github.com/sonroyaalmerol/beatbox/internal/state"
	"github.com/sonroyaalmerol/beatbox/internal/utils"
)

const (
	HistoryLimit             = 20
	DefaultDisconnectTimeout = 5 * time.Minute
)

// Session is the canonical player for one guild. Every exported method
// serializes on the session mutex and broadcasts the resulting state before
// returning, so broadcasts for a guild are strictly ordered.
type Session struct {
	reg     *Registry
	guildID string
	audio   Audio
	out     Broadcaster
	clk     clock.Clock
	log     *slog.Logger
	rnd     *rand.Rand

	requeue    bool
	maxQueue   int
	idleAfter  time.Duration
	textChanID string

	mu sync.Mutex
	ps state.PlayerState

	history         []state.Track
	suppressHistory bool
	votes           map[string]struct{}

	voiceChanID     string
	twentyFourSeven bool
	disconnect      clock.Timer
	disconnectGen   uint64
	pausedForIdle   bool

	destroyed bool
	after     []func()
}

// SessionConfig carries per-guild settings applied at creation.
type SessionConfig struct {
	Volume          int
	RepeatMode      state.RepeatMode
	TwentyFourSeven bool
	VoiceChannelID  string
	TextChannelID   string
}

func (s *Session) lock() { s.mu.Lock() }

// unlock releases the mutex and then runs any deferred hooks.
func (s *Session) unlock() {
	fns := s.after
	s.after = nil
	s.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

func (s *Session) GuildID() string { return s.guildID }

func (s *Session) State() state.PlayerState {
	s.lock()
	defer s.unlock()
	return s.ps.Clone()
}

func (s *Session) Current() *state.Track {
	s.lock()
	defer s.unlock()
	if s.ps.CurrentTrack == nil {
		return nil
	}
	t := *s.ps.CurrentTrack
	return &t
}

func (s *Session) History() []state.Track {
	s.lock()
	defer s.unlock()
	return slices.Clone(s.history)
}

func (s *Session) Destroyed() bool {
	s.lock()
	defer s.unlock()
	return s.destroyed
}

func (s *Session) VoiceChannelID() string {
	s.lock()
	defer s.unlock()
	return s.voiceChanID
}

func (s *Session) SetVoiceChannel(channelID string) {
	s.lock()
	defer s.unlock()
	s.voiceChanID = channelID
}

func (s *Session) TextChannelID() string { return s.textChanID }

func (s *Session) publishLocked() {
	s.ps.Seq = s.reg.nextSeq()
	s.out.BroadcastState(s.ps.Clone())
}

func (s *Session) publishQueueLocked() {
	s.ps.Seq = s.reg.nextSeq()
	s.out.BroadcastQueue(s.ps.Clone())
}

func (s *Session) checkLocked() error {
	if s.destroyed {
		return ErrDestroyed
	}
	return nil
}

func (s *Session) Pause() error {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	if s.ps.CurrentTrack == nil {
		return ErrNothingPlaying
	}
	if s.ps.Paused {
		return nil
	}
	if err := s.audio.Pause(s.guildID); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	s.ps.Paused = true
	s.ps.Playing = false
	s.pausedForIdle = false
	s.publishLocked()
	return nil
}

func (s *Session) Resume() error {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	if s.ps.CurrentTrack == nil {
		return ErrNothingPlaying
	}
	if !s.ps.Paused {
		return nil
	}
	if err := s.audio.Resume(s.guildID); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	s.ps.Paused = false
	s.ps.Playing = true
	s.pausedForIdle = false
	s.cancelTimerLocked()
	s.publishLocked()
	return nil
}

// Skip advances per the repeat mode.
func (s *Session) Skip() error {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	return s.skipLocked()
}

func (s *Session) skipLocked() error {
	if s.ps.CurrentTrack == nil {
		return ErrNothingPlaying
	}
	finished := *s.ps.CurrentTrack
	next := state.Advance(s.ps, s.requeue, s.clk.Now())
	if s.ps.RepeatMode == state.RepeatTrack {
		return s.commitLocked(next, nil)
	}
	return s.commitLocked(next, &finished)
}

// commitLocked starts next's current track on the audio node (or stops it
// when next is idle) and only then replaces the canonical state.
func (s *Session) commitLocked(next state.PlayerState, finished *state.Track) error {
	if next.CurrentTrack != nil {
		if err := s.audio.Play(s.guildID, *next.CurrentTrack, next.Position, next.Volume); err != nil {
			return fmt.Errorf("play: %w", err)
		}
	} else if err := s.audio.Stop(s.guildID); err != nil {
		return fmt.Errorf("stop: %w", err)
	}

	if finished != nil && !s.suppressHistory {
		s.pushHistoryLocked(*finished)
	}
	s.suppressHistory = false
	clear(s.votes)
	if next.CurrentTrack != nil {
		s.pausedForIdle = false
	}
	s.ps = next
	s.publishLocked()

	if next.CurrentTrack != nil && s.reg.hooks.TrackStarted != nil {
		t := *next.CurrentTrack
		s.after = append(s.after, func() { s.reg.hooks.TrackStarted(s.guildID, t) })
	}
	return nil
}

func (s *Session) pushHistoryLocked(t state.Track) {
	s.history = append(s.history, t)
	if over := len(s.history) - HistoryLimit; over > 0 {
		s.history = slices.Delete(s.history, 0, over)
	}
}

// Previous replays the most recent history entry. The current track goes
// back to the head of the queue and is not recorded in history.
func (s *Session) Previous() error {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	if len(s.history) == 0 {
		return ErrEmptyHistory
	}
	prev := s.history[len(s.history)-1]
	now := s.clk.Now()

	staged := s.ps.Clone()
	var finished *state.Track
	if staged.CurrentTrack != nil {
		cur := *staged.CurrentTrack
		finished = &cur
		staged.Queue = slices.Insert(staged.Queue, 0, state.Enqueued(cur, now))
	}
	staged.Queue = slices.Insert(staged.Queue, 0, state.Enqueued(prev, now))

	// internal skip to the head, independent of repeat mode
	head := staged.Queue[0].Track
	staged.Queue = staged.Queue[1:]
	state.Reindex(staged.Queue)
	staged.CurrentTrack = &head
	staged.Position = 0
	staged.Playing = true
	staged.Paused = false

	s.suppressHistory = finished != nil
	if err := s.commitLocked(staged, finished); err != nil {
		s.suppressHistory = false
		return err
	}
	s.history = s.history[:len(s.history)-1]
	return nil
}

// Stop clears everything and destroys the session.
func (s *Session) Stop() error {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	s.destroyLocked("stop")
	return nil
}

// Destroy tears the session down. It is safe to call more than once.
func (s *Session) Destroy(reason string) {
	s.lock()
	defer s.unlock()
	s.destroyLocked(reason)
}

func (s *Session) destroyLocked(reason string) {
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.cancelTimerLocked()
	final := s.ps.Clone()

	if err := s.audio.Stop(s.guildID); err != nil {
		s.log.Debug("audio stop on destroy", "guildID", s.guildID, "err", err)
	}
	if err := s.audio.Disconnect(s.guildID); err != nil {
		s.log.Debug("audio disconnect on destroy", "guildID", s.guildID, "err", err)
	}

	s.votes = nil
	s.history = nil
	s.suppressHistory = false
	s.ps = state.Stopped(s.ps)
	s.publishLocked()

	s.log.Info("player destroyed", "guildID", s.guildID, "reason", reason)
	s.after = append(s.after, func() {
		s.reg.remove(s.guildID, s)
		if s.reg.hooks.Destroyed != nil {
			s.reg.hooks.Destroyed(s.guildID, final, reason)
		}
	})
}

func (s *Session) SetVolume(v int) error {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	if v < 0 || v > state.MaxVolume {
		return fmt.Errorf("volume %d: %w", v, ErrOutOfRange)
	}
	if err := s.audio.Volume(s.guildID, v); err != nil {
		return fmt.Errorf("volume: %w", err)
	}
	s.ps.Volume = v
	s.publishLocked()
	return nil
}

// Seek rejects positions past the track end instead of clamping them.
func (s *Session) Seek(ms int64) error {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	cur := s.ps.CurrentTrack
	if cur == nil {
		return ErrNothingPlaying
	}
	if ms < 0 || ms > cur.Duration {
		return fmt.Errorf("seek to %dms of %dms: %w", ms, cur.Duration, ErrOutOfRange)
	}
	if err := s.audio.Seek(s.guildID, ms); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	s.ps.Position = ms
	s.publishLocked()
	return nil
}

// SeekBy moves the position by delta, stopping at either end of the track.
// It backs the forward and rewind commands, which are relative by nature.
func (s *Session) SeekBy(delta time.Duration) (int64, error) {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return 0, err
	}
	cur := s.ps.CurrentTrack
	if cur == nil {
		return 0, ErrNothingPlaying
	}
	target := max(0, min(s.ps.Position+delta.Milliseconds(), cur.Duration))
	if err := s.audio.Seek(s.guildID, target); err != nil {
		return 0, fmt.Errorf("seek: %w", err)
	}
	s.ps.Position = target
	s.publishLocked()
	return target, nil
}

func (s *Session) SetRepeat(mode state.RepeatMode) error {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	if _, err := state.ParseRepeatMode(string(mode)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRepeatMode, mode)
	}
	s.ps.RepeatMode = mode
	s.publishLocked()
	return nil
}

func (s *Session) Shuffle() error {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	if len(s.ps.Queue) < 2 {
		return ErrInsufficientTracks
	}
	utils.ShuffleSlice(s.ps.Queue, s.rnd)
	state.Reindex(s.ps.Queue)
	s.publishQueueLocked()
	return nil
}

// QueueAdd inserts t at index, or appends when index is -1. When nothing is
// loaded, t starts playing immediately and the returned position is -1.
func (s *Session) QueueAdd(t state.Track, index int) (int, error) {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return 0, err
	}
	if s.ps.CurrentTrack == nil {
		next := s.ps.Clone()
		next.CurrentTrack = &t
		next.Position = 0
		next.Playing = true
		next.Paused = false
		s.cancelTimerLocked()
		if err := s.commitLocked(next, nil); err != nil {
			return 0, err
		}
		return -1, nil
	}
	if len(s.ps.Queue) >= s.maxQueue {
		return 0, ErrQueueFull
	}
	if index == -1 {
		index = len(s.ps.Queue)
	}
	if index < 0 || index > len(s.ps.Queue) {
		return 0, fmt.Errorf("insert at %d: %w", index, ErrOutOfBounds)
	}
	s.ps.Queue = slices.Insert(s.ps.Queue, index, state.Enqueued(t, s.clk.Now()))
	state.Reindex(s.ps.Queue)
	if s.cancelDisconnectLocked() {
		s.publishLocked()
	} else {
		s.publishQueueLocked()
	}
	return index, nil
}

// QueueAddMany appends tracks up to the queue limit with a single broadcast.
// If nothing is loaded the first track starts playing.
func (s *Session) QueueAddMany(tracks []state.Track) (int, error) {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return 0, err
	}
	if len(tracks) == 0 {
		return 0, nil
	}
	next := s.ps.Clone()
	now := s.clk.Now()
	added := 0
	starting := next.CurrentTrack == nil
	for _, t := range tracks {
		if next.CurrentTrack == nil {
			tt := t
			next.CurrentTrack = &tt
			next.Position = 0
			next.Playing = true
			next.Paused = false
			added++
			continue
		}
		if len(next.Queue) >= s.maxQueue {
			break
		}
		next.Queue = append(next.Queue, state.Enqueued(t, now))
		added++
	}
	if added == 0 {
		return 0, ErrQueueFull
	}
	state.Reindex(next.Queue)
	if starting {
		s.cancelTimerLocked()
		if err := s.commitLocked(next, nil); err != nil {
			return 0, err
		}
		return added, nil
	}
	s.ps = next
	if s.cancelDisconnectLocked() {
		s.publishLocked()
	} else {
		s.publishQueueLocked()
	}
	return added, nil
}

func (s *Session) QueueRemove(index int) (state.Track, error) {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return state.Track{}, err
	}
	if len(s.ps.Queue) == 0 {
		return state.Track{}, ErrEmptyQueue
	}
	if index < 0 || index >= len(s.ps.Queue) {
		return state.Track{}, fmt.Errorf("remove %d: %w", index, ErrOutOfBounds)
	}
	removed := s.ps.Queue[index].Track
	s.ps.Queue = slices.Delete(s.ps.Queue, index, index+1)
	state.Reindex(s.ps.Queue)
	s.publishQueueLocked()
	return removed, nil
}

func (s *Session) QueueMove(from, to int) (state.Track, error) {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return state.Track{}, err
	}
	n := len(s.ps.Queue)
	if n == 0 {
		return state.Track{}, ErrEmptyQueue
	}
	if from < 0 || from >= n || to < 0 || to >= n {
		return state.Track{}, fmt.Errorf("move %d to %d: %w", from, to, ErrOutOfBounds)
	}
	item := s.ps.Queue[from]
	s.ps.Queue = slices.Delete(s.ps.Queue, from, from+1)
	s.ps.Queue = slices.Insert(s.ps.Queue, to, item)
	state.Reindex(s.ps.Queue)
	s.publishQueueLocked()
	return item.Track, nil
}

func (s *Session) QueueClear() (int, error) {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return 0, err
	}
	n := len(s.ps.Queue)
	if n == 0 {
		return 0, ErrEmptyQueue
	}
	s.ps.Queue = []state.QueueTrack{}
	s.publishQueueLocked()
	return n, nil
}

// RemoveWhere drops every queued track for which drop reports true. drop is
// called in queue order.
func (s *Session) RemoveWhere(drop func(state.QueueTrack) bool) (int, error) {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return 0, err
	}
	if len(s.ps.Queue) == 0 {
		return 0, ErrEmptyQueue
	}
	kept := s.ps.Queue[:0:0]
	for _, qt := range s.ps.Queue {
		if !drop(qt) {
			kept = append(kept, qt)
		}
	}
	removed := len(s.ps.Queue) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	s.ps.Queue = kept
	state.Reindex(s.ps.Queue)
	s.publishQueueLocked()
	return removed, nil
}

// RemoveDuplicates keeps the first queued occurrence of every URI.
func (s *Session) RemoveDuplicates() (int, error) {
	seen := make(map[string]struct{})
	return s.RemoveWhere(func(qt state.QueueTrack) bool {
		if _, ok := seen[qt.URI]; ok {
			return true
		}
		seen[qt.URI] = struct{}{}
		return false
	})
}

// HandleTrackEnd reacts to the audio node reporting the end of the current
// track. Only natural completion advances; ends we caused are ignored.
func (s *Session) HandleTrackEnd(reason string) {
	s.lock()
	defer s.unlock()
	if s.destroyed || reason != TrackEndFinished {
		return
	}
	if s.ps.CurrentTrack == nil {
		return
	}
	if err := s.skipLocked(); err != nil {
		s.log.Warn("advance after track end", "guildID", s.guildID, "err", err)
	}
}

// HandleTrackError reports the failure to subscribers and moves on.
func (s *Session) HandleTrackError(message string) {
	s.lock()
	defer s.unlock()
	if s.destroyed || s.ps.CurrentTrack == nil {
		return
	}
	failed := *s.ps.CurrentTrack
	s.out.BroadcastError(s.guildID, message, &failed)
	s.log.Warn("track error", "guildID", s.guildID, "title", failed.Title, "err", message)

	// a broken track is never replayed or requeued
	next := state.Advance(withRepeat(s.ps, state.RepeatOff), false, s.clk.Now())
	next.RepeatMode = s.ps.RepeatMode
	if err := s.commitLocked(next, &failed); err != nil {
		s.log.Warn("advance after track error", "guildID", s.guildID, "err", err)
	}
}

func withRepeat(ps state.PlayerState, m state.RepeatMode) state.PlayerState {
	out := ps.Clone()
	out.RepeatMode = m
	return out
}

// HandlePosition records a position report from the audio node.
func (s *Session) HandlePosition(ms int64) {
	s.lock()
	defer s.unlock()
	if s.destroyed || s.ps.CurrentTrack == nil {
		return
	}
	if d := s.ps.CurrentTrack.Duration; d > 0 && ms > d {
		ms = d
	}
	if ms < 0 || ms == s.ps.Position {
		return
	}
	s.ps.Position = ms
	s.publishLocked()
}

// Track end reasons reported by the audio node.
const (
	TrackEndFinished = "finished"
	TrackEndStopped  = "stopped"
	TrackEndReplaced = "replaced"
	TrackEndError    = "error"
	TrackEndCleanup  = "cleanup"
)
