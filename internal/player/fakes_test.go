package player

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/sonroyaalmerol/beatbox/internal/clock"
	"github.com/sonroyaalmerol/beatbox/internal/state"
)

var errNode = errors.New("node unavailable")

type fakeAudio struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (a *fakeAudio) record(op, guildID string, extra ...any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail[op] {
		return errNode
	}
	call := op + " " + guildID
	for _, e := range extra {
		call += fmt.Sprintf(" %v", e)
	}
	a.calls = append(a.calls, call)
	return nil
}

func (a *fakeAudio) failOn(op string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail == nil {
		a.fail = make(map[string]bool)
	}
	a.fail[op] = true
}

func (a *fakeAudio) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *fakeAudio) Play(g string, t state.Track, start int64, vol int) error {
	return a.record("play", g, t.ID, start)
}
func (a *fakeAudio) Pause(g string) error            { return a.record("pause", g) }
func (a *fakeAudio) Resume(g string) error           { return a.record("resume", g) }
func (a *fakeAudio) Stop(g string) error             { return a.record("stop", g) }
func (a *fakeAudio) Seek(g string, ms int64) error   { return a.record("seek", g, ms) }
func (a *fakeAudio) Volume(g string, v int) error    { return a.record("volume", g, v) }
func (a *fakeAudio) Disconnect(g string) error       { return a.record("disconnect", g) }

type recorder struct {
	mu     sync.Mutex
	states []state.PlayerState
	queues []state.PlayerState
	errs   []string
}

func (r *recorder) BroadcastState(ps state.PlayerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, ps)
}

func (r *recorder) BroadcastQueue(ps state.PlayerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues = append(r.queues, ps)
}

func (r *recorder) BroadcastError(_ string, message string, _ *state.Track) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, message)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states) + len(r.queues)
}

func (r *recorder) last() state.PlayerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best state.PlayerState
	for _, ps := range append(append([]state.PlayerState(nil), r.states...), r.queues...) {
		if ps.Seq > best.Seq {
			best = ps
		}
	}
	return best
}

type harness struct {
	reg   *Registry
	audio *fakeAudio
	out   *recorder
	clk   *clock.Fake
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		audio: &fakeAudio{},
		out:   &recorder{},
		clk:   clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	opts := DefaultOptions()
	opts.Audio = h.audio
	opts.Broadcaster = h.out
	opts.Clock = h.clk
	opts.Rand = rand.New(rand.NewPCG(1, 2))
	for _, m := range mutate {
		m(&opts)
	}
	h.reg = NewRegistry(opts)
	return h
}

func (h *harness) session(t *testing.T) *Session {
	t.Helper()
	s, _ := h.reg.Create("g1", SessionConfig{})
	return s
}

func tr(id string) state.Track {
	return state.Track{
		ID:         id,
		Title:      "track " + id,
		Duration:   200000,
		URI:        "https://youtu.be/" + id,
		SourceName: "youtube",
		Requester:  state.Requester{ID: "u-" + id, Username: "user " + id},
	}
}

func mustAdd(t *testing.T, s *Session, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := s.QueueAdd(tr(id), -1); err != nil {
			t.Fatalf("QueueAdd(%s): %v", id, err)
		}
	}
}

func queueIDs(ps state.PlayerState) []string {
	ids := make([]string, len(ps.Queue))
	for i, qt := range ps.Queue {
		ids[i] = qt.ID
	}
	return ids
}

func assertDense(t *testing.T, ps state.PlayerState) {
	t.Helper()
	for i, qt := range ps.Queue {
		if qt.Position != i {
			t.Fatalf("queue[%d].Position = %d", i, qt.Position)
		}
	}
}

func currentID(ps state.PlayerState) string {
	if ps.CurrentTrack == nil {
		return ""
	}
	return ps.CurrentTrack.ID
}
