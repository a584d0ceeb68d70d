package mirror

import (
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/sonroyaalmerol/beatbox/internal/state"
)

func ids(ps state.PlayerState) []string {
	out := make([]string, len(ps.Queue))
	for i, qt := range ps.Queue {
		out[i] = qt.ID
	}
	return out
}

func dense(t *testing.T, ps state.PlayerState) {
	t.Helper()
	for i, qt := range ps.Queue {
		if qt.Position != i {
			t.Fatalf("queue[%d].Position = %d", i, qt.Position)
		}
	}
}

func TestPredictSkip(t *testing.T) {
	now := time.Unix(0, 0)
	tests := []struct {
		name      string
		mode      state.RepeatMode
		queue     []string
		wantCur   string
		wantQueue []string
	}{
		{"off", state.RepeatOff, []string{"b", "c"}, "b", []string{"c"}},
		{"off empty", state.RepeatOff, nil, "", []string{}},
		{"track", state.RepeatTrack, []string{"b"}, "a", []string{"b"}},
		{"queue", state.RepeatQueue, []string{"b"}, "b", []string{"a"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ps := active(1, "a", tc.queue...)
			ps.RepeatMode = tc.mode
			ps.Position = 5000
			got := PredictSkip(true, now)(ps)
			cur := ""
			if got.CurrentTrack != nil {
				cur = got.CurrentTrack.ID
			}
			if cur != tc.wantCur {
				t.Fatalf("current = %q, want %q", cur, tc.wantCur)
			}
			if !slices.Equal(ids(got), tc.wantQueue) {
				t.Fatalf("queue = %v, want %v", ids(got), tc.wantQueue)
			}
			if got.Position != 0 {
				t.Fatalf("position = %d", got.Position)
			}
			if cur == "" && got.Playing {
				t.Fatal("idle state still playing")
			}
			dense(t, got)
		})
	}
}

func TestPredictRejectsInvalidInput(t *testing.T) {
	ps := active(1, "a", "b", "c")
	for name, p := range map[string]Prediction{
		"volume":  PredictVolume(150),
		"seek":    PredictSeek(ps.CurrentTrack.Duration + 1),
		"remove":  PredictRemove(3),
		"move":    PredictMove(0, 5),
		"repeat":  PredictRepeat("always"),
		"shuffle": PredictShuffle(rand.New(rand.NewPCG(1, 1))),
	} {
		in := ps
		if name == "shuffle" {
			in = active(1, "a", "b")
		}
		got := p(in)
		if !slices.Equal(ids(got), ids(in)) || got.Volume != in.Volume || got.Position != in.Position || got.RepeatMode != in.RepeatMode {
			t.Errorf("%s changed the state", name)
		}
	}
}

func TestPredictQueueEdits(t *testing.T) {
	ps := active(1, "a", "b", "c", "d")

	got := PredictRemove(1)(ps)
	if want := []string{"b", "d"}; !slices.Equal(ids(got), want) {
		t.Fatalf("remove = %v, want %v", ids(got), want)
	}
	dense(t, got)
	if !slices.Equal(ids(ps), []string{"b", "c", "d"}) {
		t.Fatal("prediction mutated its input")
	}

	got = PredictMove(2, 0)(ps)
	if want := []string{"d", "b", "c"}; !slices.Equal(ids(got), want) {
		t.Fatalf("move = %v, want %v", ids(got), want)
	}
	dense(t, got)

	got = PredictClear()(ps)
	if len(got.Queue) != 0 || got.CurrentTrack == nil {
		t.Fatalf("clear = %+v", got)
	}

	got = PredictShuffle(rand.New(rand.NewPCG(7, 7)))(ps)
	sorted := slices.Clone(ids(got))
	slices.Sort(sorted)
	if !slices.Equal(sorted, []string{"b", "c", "d"}) {
		t.Fatalf("shuffle lost tracks: %v", ids(got))
	}
	dense(t, got)
}

func TestPredictStopIsIdle(t *testing.T) {
	ps := active(1, "a", "b")
	ps.Volume = 42
	got := PredictStop()(ps)
	if got.CurrentTrack != nil || len(got.Queue) != 0 || got.Playing || got.Volume != 42 {
		t.Fatalf("stop = %+v", got)
	}
}
