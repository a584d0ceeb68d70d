package state

import (
	"testing"
	"time"
)

func track(id string) Track {
	return Track{ID: id, Title: "title " + id, Duration: 180000, SourceName: "youtube"}
}

func withQueue(ps PlayerState, ids ...string) PlayerState {
	for _, id := range ids {
		ps.Queue = append(ps.Queue, Enqueued(track(id), time.Unix(0, 0)))
	}
	Reindex(ps.Queue)
	return ps
}

func playing(id string, mode RepeatMode) PlayerState {
	ps := Idle("g1")
	t := track(id)
	ps.CurrentTrack = &t
	ps.Playing = true
	ps.Position = 42000
	ps.RepeatMode = mode
	return ps
}

func assertDense(t *testing.T, q []QueueTrack) {
	t.Helper()
	for i, qt := range q {
		if qt.Position != i {
			t.Fatalf("queue[%d].Position = %d", i, qt.Position)
		}
	}
}

func TestAdvanceRepeatTrackKeepsCurrent(t *testing.T) {
	ps := withQueue(playing("a", RepeatTrack), "b")
	next := Advance(ps, true, time.Now())
	if next.CurrentTrack.ID != "a" {
		t.Fatalf("current = %s, want a", next.CurrentTrack.ID)
	}
	if next.Position != 0 {
		t.Fatalf("position = %d, want 0", next.Position)
	}
	if len(next.Queue) != 1 {
		t.Fatalf("queue len = %d, want 1", len(next.Queue))
	}
}

func TestAdvanceRepeatQueue(t *testing.T) {
	tests := []struct {
		name      string
		requeue   bool
		wantQueue []string
	}{
		{"requeue", true, []string{"c", "a"}},
		{"drop", false, []string{"c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := withQueue(playing("a", RepeatQueue), "b", "c")
			next := Advance(ps, tt.requeue, time.Now())
			if next.CurrentTrack.ID != "b" {
				t.Fatalf("current = %s, want b", next.CurrentTrack.ID)
			}
			if len(next.Queue) != len(tt.wantQueue) {
				t.Fatalf("queue len = %d, want %d", len(next.Queue), len(tt.wantQueue))
			}
			for i, id := range tt.wantQueue {
				if next.Queue[i].ID != id {
					t.Fatalf("queue[%d] = %s, want %s", i, next.Queue[i].ID, id)
				}
			}
			assertDense(t, next.Queue)
		})
	}
}

func TestAdvanceRepeatQueueSingleTrackLoops(t *testing.T) {
	next := Advance(playing("a", RepeatQueue), true, time.Now())
	if next.CurrentTrack == nil || next.CurrentTrack.ID != "a" {
		t.Fatalf("current = %v, want a", next.CurrentTrack)
	}
	if len(next.Queue) != 0 {
		t.Fatalf("queue len = %d, want 0", len(next.Queue))
	}
}

func TestAdvanceOffEmptyQueueGoesIdle(t *testing.T) {
	ps := playing("a", RepeatOff)
	ps.Paused = false
	next := Advance(ps, true, time.Now())
	if next.CurrentTrack != nil {
		t.Fatalf("current = %v, want nil", next.CurrentTrack)
	}
	if next.Playing || next.Paused {
		t.Fatalf("playing=%v paused=%v, want both false", next.Playing, next.Paused)
	}
}

func TestAdvanceDoesNotMutateInput(t *testing.T) {
	ps := withQueue(playing("a", RepeatOff), "b", "c")
	_ = Advance(ps, false, time.Now())
	if ps.CurrentTrack.ID != "a" || len(ps.Queue) != 2 || ps.Queue[0].ID != "b" {
		t.Fatalf("input mutated: %+v", ps)
	}
}

func TestParseRepeatMode(t *testing.T) {
	for _, s := range []string{"off", "track", "queue"} {
		if _, err := ParseRepeatMode(s); err != nil {
			t.Fatalf("ParseRepeatMode(%q): %v", s, err)
		}
	}
	if _, err := ParseRepeatMode("song"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if RepeatQueue.Next() != RepeatOff {
		t.Fatalf("queue.Next() = %s", RepeatQueue.Next())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[int64]string{
		-5:      "00:00",
		0:       "00:00",
		59999:   "00:59",
		61000:   "01:01",
		3600000: "01:00:00",
		3723000: "01:02:03",
	}
	for in, want := range tests {
		if got := FormatDuration(in); got != want {
			t.Errorf("FormatDuration(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestProgressBar(t *testing.T) {
	if got := ProgressBar(0, 0, 4); got != "░░░░" {
		t.Fatalf("zero total = %q", got)
	}
	if got := ProgressBar(50, 100, 4); got != "▓▓░░" {
		t.Fatalf("half = %q", got)
	}
	if got := ProgressBar(500, 100, 4); got != "▓▓▓▓" {
		t.Fatalf("overflow = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello world", 8); got != "hello..." {
		t.Fatalf("Truncate = %q", got)
	}
	if got := Truncate("short", 8); got != "short" {
		t.Fatalf("Truncate = %q", got)
	}
}
