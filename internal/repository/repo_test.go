package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sonroyaalmerol/beatbox/internal/state"
)

func newRepo(t *testing.T) (*Repo, *time.Time) {
	t.Helper()
	db, err := OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRepo(db)
	r.now = func() time.Time { return now }
	return r, &now
}

func track(i int) state.Track {
	return state.Track{
		Title:      fmt.Sprintf("Song %d", i),
		Author:     "Artist",
		Duration:   int64(i+1) * 1000,
		URI:        fmt.Sprintf("https://youtu.be/%d", i),
		SourceName: "youtube",
		Requester:  state.Requester{ID: "u1", Username: "alice"},
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		db, err := OpenPath(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		db.Close()
	}
}

func TestGuildSettings(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	s, err := r.GetGuildSettings(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if s.DefaultVolume != state.DefaultVolume || s.DefaultRepeat != state.RepeatOff || s.TwentyFourSeven {
		t.Fatalf("defaults = %+v", s)
	}

	if err := r.SetDJRole(ctx, "g1", "role9"); err != nil {
		t.Fatal(err)
	}
	if err := r.SetTwentyFourSeven(ctx, "g1", true); err != nil {
		t.Fatal(err)
	}
	s, _ = r.GetGuildSettings(ctx, "g1")
	s.DefaultRepeat = state.RepeatQueue
	s.DefaultVolume = 50
	if err := r.UpdateGuildSettings(ctx, s); err != nil {
		t.Fatal(err)
	}
	got, _ := r.GetGuildSettings(ctx, "g1")
	want := GuildSettings{GuildID: "g1", DJRoleID: "role9", TwentyFourSeven: true, DefaultRepeat: state.RepeatQueue, DefaultVolume: 50}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

func TestSavedQueues(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	tracks := []state.Track{track(0), track(1), track(2)}
	if err := r.SaveQueue(ctx, "g1", "u1", "mix", tracks); err != nil {
		t.Fatal(err)
	}
	// same name replaces
	if err := r.SaveQueue(ctx, "g1", "u1", "mix", tracks[:2]); err != nil {
		t.Fatal(err)
	}
	q, err := r.LoadQueue(ctx, "g1", "u1", " mix ")
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Tracks) != 2 || q.Tracks[1].Title != "Song 1" || q.Tracks[1].Position != 1 {
		t.Fatalf("tracks = %+v", q.Tracks)
	}

	// other users do not see it
	if _, err := r.LoadQueue(ctx, "g1", "u2", "mix"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other user err = %v", err)
	}

	list, err := r.ListSavedQueues(ctx, "g1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].TrackCount != 2 || list[0].TotalDuration != 3000 {
		t.Fatalf("list = %+v", list)
	}

	big := make([]state.Track, MaxSavedQueueTracks+1)
	if err := r.SaveQueue(ctx, "g1", "u1", "big", big); !errors.Is(err, ErrQueueTooLarge) {
		t.Fatalf("big err = %v", err)
	}

	if err := r.DeleteSavedQueue(ctx, "g1", "u1", "mix"); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteSavedQueue(ctx, "g1", "u1", "mix"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestLastQueue(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	if _, err := r.LastQueue(ctx, "g1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty err = %v", err)
	}
	cur := track(0)
	if err := r.SaveLastQueue(ctx, "g1", &cur, []state.Track{track(1), track(2)}); err != nil {
		t.Fatal(err)
	}
	got, err := r.LastQueue(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || !got[0].WasPlaying || got[1].WasPlaying || got[2].Title != "Song 2" {
		t.Fatalf("last queue = %+v", got)
	}

	// overwritten, not appended
	if err := r.SaveLastQueue(ctx, "g1", nil, []state.Track{track(5)}); err != nil {
		t.Fatal(err)
	}
	got, _ = r.LastQueue(ctx, "g1")
	if len(got) != 1 || got[0].Title != "Song 5" || got[0].WasPlaying {
		t.Fatalf("overwritten = %+v", got)
	}

	if err := r.SaveLastQueue(ctx, "g1", nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.LastQueue(ctx, "g1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cleared err = %v", err)
	}
}

func TestPlaylists(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	if err := r.CreatePlaylist(ctx, "u1", "chill"); err != nil {
		t.Fatal(err)
	}
	if err := r.CreatePlaylist(ctx, "u1", "chill"); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate err = %v", err)
	}
	if err := r.CreatePlaylist(ctx, "u2", "chill"); err != nil {
		t.Fatalf("other user: %v", err)
	}

	for i := 0; i < 3; i++ {
		n, err := r.AddPlaylistTrack(ctx, "u1", "chill", track(i))
		if err != nil {
			t.Fatal(err)
		}
		if n != i+1 {
			t.Fatalf("count = %d, want %d", n, i+1)
		}
	}
	if _, err := r.AddPlaylistTrack(ctx, "u1", "nope", track(0)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing playlist err = %v", err)
	}

	removed, err := r.RemovePlaylistTrack(ctx, "u1", "chill", 0)
	if err != nil {
		t.Fatal(err)
	}
	if removed.Title != "Song 0" {
		t.Fatalf("removed = %+v", removed)
	}
	if _, err := r.RemovePlaylistTrack(ctx, "u1", "chill", 5); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("out of range err = %v", err)
	}

	p, err := r.GetPlaylist(ctx, "u1", "chill")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Tracks) != 2 || p.Tracks[0].Position != 0 || p.Tracks[0].Title != "Song 1" || p.Tracks[1].Position != 1 {
		t.Fatalf("tracks after remove = %+v", p.Tracks)
	}

	list, _ := r.ListPlaylists(ctx, "u1")
	if len(list) != 1 || list[0].TrackCount != 2 {
		t.Fatalf("list = %+v", list)
	}

	if err := r.DeletePlaylist(ctx, "u1", "chill"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetPlaylist(ctx, "u1", "chill"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted err = %v", err)
	}
}

func TestEngagement(t *testing.T) {
	r, now := newRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.IncrementInteractions(ctx, "u1"); err != nil {
			t.Fatal(err)
		}
	}
	e, err := r.AddVoiceTime(ctx, "u1", 120)
	if err != nil {
		t.Fatal(err)
	}
	if e.InteractionCount != 3 || e.TotalVoiceTime != 120 || e.PromoSent {
		t.Fatalf("engagement = %+v", e)
	}

	ok, err := r.MarkPromoSent(ctx, "u1", *now)
	if err != nil || !ok {
		t.Fatalf("first mark = %v %v", ok, err)
	}
	ok, _ = r.MarkPromoSent(ctx, "u1", *now)
	if ok {
		t.Fatal("second mark should report already sent")
	}
	e, _ = r.AddVoiceTime(ctx, "u1", 1)
	if !e.PromoSent || !e.PromoSentAt.Equal(*now) {
		t.Fatalf("promo = %+v", e)
	}
}

func TestGuildStats(t *testing.T) {
	r, now := newRepo(t)
	ctx := context.Background()

	empty, err := r.GuildStats(ctx, "g1", *now)
	if err != nil {
		t.Fatal(err)
	}
	if empty.TotalPlays != 0 || empty.TopTrack != nil || empty.TopRequester != nil {
		t.Fatalf("empty stats = %+v", empty)
	}

	a := track(0)
	b := track(1)
	b.Requester = state.Requester{ID: "u2", Username: "bob"}
	old := now.Add(-48 * time.Hour)
	for _, p := range []struct {
		t  state.Track
		at time.Time
	}{{a, old}, {a, *now}, {b, *now}} {
		if err := r.RecordPlay(ctx, "g1", p.t, p.at); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.RecordPlay(ctx, "other", a, *now); err != nil {
		t.Fatal(err)
	}

	id, err := r.StartListeningSession(ctx, "g1", now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	r.IncrementSessionTracks(ctx, id)
	r.IncrementSessionTracks(ctx, id)
	if err := r.EndListeningSession(ctx, id, *now); err != nil {
		t.Fatal(err)
	}
	if _, err := r.StartListeningSession(ctx, "g1", *now); err != nil {
		t.Fatal(err)
	}

	s, err := r.GuildStats(ctx, "g1", *now)
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalPlays != 3 || s.TotalListeningMs != 1000+1000+2000 {
		t.Fatalf("plays = %d ms = %d", s.TotalPlays, s.TotalListeningMs)
	}
	if s.TopTrack == nil || s.TopTrack.Title != "Song 0" || s.TopTrack.Count != 2 {
		t.Fatalf("top track = %+v", s.TopTrack)
	}
	if s.TopRequester == nil || s.TopRequester.UserID != "u1" || s.TopRequester.Count != 2 {
		t.Fatalf("top requester = %+v", s.TopRequester)
	}
	if s.PlaysLast24h != 2 || s.UniqueTracks != 2 || s.UniqueListeners != 2 {
		t.Fatalf("24h = %d unique tracks = %d listeners = %d", s.PlaysLast24h, s.UniqueTracks, s.UniqueListeners)
	}
	if s.SessionCount != 2 || s.AvgSessionLength != time.Hour || s.AvgTracksPerSession != 2 {
		t.Fatalf("sessions = %d avg = %v tracks = %d", s.SessionCount, s.AvgSessionLength, s.AvgTracksPerSession)
	}
}
