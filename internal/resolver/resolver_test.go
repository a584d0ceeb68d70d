package resolver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sonroyaalmerol/beatbox/internal/spotify"
	"github.com/sonroyaalmerol/beatbox/internal/state"
)

type fakeExtractor struct {
	targets  []string
	info     map[string][]Entry
	playlist []Entry
}

func (f *fakeExtractor) Info(_ context.Context, target string) ([]Entry, error) {
	f.targets = append(f.targets, target)
	if e, ok := f.info[target]; ok {
		return e, nil
	}
	return nil, nil
}

func (f *fakeExtractor) Playlist(_ context.Context, url string) (string, []Entry, error) {
	f.targets = append(f.targets, "playlist:"+url)
	return "Mix", f.playlist, nil
}

type fakeSpotify struct{ col spotify.Collection }

func (f fakeSpotify) Expand(context.Context, string, int) (spotify.Collection, error) {
	return f.col, nil
}

func entry(id string) Entry {
	return Entry{ID: id, Title: "Song " + id, Uploader: "Chan", Duration: 61.5, URL: "https://www.youtube.com/watch?v=" + id}
}

var me = state.Requester{ID: "u1", Username: "me"}

func TestResolveText(t *testing.T) {
	yt := &fakeExtractor{info: map[string][]Entry{"ytsearch1:never gonna": {entry("dQw")}}}
	res, err := New(yt, nil, 0).Resolve(context.Background(), "  never gonna ", me)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != KindSearch || len(res.Tracks) != 1 {
		t.Fatalf("res = %+v", res)
	}
	tr := res.Tracks[0]
	if tr.Duration != 61500 || tr.Requester.ID != "u1" || tr.SourceName != "youtube" {
		t.Fatalf("track = %+v", tr)
	}
}

func TestResolveURL(t *testing.T) {
	url := "https://youtu.be/abc"
	yt := &fakeExtractor{info: map[string][]Entry{url: {entry("abc")}}}
	res, err := New(yt, nil, 0).Resolve(context.Background(), url, me)
	if err != nil || res.Kind != KindTrack || res.Tracks[0].ID != "abc" {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
}

func TestResolvePlaylistSamples(t *testing.T) {
	yt := &fakeExtractor{playlist: []Entry{entry("a"), entry("b"), entry("c"), entry("d")}}
	r := New(yt, nil, 2)
	res, err := r.Resolve(context.Background(), "https://www.youtube.com/playlist?list=PL1", me)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != KindPlaylist || res.PlaylistName != "Mix" || len(res.Tracks) != 2 {
		t.Fatalf("res = %+v", res)
	}
	if !strings.Contains(res.Note, "random sample of 2") {
		t.Fatalf("note = %q", res.Note)
	}
}

func TestResolveSpotify(t *testing.T) {
	col := spotify.Collection{
		Name: "Album",
		Tracks: []spotify.Track{
			{Name: "One", Artists: []string{"Band"}, ArtworkURL: "art"},
			{Name: "Lost", Artists: []string{"Band"}},
		},
	}
	yt := &fakeExtractor{info: map[string][]Entry{"ytsearch1:Band - One": {entry("one")}}}
	res, err := New(yt, fakeSpotify{col}, 0).Resolve(context.Background(), "https://open.spotify.com/album/xyz", me)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != KindSpotify || len(res.Tracks) != 1 || res.Note != "1 song was not found" {
		t.Fatalf("res = %+v", res)
	}
	if res.Tracks[0].ArtworkURL != "art" {
		t.Fatalf("artwork not taken from spotify: %q", res.Tracks[0].ArtworkURL)
	}
}

func TestResolveErrors(t *testing.T) {
	r := New(&fakeExtractor{}, nil, 0)
	if _, err := r.Resolve(context.Background(), "   ", me); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("empty = %v", err)
	}
	if _, err := r.Resolve(context.Background(), "nothing matches", me); !errors.Is(err, ErrNotFound) {
		t.Fatalf("miss = %v", err)
	}
	if _, err := r.Resolve(context.Background(), "spotify:track:abc", me); !errors.Is(err, spotify.ErrNotConfigured) {
		t.Fatalf("spotify without client = %v", err)
	}
}

func TestSearchClampsLimit(t *testing.T) {
	yt := &fakeExtractor{info: map[string][]Entry{"ytsearch10:lofi": {entry("1"), entry("2")}}}
	got, err := New(yt, nil, 0).Search(context.Background(), "lofi", 50)
	if err != nil || len(got) != 2 {
		t.Fatalf("got %d, %v", len(got), err)
	}
	if yt.targets[0] != "ytsearch10:lofi" {
		t.Fatalf("target = %q", yt.targets[0])
	}
}
