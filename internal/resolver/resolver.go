// Package resolver turns user queries into playable tracks.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/sonroyaalmerol/beatbox/internal/spotify"
	"github.com/sonroyaalmerol/beatbox/internal/state"
	"github.com/sonroyaalmerol/beatbox/internal/utils"
)

var (
	ErrEmptyQuery = errors.New("empty query")
	ErrNotFound   = errors.New("no results found")
)

type Kind string

const (
	KindTrack    Kind = "track"
	KindPlaylist Kind = "playlist"
	KindSearch   Kind = "search"
	KindSpotify  Kind = "spotify"
)

type Result struct {
	Kind         Kind
	Tracks       []state.Track
	PlaylistName string
	ArtworkURL   string
	// Note is a human readable remark such as how many tracks were missed.
	Note string
}

// SpotifyExpander is the part of the Spotify client the resolver uses.
type SpotifyExpander interface {
	Expand(ctx context.Context, link string, limit int) (spotify.Collection, error)
}

type Resolver struct {
	yt Extractor
	sp SpotifyExpander
	// PlaylistLimit caps how many tracks a playlist link adds; longer
	// playlists are sampled at random.
	PlaylistLimit int
	rnd           *rand.Rand
}

// New returns a resolver. sp may be nil when Spotify is not configured.
func New(yt Extractor, sp SpotifyExpander, playlistLimit int) *Resolver {
	if playlistLimit <= 0 {
		playlistLimit = state.MaxQueueSize
	}
	return &Resolver{yt: yt, sp: sp, PlaylistLimit: playlistLimit, rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

func isURL(q string) bool {
	return strings.HasPrefix(q, "http://") || strings.HasPrefix(q, "https://") || strings.HasPrefix(q, "spotify:")
}

func isYouTube(q string) bool {
	return strings.Contains(q, "youtube.com") || strings.Contains(q, "youtu.be") || strings.Contains(q, "music.youtube.")
}

// Resolve handles Spotify links, YouTube videos and playlists, other URLs
// yt-dlp understands, and free text which takes the first search hit.
func (r *Resolver) Resolve(ctx context.Context, query string, requester state.Requester) (Result, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Result{}, ErrEmptyQuery
	}

	switch {
	case spotify.IsURL(q):
		return r.resolveSpotify(ctx, q, requester)
	case isURL(q) && isYouTube(q) && strings.Contains(q, "list="):
		title, entries, err := r.yt.Playlist(ctx, q)
		if err != nil {
			return Result{}, err
		}
		if len(entries) == 0 {
			return Result{}, ErrNotFound
		}
		res := Result{Kind: KindPlaylist, PlaylistName: title}
		if len(entries) > r.PlaylistLimit {
			utils.ShuffleSlice(entries, r.rnd)
			entries = entries[:r.PlaylistLimit]
			res.Note = fmt.Sprintf("a random sample of %d songs was taken", r.PlaylistLimit)
		}
		for _, e := range entries {
			res.Tracks = append(res.Tracks, toTrack(e, requester))
		}
		if n := len(res.Tracks); n > 0 {
			res.ArtworkURL = res.Tracks[0].ArtworkURL
		}
		return res, nil
	case isURL(q):
		entries, err := r.yt.Info(ctx, q)
		if err != nil {
			return Result{}, err
		}
		if len(entries) == 0 {
			return Result{}, ErrNotFound
		}
		return Result{Kind: KindTrack, Tracks: []state.Track{toTrack(entries[0], requester)}}, nil
	default:
		entries, err := r.yt.Info(ctx, "ytsearch1:"+q)
		if err != nil {
			return Result{}, err
		}
		if len(entries) == 0 {
			return Result{}, ErrNotFound
		}
		return Result{Kind: KindSearch, Tracks: []state.Track{toTrack(entries[0], requester)}}, nil
	}
}

func (r *Resolver) resolveSpotify(ctx context.Context, link string, requester state.Requester) (Result, error) {
	if r.sp == nil {
		return Result{}, spotify.ErrNotConfigured
	}
	col, err := r.sp.Expand(ctx, link, r.PlaylistLimit)
	if err != nil {
		return Result{}, fmt.Errorf("spotify: %w", err)
	}
	if len(col.Tracks) == 0 {
		return Result{}, ErrNotFound
	}

	res := Result{Kind: KindSpotify, PlaylistName: col.Name, ArtworkURL: col.ArtworkURL}
	missed := 0
	for _, st := range col.Tracks {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		sq := spotify.BuildSearchQuery(st)
		entries, err := r.yt.Info(ctx, "ytsearch1:"+sq)
		if err != nil || len(entries) == 0 {
			slog.Debug("spotify track not found on youtube", "query", sq, "err", err)
			missed++
			continue
		}
		t := toTrack(entries[0], requester)
		if t.ArtworkURL == "" {
			t.ArtworkURL = st.ArtworkURL
		}
		res.Tracks = append(res.Tracks, t)
	}
	if len(res.Tracks) == 0 {
		return Result{}, ErrNotFound
	}
	switch missed {
	case 0:
	case 1:
		res.Note = "1 song was not found"
	default:
		res.Note = fmt.Sprintf("%d songs were not found", missed)
	}
	return res, nil
}

// Search returns up to limit candidates for a free text query.
func (r *Resolver) Search(ctx context.Context, query string, limit int) ([]state.Track, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	limit = max(1, min(limit, state.SearchLimit))
	entries, err := r.yt.Info(ctx, fmt.Sprintf("ytsearch%d:%s", limit, q))
	if err != nil {
		return nil, err
	}
	out := make([]state.Track, 0, len(entries))
	for _, e := range entries {
		if len(out) == limit {
			break
		}
		out = append(out, toTrack(e, state.Requester{}))
	}
	return out, nil
}

func toTrack(e Entry, requester state.Requester) state.Track {
	author := e.Uploader
	if author == "" {
		author = "Unknown"
	}
	return state.Track{
		ID:         e.ID,
		Title:      e.Title,
		Author:     author,
		Duration:   int64(max(0, e.Duration) * 1000),
		URI:        e.URL,
		ArtworkURL: e.Thumbnail,
		SourceName: "youtube",
		Requester:  requester,
	}
}
