// Package autocomplete builds choices for the query option of play-like
// commands.
package autocomplete

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/zmb3/spotify/v2"
)

const (
	DefaultSuggestURL = "https://suggestqueries.google.com/complete/search"
	// MaxChoices is Discord's cap on autocomplete results.
	MaxChoices = 25
	maxNameLen = 100
)

// SpotifySearcher is satisfied by *spotify.Client from this module.
type SpotifySearcher interface {
	SearchAlbumsAndTracks(ctx context.Context, query string, limit int) ([]spotify.SimpleAlbum, []spotify.FullTrack, error)
}

type Suggester struct {
	SuggestURL string
	HTTP       *http.Client
	Spotify    SpotifySearcher
}

func New(sp SpotifySearcher) *Suggester {
	return &Suggester{
		SuggestURL: DefaultSuggestURL,
		HTTP:       &http.Client{Timeout: 3 * time.Second},
		Spotify:    sp,
	}
}

func (s *Suggester) YouTube(ctx context.Context, query string) ([]string, error) {
	u, err := url.Parse(s.SuggestURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("client", "firefox")
	q.Set("ds", "yt")
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("suggest_http_%d", resp.StatusCode)
	}
	var parsed []any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed) < 2 {
		return nil, nil
	}
	arr, ok := parsed[1].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Choices merges YouTube suggestions with Spotify albums and tracks. Spotify
// results take at most half of limit; failures of either source are
// tolerated.
func (s *Suggester) Choices(ctx context.Context, query string, limit int) []*discordgo.ApplicationCommandOptionChoice {
	if limit <= 0 || limit > MaxChoices {
		limit = MaxChoices
	}
	if query == "" {
		return []*discordgo.ApplicationCommandOptionChoice{}
	}
	yt, _ := s.YouTube(ctx, query)

	var sp []*discordgo.ApplicationCommandOptionChoice
	if s.Spotify != nil {
		albums, tracks, err := s.Spotify.SearchAlbumsAndTracks(ctx, query, max(1, limit/4))
		if err == nil {
			for _, a := range albums {
				sp = append(sp, choice("Spotify: 💿 "+withArtist(a.Name, a.Artists), "spotify:album:"+a.ID.String()))
			}
			for _, t := range tracks {
				sp = append(sp, choice("Spotify: 🎵 "+withArtist(t.Name, t.Artists), "spotify:track:"+t.ID.String()))
			}
		}
	}
	if len(sp) > limit/2 {
		sp = sp[:limit/2]
	}

	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, limit)
	for _, v := range yt {
		if len(out) >= limit-len(sp) {
			break
		}
		out = append(out, choice("YouTube: "+v, v))
	}
	out = append(out, sp...)
	return out
}

func withArtist(name string, artists []spotify.SimpleArtist) string {
	if len(artists) > 0 && artists[0].Name != "" {
		return name + " - " + artists[0].Name
	}
	return name
}

func choice(name, value string) *discordgo.ApplicationCommandOptionChoice {
	return &discordgo.ApplicationCommandOptionChoice{Name: clip(name), Value: clip(value)}
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxNameLen {
		return s
	}
	return string([]rune(s)[:maxNameLen])
}
