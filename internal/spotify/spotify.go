package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

var ErrNotConfigured = errors.New("spotify is not configured")

type Kind string

const (
	KindTrack    Kind = "track"
	KindAlbum    Kind = "album"
	KindPlaylist Kind = "playlist"
	KindArtist   Kind = "artist"
)

type Track struct {
	Name       string
	Artists    []string
	DurationMs int64
	ArtworkURL string
	URL        string
}

func (t Track) Artist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// Collection is what a Spotify link expands to.
type Collection struct {
	Name       string
	Kind       Kind
	ArtworkURL string
	URL        string
	Tracks     []Track
}

func (c Collection) TotalDuration() int64 {
	var total int64
	for _, t := range c.Tracks {
		total += t.DurationMs
	}
	return total
}

type Client struct {
	raw    *spotify.Client
	market string
}

func NewClientCredentials(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrNotConfigured
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := cfg.Client(ctx)
	cl := spotify.New(httpClient, spotify.WithRetry(true))
	return &Client{raw: cl, market: "US"}, nil
}

// IsURL reports whether s looks like a Spotify link or URI.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "spotify:") || strings.Contains(s, "open.spotify.com/")
}

// ParseURL accepts spotify:<kind>:<id> URIs and open.spotify.com links,
// including the localized /intl-xx/ prefix.
func ParseURL(raw string) (Kind, spotify.ID, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.Split(raw, ":")
		if len(parts) != 3 || parts[2] == "" {
			return "", "", fmt.Errorf("invalid spotify URI %q", raw)
		}
		k, err := parseKind(parts[1])
		return k, spotify.ID(parts[2]), err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Host != "open.spotify.com" && u.Host != "www.open.spotify.com" {
		return "", "", fmt.Errorf("not a spotify URL")
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
		parts = parts[1:]
	}
	if len(parts) < 2 || parts[1] == "" {
		return "", "", fmt.Errorf("invalid spotify URL path")
	}
	k, err := parseKind(parts[0])
	return k, spotify.ID(parts[1]), err
}

func parseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindTrack, KindAlbum, KindPlaylist, KindArtist:
		return k, nil
	}
	return "", fmt.Errorf("unsupported spotify type %q", s)
}

// BuildSearchQuery is the YouTube query used to find a Spotify track.
func BuildSearchQuery(t Track) string {
	if a := t.Artist(); a != "" {
		return a + " - " + t.Name
	}
	return t.Name
}

// Expand fetches every track behind a link. limit caps the track count,
// zero means no cap.
func (c *Client) Expand(ctx context.Context, link string, limit int) (Collection, error) {
	kind, id, err := ParseURL(link)
	if err != nil {
		return Collection{}, err
	}
	switch kind {
	case KindAlbum:
		return c.GetAlbum(ctx, id, limit)
	case KindPlaylist:
		return c.GetPlaylist(ctx, id, limit)
	case KindArtist:
		return c.GetArtistTop(ctx, id, limit)
	default:
		t, err := c.GetTrack(ctx, id)
		if err != nil {
			return Collection{}, err
		}
		return Collection{Name: t.Name, Kind: KindTrack, ArtworkURL: t.ArtworkURL, URL: t.URL, Tracks: []Track{t}}, nil
	}
}

func artistNames(as []spotify.SimpleArtist) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.Name)
	}
	return out
}

func firstImage(imgs []spotify.Image) string {
	if len(imgs) == 0 {
		return ""
	}
	return imgs[0].URL
}

func fromFull(t *spotify.FullTrack) Track {
	return Track{
		Name:       t.Name,
		Artists:    artistNames(t.Artists),
		DurationMs: int64(t.Duration),
		ArtworkURL: firstImage(t.Album.Images),
		URL:        t.ExternalURLs["spotify"],
	}
}

func (c *Client) GetAlbum(ctx context.Context, id spotify.ID, limit int) (Collection, error) {
	alb, err := c.raw.GetAlbum(ctx, id)
	if err != nil {
		return Collection{}, err
	}
	art := firstImage(alb.Images)
	page, err := c.raw.GetAlbumTracks(ctx, id)
	if err != nil {
		return Collection{}, err
	}
	col := Collection{Name: alb.Name, Kind: KindAlbum, ArtworkURL: art, URL: alb.ExternalURLs["spotify"]}
	add := func(items []spotify.SimpleTrack) {
		for _, t := range items {
			if limit > 0 && len(col.Tracks) >= limit {
				break
			}
			// album tracks carry no album, so the artwork comes from the album
			col.Tracks = append(col.Tracks, Track{
				Name:       t.Name,
				Artists:    artistNames(t.Artists),
				DurationMs: int64(t.Duration),
				ArtworkURL: art,
				URL:        t.ExternalURLs["spotify"],
			})
		}
	}
	add(page.Tracks)
	for page.Next != "" && (limit == 0 || len(col.Tracks) < limit) {
		if err := c.raw.NextPage(ctx, page); err != nil {
			break
		}
		add(page.Tracks)
	}
	return col, nil
}

func (c *Client) GetPlaylist(ctx context.Context, id spotify.ID, limit int) (Collection, error) {
	pl, err := c.raw.GetPlaylist(ctx, id)
	if err != nil {
		return Collection{}, err
	}
	page, err := c.raw.GetPlaylistItems(ctx, id)
	if err != nil {
		return Collection{}, err
	}
	col := Collection{Name: pl.Name, Kind: KindPlaylist, ArtworkURL: firstImage(pl.Images), URL: pl.ExternalURLs["spotify"]}
	add := func(items []spotify.PlaylistItem) {
		for _, it := range items {
			if it.Track.Track == nil {
				continue
			}
			if limit > 0 && len(col.Tracks) >= limit {
				break
			}
			col.Tracks = append(col.Tracks, fromFull(it.Track.Track))
		}
	}
	add(page.Items)
	for page.Next != "" && (limit == 0 || len(col.Tracks) < limit) {
		if err := c.raw.NextPage(ctx, page); err != nil {
			break
		}
		add(page.Items)
	}
	return col, nil
}

func (c *Client) GetTrack(ctx context.Context, id spotify.ID) (Track, error) {
	t, err := c.raw.GetTrack(ctx, id)
	if err != nil {
		return Track{}, err
	}
	return fromFull(t), nil
}

func (c *Client) GetArtistTop(ctx context.Context, id spotify.ID, limit int) (Collection, error) {
	artist, err := c.raw.GetArtist(ctx, id)
	if err != nil {
		return Collection{}, err
	}
	full, err := c.raw.GetArtistsTopTracks(ctx, id, c.market)
	if err != nil {
		return Collection{}, err
	}
	col := Collection{Name: artist.Name, Kind: KindArtist, ArtworkURL: firstImage(artist.Images), URL: artist.ExternalURLs["spotify"]}
	for i := range full {
		if limit > 0 && len(col.Tracks) >= limit {
			break
		}
		col.Tracks = append(col.Tracks, fromFull(&full[i]))
	}
	return col, nil
}

func (c *Client) SearchAlbumsAndTracks(ctx context.Context, query string, limit int) ([]spotify.SimpleAlbum, []spotify.FullTrack, error) {
	if limit <= 0 {
		limit = 10
	}
	typ := spotify.SearchTypeAlbum | spotify.SearchTypeTrack
	res, err := c.raw.Search(ctx, query, typ, spotify.Limit(limit))
	if err != nil {
		return nil, nil, err
	}
	var albums []spotify.SimpleAlbum
	if res.Albums != nil {
		albums = res.Albums.Albums
	}
	var tracks []spotify.FullTrack
	if res.Tracks != nil {
		tracks = res.Tracks.Tracks
	}
	if len(albums) > limit {
		albums = albums[:limit]
	}
	if len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return albums, tracks, nil
}
