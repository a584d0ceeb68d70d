// Package lyrics fetches song lyrics from lyrics.ovh.
package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

const (
	DefaultBase = "https://api.lyrics.ovh/v1"
	DefaultTTL  = time.Hour
	// MaxLength fits an embed description.
	MaxLength = 4096
)

var ErrNotFound = errors.New("lyrics not found")

type Options struct {
	Base    string
	TTL     time.Duration
	Limiter *rate.Limiter
	HTTP    *http.Client
	Now     func() time.Time
}

type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	cache   *Cache[string]
}

func NewClient(opts Options) *Client {
	if opts.Base == "" {
		opts.Base = DefaultBase
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Limit(2), 4)
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{Timeout: 8 * time.Second}
	}
	return &Client{
		base:    strings.TrimRight(opts.Base, "/"),
		http:    opts.HTTP,
		limiter: opts.Limiter,
		cache:   NewCache[string](opts.TTL, opts.Now),
	}
}

func cacheKey(artist, title string) string {
	return strings.ToLower(strings.TrimSpace(artist)) + "\x00" + strings.ToLower(strings.TrimSpace(title))
}

// Get returns lyrics for the song, truncated to MaxLength.
func (c *Client) Get(ctx context.Context, artist, title string) (string, error) {
	artist, title = strings.TrimSpace(artist), strings.TrimSpace(title)
	if artist == "" || title == "" {
		return "", ErrNotFound
	}
	key := cacheKey(artist, title)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	u := c.base + "/" + url.PathEscape(artist) + "/" + url.PathEscape(title)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lyrics_http_%d", resp.StatusCode)
	}
	var body struct {
		Lyrics string `json:"lyrics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	text := strings.TrimSpace(strings.ReplaceAll(body.Lyrics, "\r\n", "\n"))
	if text == "" {
		return "", ErrNotFound
	}
	text = Truncate(text, MaxLength)
	c.cache.Set(key, text)
	return text, nil
}

// Truncate cuts s to at most n runes, ending with an ellipsis when cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// SplitTitle guesses artist and title from a video title like
// "Artist - Song (Official Video)". ok is false when there is no separator.
func SplitTitle(s string) (artist, title string, ok bool) {
	for _, sep := range []string{" - ", " – ", " — ", " | "} {
		if i := strings.Index(s, sep); i > 0 {
			return strings.TrimSpace(s[:i]), cleanTitle(s[i+len(sep):]), true
		}
	}
	return "", cleanTitle(s), false
}

func cleanTitle(s string) string {
	for _, open := range []string{"(", "["} {
		if i := strings.Index(s, open); i > 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
