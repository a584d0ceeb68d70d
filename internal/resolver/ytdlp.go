package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	ytdlp "github.com/lrstanley/go-ytdlp"
)

// Entry is one video as reported by yt-dlp.
type Entry struct {
	ID        string
	Title     string
	Uploader  string
	Duration  float64 // seconds
	IsLive    bool
	URL       string
	Thumbnail string
}

// Extractor looks media up. Targets are URLs or ytsearchN: queries.
type Extractor interface {
	Info(ctx context.Context, target string) ([]Entry, error)
	Playlist(ctx context.Context, url string) (title string, entries []Entry, err error)
}

// YTDLP runs the yt-dlp binary, installing it on first use.
type YTDLP struct {
	CookiesPath string

	installOnce sync.Once
}

func (y *YTDLP) install(ctx context.Context) {
	y.installOnce.Do(func() {
		// availability problems surface on the first Run
		if _, err := ytdlp.Install(ctx, nil); err != nil {
			slog.Warn("yt-dlp install failed", "err", err)
		}
	})
}

func (y *YTDLP) command() *ytdlp.Command {
	cmd := ytdlp.New().NoCheckCertificates().DumpJSON()
	if y.CookiesPath != "" {
		cmd = cmd.Cookies(y.CookiesPath)
	}
	return cmd
}

func (y *YTDLP) Info(ctx context.Context, target string) ([]Entry, error) {
	y.install(ctx)
	res, err := y.command().
		Format("ba[acodec^=opus]/ba[ext=m4a]/bestaudio/best").
		Run(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp run: %w", err)
	}
	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse yt-dlp json: %w", err)
	}

	var out []Entry
	for _, info := range infos {
		if info == nil {
			continue
		}
		// search results may come back as one container or one line each
		if len(info.Entries) > 0 {
			for _, e := range info.Entries {
				if e != nil {
					out = append(out, toEntry(e))
				}
			}
			continue
		}
		out = append(out, toEntry(info))
	}
	return out, nil
}

func (y *YTDLP) Playlist(ctx context.Context, url string) (string, []Entry, error) {
	y.install(ctx)
	cmd := y.command().FlatPlaylist()
	if strings.Contains(url, "youtube.com") || strings.Contains(url, "youtu.be") {
		cmd = cmd.ExtractorArgs("youtube:player-client=default,mweb")
	}
	res, err := cmd.Run(ctx, url)
	if err != nil {
		if strings.Contains(err.Error(), "Sign in to confirm") {
			return "", nil, fmt.Errorf("yt-dlp playlist fetch failed (PO token may be required): %w", err)
		}
		return "", nil, fmt.Errorf("yt-dlp playlist fetch failed for %s: %w", url, err)
	}
	infos, err := res.GetExtractedInfo()
	if err != nil {
		return "", nil, fmt.Errorf("parse yt-dlp playlist json for %s: %w", url, err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return "", nil, fmt.Errorf("yt-dlp returned empty playlist info for %s", url)
	}
	pl := infos[0]
	out := make([]Entry, 0, len(pl.Entries))
	for _, e := range pl.Entries {
		if e != nil {
			out = append(out, toEntry(e))
		}
	}
	return str(pl.Title), out, nil
}

func toEntry(e *ytdlp.ExtractedInfo) Entry {
	out := Entry{
		ID:       e.ID,
		Title:    str(e.Title),
		Uploader: str(e.Uploader),
		IsLive:   e.IsLive != nil && *e.IsLive,
		URL:      str(e.WebpageURL),
	}
	if e.Duration != nil {
		out.Duration = *e.Duration
	}
	if out.URL == "" {
		out.URL = str(e.URL)
	}
	// flat playlist entries only carry an id
	if out.URL == "" || !strings.HasPrefix(out.URL, "http") {
		out.URL = "https://www.youtube.com/watch?v=" + e.ID
	}
	if n := len(e.Thumbnails); n > 0 && e.Thumbnails[n-1] != nil {
		out.Thumbnail = e.Thumbnails[n-1].URL
	}
	return out
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
