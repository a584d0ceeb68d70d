package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/sonroyaalmerol/beatbox/internal/state"
)

var (
	titleColor = color.New(color.FgHiCyan, color.Bold)
	dimColor   = color.New(color.FgHiBlack)
	errColor   = color.New(color.FgHiRed)
)

const shownQueue = 5

type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer { return &printer{w: w} }

func (p *printer) state(ps state.PlayerState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, formatState(ps))
}

func (p *printer) failure(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	errColor.Fprintln(p.w, "! "+msg)
}

func (p *printer) results(r state.SearchResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, t := range r.Tracks {
		fmt.Fprintf(p.w, "%2d. %s - %s (%s)\n", i+1, t.Author, t.Title, state.FormatDuration(t.Duration))
	}
}

func status(ps state.PlayerState) string {
	switch {
	case ps.CurrentTrack == nil:
		return "idle"
	case ps.Paused:
		return "paused"
	case ps.Playing:
		return "playing"
	}
	return "stopped"
}

// formatState renders the state as a short multi-line block.
func formatState(ps state.PlayerState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] vol %d%% repeat %s\n", status(ps), ps.Volume, ps.RepeatMode)
	if t := ps.CurrentTrack; t != nil {
		fmt.Fprintf(&b, "  %s - %s\n", t.Author, titleColor.Sprint(t.Title))
		fmt.Fprintf(&b, "  %s %s %s\n",
			state.FormatDuration(ps.Position), state.ProgressBar(ps.Position, t.Duration, 20), state.FormatDuration(t.Duration))
	}
	for i, qt := range ps.Queue {
		if i == shownQueue {
			b.WriteString(dimColor.Sprintf("  ... %d more\n", len(ps.Queue)-shownQueue))
			break
		}
		fmt.Fprintf(&b, "  %d. %s - %s\n", i+1, qt.Author, qt.Title)
	}
	return b.String()
}
