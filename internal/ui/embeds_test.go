package ui

import (
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/beatbox/internal/repository"
	"github.com/sonroyaalmerol/beatbox/internal/state"
)

func playing(n int) state.PlayerState {
	ps := state.Idle("g1")
	cur := state.Track{Title: "Current", Author: "Band", Duration: 200000, URI: "https://x/c", Requester: state.Requester{Username: "alice"}}
	ps.CurrentTrack = &cur
	ps.Playing = true
	ps.Position = 100000
	for i := 0; i < n; i++ {
		ps.Queue = append(ps.Queue, state.QueueTrack{Track: state.Track{Title: fmt.Sprintf("T%d", i), Duration: 60000, URI: "https://x"}, Position: i})
	}
	return ps
}

func TestNowPlaying(t *testing.T) {
	e := NowPlaying(playing(2))
	if e.Title != "Current" || e.URL != "https://x/c" {
		t.Fatalf("embed = %+v", e)
	}
	if !strings.Contains(e.Description, "01:40 ▓▓▓▓▓▓▓▓░░░░░░░ 03:20") {
		t.Fatalf("description = %q", e.Description)
	}
	if !strings.Contains(e.Footer.Text, "alice") || !strings.Contains(e.Footer.Text, "2 songs up next") {
		t.Fatalf("footer = %q", e.Footer.Text)
	}

	idle := NowPlaying(state.Idle("g1"))
	if idle.Title != "Nothing Playing" {
		t.Fatalf("idle = %+v", idle)
	}
}

func TestQueuePaging(t *testing.T) {
	ps := playing(25)
	if got := TotalPages(len(ps.Queue), QueuePageSize); got != 3 {
		t.Fatalf("pages = %d", got)
	}
	e, err := Queue(ps, 3, QueuePageSize)
	if err != nil {
		t.Fatal(err)
	}
	upNext := e.Fields[0].Value
	if strings.Count(upNext, "\n") != 4 || !strings.Contains(upNext, "21.") || !strings.Contains(upNext, "T24") {
		t.Fatalf("page 3 = %q", upNext)
	}
	if _, err := Queue(ps, 4, QueuePageSize); err == nil {
		t.Fatal("page past the end accepted")
	}

	empty, err := Queue(state.Idle("g1"), 1, QueuePageSize)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(empty.Fields[0].Value, "empty") {
		t.Fatalf("empty = %+v", empty.Fields[0])
	}
}

func TestQueueButtons(t *testing.T) {
	row := QueueButtons(1, 3)[0].(discordgo.ActionsRow)
	prev := row.Components[0].(discordgo.Button)
	next := row.Components[2].(discordgo.Button)
	if !prev.Disabled || next.Disabled {
		t.Fatalf("prev disabled = %v next disabled = %v", prev.Disabled, next.Disabled)
	}
	page, ok := ParseQueuePage(next.CustomID)
	if !ok || page != 2 {
		t.Fatalf("ParseQueuePage(%q) = %d %v", next.CustomID, page, ok)
	}
	if _, ok := ParseQueuePage("player:skip"); ok {
		t.Fatal("non queue id parsed")
	}
}

func TestPlayerButtons(t *testing.T) {
	row := PlayerButtons(true)[0].(discordgo.ActionsRow)
	if id := row.Components[1].(discordgo.Button).CustomID; id != ButtonResume {
		t.Fatalf("paused toggle = %q", id)
	}
	row = PlayerButtons(false)[0].(discordgo.ActionsRow)
	if id := row.Components[1].(discordgo.Button).CustomID; id != ButtonPause {
		t.Fatalf("playing toggle = %q", id)
	}
}

func TestTrackAdded(t *testing.T) {
	if f := TrackAdded(state.Track{Title: "a"}, -1).Footer.Text; f != "Playing now" {
		t.Fatalf("footer = %q", f)
	}
	if f := TrackAdded(state.Track{Title: "a"}, 0).Footer.Text; f != "Position #1 in queue" {
		t.Fatalf("footer = %q", f)
	}
}

func TestStats(t *testing.T) {
	e := Stats("", repository.Stats{TotalPlays: 3, TotalListeningMs: 3*3600000 + 5*60000})
	if e.Author.Name != "Server Stats" {
		t.Fatalf("author = %q", e.Author.Name)
	}
	if v := e.Fields[3].Value; v != "**3h 5m**" {
		t.Fatalf("listening time = %q", v)
	}
	if e.Fields[0].Value != "No data yet" {
		t.Fatalf("top track = %q", e.Fields[0].Value)
	}
}
