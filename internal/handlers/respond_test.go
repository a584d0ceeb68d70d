package handlers

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/beatbox/internal/lyrics"
	"github.com/sonroyaalmerol/beatbox/internal/player"
	"github.com/sonroyaalmerol/beatbox/internal/repository"
	"github.com/sonroyaalmerol/beatbox/internal/resolver"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{player.ErrNoActivePlayer, "There is no active player in this server."},
		{fmt.Errorf("seek: %w", player.ErrOutOfRange), "That value is out of range."},
		{fmt.Errorf("remove 9: %w", player.ErrOutOfBounds), "That position isn't in the queue."},
		{player.ErrInsufficientTracks, "Need at least 2 tracks in the queue to shuffle."},
		{resolver.ErrNotFound, "No results found for your search."},
		{lyrics.ErrNotFound, "No lyrics found for this track."},
		{repository.ErrQueueTooLarge, "Queue is too large. Maximum 200 tracks allowed."},
		{errNotInVoice, "You need to be in a voice channel to use this command."},
		{djRequired{roleID: "42"}, "You need the <@&42> role to use this command."},
		{errors.New("boom"), "Something went wrong. Please try again."},
	}
	for _, tt := range tests {
		if got := userMessage(tt.err); got != tt.want {
			t.Errorf("userMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestUserIDOf(t *testing.T) {
	guild := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{User: &discordgo.User{ID: "m1"}},
	}}
	dm := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		User: &discordgo.User{ID: "u1"},
	}}
	if got := userIDOf(guild); got != "m1" {
		t.Errorf("guild interaction = %q", got)
	}
	if got := userIDOf(dm); got != "u1" {
		t.Errorf("dm interaction = %q", got)
	}
	if got := userIDOf(nil); got != "" {
		t.Errorf("nil interaction = %q", got)
	}
}

func TestCommandList(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range commandList() {
		if seen[c.Name] {
			t.Fatalf("duplicate command %s", c.Name)
		}
		seen[c.Name] = true
		if c.Description == "" || len(c.Description) > 100 {
			t.Errorf("command %s has a bad description", c.Name)
		}
		if strings.ToLower(c.Name) != c.Name {
			t.Errorf("command %s must be lower case", c.Name)
		}
	}
	for _, name := range []string{"play", "playtop", "skip", "forward", "rewind", "247", "setdj", "requeue", "playlist", "join", "help"} {
		if !seen[name] {
			t.Errorf("missing command %s", name)
		}
	}
}
