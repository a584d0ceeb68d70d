package handlers

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/beatbox/internal/lyrics"
	"github.com/sonroyaalmerol/beatbox/internal/player"
	"github.com/sonroyaalmerol/beatbox/internal/repository"
	"github.com/sonroyaalmerol/beatbox/internal/resolver"
	"github.com/sonroyaalmerol/beatbox/internal/spotify"
	"github.com/sonroyaalmerol/beatbox/internal/ui"
)

// userMessage maps an error to text shown to the user.
func userMessage(err error) string {
	var dj djRequired
	switch {
	case errors.As(err, &dj):
		return fmt.Sprintf("You need the <@&%s> role to use this command.", dj.roleID)
	case errors.Is(err, player.ErrNoActivePlayer):
		return "There is no active player in this server."
	case errors.Is(err, player.ErrNothingPlaying):
		return "There is no music currently playing."
	case errors.Is(err, player.ErrNotPermitted):
		return "You need the DJ role to use this command."
	case errors.Is(err, player.ErrEmptyQueue):
		return "The queue is empty."
	case errors.Is(err, player.ErrOutOfBounds):
		return "That position isn't in the queue."
	case errors.Is(err, player.ErrOutOfRange):
		return "That value is out of range."
	case errors.Is(err, player.ErrInsufficientTracks):
		return "Need at least 2 tracks in the queue to shuffle."
	case errors.Is(err, player.ErrEmptyHistory):
		return "There is no previous track."
	case errors.Is(err, player.ErrQueueFull):
		return "The queue is full."
	case errors.Is(err, player.ErrDestroyed):
		return "The player was stopped."
	case errors.Is(err, resolver.ErrNotFound):
		return "No results found for your search."
	case errors.Is(err, resolver.ErrEmptyQuery):
		return "Please provide something to search for."
	case errors.Is(err, lyrics.ErrNotFound):
		return "No lyrics found for this track."
	case errors.Is(err, repository.ErrQueueTooLarge):
		return fmt.Sprintf("Queue is too large. Maximum %d tracks allowed.", repository.MaxSavedQueueTracks)
	case errors.Is(err, errNotInVoice):
		return "You need to be in a voice channel to use this command."
	case errors.Is(err, errWrongChannel):
		return "You need to be in the same voice channel as the bot."
	case errors.Is(err, errAlreadyHere):
		return "I'm already in your voice channel."
	case errors.Is(err, errListenersElsewhere):
		return "I can't leave because there are other listeners in my current channel."
	case errors.Is(err, errNoLastQueue):
		return "No saved queue found. The queue is saved automatically when the player stops."
	case errors.Is(err, errEmptySaved):
		return "That saved queue is empty."
	case errors.Is(err, errGuildOnly):
		return "This command can only be used in a server."
	case errors.Is(err, errSearchExpired):
		return "That search has expired. Run /search again."
	case errors.Is(err, player.ErrInvalidRepeatMode):
		return "Invalid repeat mode."
	case errors.Is(err, spotify.ErrNotConfigured):
		return "Spotify links are not configured on this bot."
	case errors.Is(err, repository.ErrNotFound):
		return "Nothing saved under that name."
	case errors.Is(err, repository.ErrOutOfRange):
		return "That track number isn't in the playlist."
	case errors.Is(err, repository.ErrExists):
		return "You already have one with that name."
	}
	return "Something went wrong. Please try again."
}

var (
	errNotInVoice    = errors.New("user not in voice")
	errWrongChannel  = errors.New("user in another voice channel")
	errGuildOnly     = errors.New("guild only")
	errSearchExpired = errors.New("search expired")
)

func (h *CommandHandler) respond(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
			Flags:      flags,
		},
	}); err != nil {
		slog.Warn("reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	h.respond(s, i, embed, nil, false)
}

func (h *CommandHandler) replyErr(s *discordgo.Session, i *discordgo.InteractionCreate, err error) {
	slog.Debug("command failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	h.respond(s, i, ui.Error(userMessage(err)), nil, true)
}

func (h *CommandHandler) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	}); err != nil {
		slog.Warn("defer reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) {
	edit := &discordgo.WebhookEdit{Embeds: &[]*discordgo.MessageEmbed{embed}}
	if components != nil {
		edit.Components = &components
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		slog.Warn("edit reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) editErr(s *discordgo.Session, i *discordgo.InteractionCreate, err error) {
	slog.Debug("deferred command failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	h.editReply(s, i, ui.Error(userMessage(err)), nil)
}

// update replaces the message a component was attached to.
func (h *CommandHandler) update(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	}); err != nil {
		slog.Warn("update message failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func userIDOf(i *discordgo.InteractionCreate) string {
	if i == nil {
		return ""
	}
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
