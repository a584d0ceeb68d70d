package handlers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/beatbox/internal/autocomplete"
	"github.com/sonroyaalmerol/beatbox/internal/lyrics"
	"github.com/sonroyaalmerol/beatbox/internal/repository"
	"github.com/sonroyaalmerol/beatbox/internal/resolver"
	"github.com/sonroyaalmerol/beatbox/internal/state"
)

const (
	commandTimeout     = 30 * time.Second
	autocompleteWindow = 2500 * time.Millisecond
	defaultSeekStep    = 10 // seconds
	searchTTL          = 5 * time.Minute
)

type CommandHandler struct {
	bot     *Bot
	repo    *repository.Repo
	resolve *resolver.Resolver
	lyrics  *lyrics.Client
	suggest *autocomplete.Suggester

	// last search results per guild and user, for the select menu
	searches *lyrics.Cache[[]state.Track]
}

func NewCommandHandler(b *Bot, deps Deps) *CommandHandler {
	return &CommandHandler{
		bot:     b,
		repo:    deps.Repo,
		resolve: deps.Resolver,
		lyrics:  deps.Lyrics,
		suggest: deps.Suggester,

		searches: lyrics.NewCache[[]state.Track](searchTTL, nil),
	}
}

func str(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Name: name, Description: desc, Type: discordgo.ApplicationCommandOptionString, Required: required}
}

func integer(name, desc string, required bool, lo, hi float64) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Name: name, Description: desc, Type: discordgo.ApplicationCommandOptionInteger, Required: required,
		MinValue: &lo, MaxValue: hi,
	}
}

func sub(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Name: name, Description: desc, Type: discordgo.ApplicationCommandOptionSubCommand, Options: opts}
}

func commandList() []*discordgo.ApplicationCommand {
	query := str("query", "Song name, URL or Spotify link", true)
	query.Autocomplete = true
	topQuery := str("query", "Song name, URL or Spotify link", true)
	topQuery.Autocomplete = true
	manageGuild := int64(discordgo.PermissionManageGuild)

	return []*discordgo.ApplicationCommand{
		{Name: "play", Description: "Play a song or playlist", Options: []*discordgo.ApplicationCommandOption{query}},
		{Name: "playtop", Description: "Add a song to the front of the queue", Options: []*discordgo.ApplicationCommandOption{topQuery}},
		{Name: "search", Description: "Search and pick a song", Options: []*discordgo.ApplicationCommandOption{str("query", "What to search for", true)}},
		{Name: "pause", Description: "Pause playback"},
		{Name: "resume", Description: "Resume playback"},
		{Name: "skip", Description: "Skip the current song (vote if you are not the requester or a DJ)"},
		{Name: "previous", Description: "Play the previous song"},
		{Name: "stop", Description: "Stop playback and clear the queue"},
		{Name: "seek", Description: "Seek to a position in the current song", Options: []*discordgo.ApplicationCommandOption{
			str("position", "Seconds or a duration such as 1m30s", true),
		}},
		{Name: "forward", Description: "Skip forward in the current song", Options: []*discordgo.ApplicationCommandOption{
			integer("seconds", "Seconds to skip [default: 10]", false, 1, 3600),
		}},
		{Name: "rewind", Description: "Rewind the current song", Options: []*discordgo.ApplicationCommandOption{
			integer("seconds", "Seconds to rewind [default: 10]", false, 1, 3600),
		}},
		{Name: "volume", Description: "Set the volume", Options: []*discordgo.ApplicationCommandOption{
			integer("level", "0-100", true, 0, 100),
		}},
		{Name: "repeat", Description: "Set the repeat mode", Options: []*discordgo.ApplicationCommandOption{{
			Name: "mode", Description: "Repeat mode", Type: discordgo.ApplicationCommandOptionString, Required: true,
			Choices: []*discordgo.ApplicationCommandOptionChoice{
				{Name: "Off", Value: string(state.RepeatOff)},
				{Name: "Track", Value: string(state.RepeatTrack)},
				{Name: "Queue", Value: string(state.RepeatQueue)},
			},
		}}},
		{Name: "shuffle", Description: "Shuffle the queue"},
		{Name: "queue", Description: "Show the queue", Options: []*discordgo.ApplicationCommandOption{
			integer("page", "Page to show [default: 1]", false, 1, 1000),
		}},
		{Name: "nowplaying", Description: "Show the current song"},
		{Name: "remove", Description: "Remove a song from the queue", Options: []*discordgo.ApplicationCommandOption{
			integer("position", "Queue position", true, 1, float64(state.MaxQueueSize)),
		}},
		{Name: "move", Description: "Move a song within the queue", Options: []*discordgo.ApplicationCommandOption{
			integer("from", "Current position", true, 1, float64(state.MaxQueueSize)),
			integer("to", "New position", true, 1, float64(state.MaxQueueSize)),
		}},
		{Name: "clear", Description: "Clear the queue"},
		{Name: "removedupes", Description: "Remove duplicate songs from the queue"},
		{Name: "leavecleanup", Description: "Remove songs requested by users who left voice"},
		{Name: "247", Description: "Toggle 24/7 mode", DefaultMemberPermissions: &manageGuild},
		{Name: "setdj", Description: "Set or clear the DJ role", DefaultMemberPermissions: &manageGuild, Options: []*discordgo.ApplicationCommandOption{{
			Name: "role", Description: "DJ role (leave empty to clear)", Type: discordgo.ApplicationCommandOptionRole,
		}}},
		{Name: "savequeue", Description: "Save the current queue", Options: []*discordgo.ApplicationCommandOption{str("name", "Queue name", true)}},
		{Name: "loadqueue", Description: "Load a saved queue", Options: []*discordgo.ApplicationCommandOption{str("name", "Queue name", true)}},
		{Name: "savedqueues", Description: "List your saved queues"},
		{Name: "deletequeue", Description: "Delete a saved queue", Options: []*discordgo.ApplicationCommandOption{str("name", "Queue name", true)}},
		{Name: "requeue", Description: "Restore the last queue played in this server"},
		{Name: "lyrics", Description: "Show lyrics for the current or a given song", Options: []*discordgo.ApplicationCommandOption{
			str("query", "Artist - Title", false),
		}},
		{Name: "stats", Description: "Show listening stats for this server"},
		{Name: "playlist", Description: "Manage your playlists", Options: []*discordgo.ApplicationCommandOption{
			sub("create", "Create a playlist", str("name", "Playlist name", true)),
			sub("delete", "Delete a playlist", str("name", "Playlist name", true)),
			sub("list", "List your playlists"),
			sub("view", "Show a playlist", str("name", "Playlist name", true)),
			sub("add", "Add a song to a playlist", str("name", "Playlist name", true), str("query", "Song (defaults to the current one)", false)),
			sub("remove", "Remove a song from a playlist", str("name", "Playlist name", true), integer("position", "Track number", true, 1, 10000)),
			sub("play", "Queue a playlist", str("name", "Playlist name", true)),
		}},
		{Name: "join", Description: "Join your voice channel"},
		{Name: "help", Description: "List commands"},
	}
}

// RegisterCommands overwrites the application commands for guildID, or the
// global set when guildID is empty.
func (h *CommandHandler) RegisterCommands(s *discordgo.Session, appID string, guildID string) error {
	start := time.Now()
	slog.Info("registering application commands", "appID", appID, "guildID", guildID)
	cmds := commandList()
	if _, err := s.ApplicationCommandBulkOverwrite(appID, guildID, cmds); err != nil {
		return err
	}
	slog.Info("finished registering commands", "guildID", guildID, "count", len(cmds), "took", time.Since(start))
	return nil
}

func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	// cache the member so role and permission checks work without the
	// privileged members intent
	if i.Member != nil && i.GuildID != "" {
		m := *i.Member
		m.GuildID = i.GuildID
		if err := s.State.MemberAdd(&m); err != nil {
			slog.Debug("cache interaction member", "guildID", i.GuildID, "err", err)
		}
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		slog.Debug("interaction: application command", "guildID", i.GuildID, "userID", userIDOf(i), "command", i.ApplicationCommandData().Name)
		h.bot.eng.TrackInteraction(userIDOf(i))
		h.handleChatCommand(s, i)
	case discordgo.InteractionMessageComponent:
		slog.Debug("interaction: component", "guildID", i.GuildID, "userID", userIDOf(i), "customID", i.MessageComponentData().CustomID)
		h.bot.eng.TrackInteraction(userIDOf(i))
		h.handleComponent(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		h.handleAutocomplete(s, i)
	default:
		slog.Debug("interaction: ignored type", "type", i.Type, "guildID", i.GuildID)
	}
}

func (h *CommandHandler) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	var query string
	for _, opt := range data.Options {
		if opt.Focused {
			query = opt.StringValue()
			break
		}
	}
	choices := []*discordgo.ApplicationCommandOptionChoice{}
	if strings.TrimSpace(query) != "" && h.suggest != nil {
		// discord drops autocomplete answers after three seconds
		ctx, cancel := context.WithTimeout(context.Background(), autocompleteWindow)
		choices = h.suggest.Choices(ctx, query, 25)
		cancel()
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}); err != nil {
		slog.Debug("autocomplete response", "guildID", i.GuildID, "err", err)
	}
}

func (h *CommandHandler) handleChatCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if i.GuildID == "" {
		h.replyErr(s, i, errGuildOnly)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch data.Name {
	case "play":
		h.cmdPlay(ctx, s, i, false)
	case "playtop":
		h.cmdPlay(ctx, s, i, true)
	case "search":
		h.cmdSearch(ctx, s, i)
	case "pause":
		h.cmdPause(ctx, s, i)
	case "resume":
		h.cmdResume(ctx, s, i)
	case "skip":
		h.cmdSkip(ctx, s, i)
	case "previous":
		h.cmdPrevious(ctx, s, i)
	case "stop":
		h.cmdStop(ctx, s, i)
	case "seek":
		h.cmdSeek(ctx, s, i)
	case "forward":
		h.cmdSeekBy(ctx, s, i, 1)
	case "rewind":
		h.cmdSeekBy(ctx, s, i, -1)
	case "volume":
		h.cmdVolume(ctx, s, i)
	case "repeat":
		h.cmdRepeat(ctx, s, i)
	case "shuffle":
		h.cmdShuffle(ctx, s, i)
	case "queue":
		h.cmdQueue(s, i)
	case "nowplaying":
		h.cmdNowPlaying(s, i)
	case "remove":
		h.cmdRemove(ctx, s, i)
	case "move":
		h.cmdMove(ctx, s, i)
	case "clear":
		h.cmdClear(ctx, s, i)
	case "removedupes":
		h.cmdRemoveDupes(ctx, s, i)
	case "leavecleanup":
		h.cmdLeaveCleanup(ctx, s, i)
	case "247":
		h.cmdTwentyFourSeven(ctx, s, i)
	case "setdj":
		h.cmdSetDJ(ctx, s, i)
	case "savequeue":
		h.cmdSaveQueue(ctx, s, i)
	case "loadqueue":
		h.cmdLoadQueue(ctx, s, i)
	case "savedqueues":
		h.cmdSavedQueues(ctx, s, i)
	case "deletequeue":
		h.cmdDeleteQueue(ctx, s, i)
	case "requeue":
		h.cmdRequeue(ctx, s, i)
	case "lyrics":
		h.cmdLyrics(ctx, s, i)
	case "stats":
		h.cmdStats(ctx, s, i)
	case "playlist":
		h.cmdPlaylist(ctx, s, i)
	case "join":
		h.cmdJoin(ctx, s, i)
	case "help":
		h.cmdHelp(s, i)
	default:
		slog.Debug("unknown command", "name", data.Name, "guildID", i.GuildID, "userID", userIDOf(i))
	}
}

// options indexes the top level options, or a subcommand's options.
func options(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func optString(m map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if o, ok := m[name]; ok {
		return strings.TrimSpace(o.StringValue())
	}
	return ""
}

func optInt(m map[string]*discordgo.ApplicationCommandInteractionDataOption, name string, def int) int {
	if o, ok := m[name]; ok {
		return int(o.IntValue())
	}
	return def
}

func requesterOf(i *discordgo.InteractionCreate) state.Requester {
	var u *discordgo.User
	if i.Member != nil && i.Member.User != nil {
		u = i.Member.User
	} else {
		u = i.User
	}
	if u == nil {
		return state.Requester{}
	}
	name := u.Username
	if u.GlobalName != "" {
		name = u.GlobalName
	}
	return state.Requester{ID: u.ID, Username: name, Avatar: u.AvatarURL("")}
}
