package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/beatbox/internal/lyrics"
	"github.com/sonroyaalmerol/beatbox/internal/player"
	"github.com/sonroyaalmerol/beatbox/internal/repository"
	"github.com/sonroyaalmerol/beatbox/internal/resolver"
	"github.com/sonroyaalmerol/beatbox/internal/state"
	"github.com/sonroyaalmerol/beatbox/internal/ui"
	"github.com/sonroyaalmerol/beatbox/internal/utils"
)

var (
	errEmptySaved  = errors.New("saved queue is empty")
	errNoLastQueue = errors.New("no last queue")
)

func storedTracks(stored []repository.StoredTrack, req state.Requester) []state.Track {
	out := make([]state.Track, 0, len(stored))
	for _, st := range stored {
		out = append(out, st.Track(req))
	}
	return out
}

func (h *CommandHandler) cmdTwentyFourSeven(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.deferReply(s, i, false)
	set, err := h.repo.GetGuildSettings(ctx, i.GuildID)
	if err != nil {
		h.editErr(s, i, err)
		return
	}
	on := !set.TwentyFourSeven
	if err := h.repo.SetTwentyFourSeven(ctx, i.GuildID, on); err != nil {
		h.editErr(s, i, err)
		return
	}
	if sess := h.bot.reg.Peek(i.GuildID); sess != nil {
		sess.SetTwentyFourSeven(on)
	}
	slog.Info("24/7 mode toggled", "guildID", i.GuildID, "enabled", on)

	msg := "24/7 mode is now **disabled**. The bot will pause and disconnect after the idle timeout when everyone leaves."
	if on {
		msg = "24/7 mode is now **enabled**. The bot will stay in the voice channel even when everyone leaves."
	}
	h.editReply(s, i, ui.Success(msg), nil)
}

func (h *CommandHandler) cmdSetDJ(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := options(i.ApplicationCommandData().Options)
	roleID := ""
	if o, ok := opts["role"]; ok {
		if r := o.RoleValue(s, i.GuildID); r != nil {
			roleID = r.ID
		}
	}
	if err := h.repo.SetDJRole(ctx, i.GuildID, roleID); err != nil {
		h.replyErr(s, i, err)
		return
	}
	if roleID == "" {
		h.reply(s, i, ui.Success("DJ role cleared. Everyone can control the player."))
		return
	}
	h.reply(s, i, ui.Success(fmt.Sprintf("DJ role set to <@&%s>. Only members with this role can control the player.", roleID)))
}

func (h *CommandHandler) cmdSaveQueue(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := optString(options(i.ApplicationCommandData().Options), "name")
	sess, err := h.bot.reg.Get(i.GuildID)
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	ps := sess.State()
	tracks := make([]state.Track, 0, len(ps.Queue)+1)
	if ps.CurrentTrack != nil {
		tracks = append(tracks, *ps.CurrentTrack)
	}
	for _, qt := range ps.Queue {
		tracks = append(tracks, qt.Track)
	}
	if len(tracks) == 0 {
		h.replyErr(s, i, player.ErrEmptyQueue)
		return
	}
	if err := h.repo.SaveQueue(ctx, i.GuildID, userIDOf(i), name, tracks); err != nil {
		h.replyErr(s, i, err)
		return
	}
	h.reply(s, i, ui.Success(fmt.Sprintf("Saved **%d** tracks as **%s**.", len(tracks), utils.EscapeMd(name))))
}

func (h *CommandHandler) cmdLoadQueue(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := optString(options(i.ApplicationCommandData().Options), "name")
	if h.bot.info.userChannel(i.GuildID, userIDOf(i)) == "" {
		h.replyErr(s, i, errNotInVoice)
		return
	}
	h.deferReply(s, i, false)
	q, err := h.repo.LoadQueue(ctx, i.GuildID, userIDOf(i), name)
	if err != nil {
		h.editErr(s, i, err)
		return
	}
	if len(q.Tracks) == 0 {
		h.editErr(s, i, errEmptySaved)
		return
	}
	h.restore(ctx, s, i, resolver.Result{
		Kind:         resolver.KindPlaylist,
		Tracks:       storedTracks(q.Tracks, requesterOf(i)),
		PlaylistName: q.Name,
	})
}

// restore queues tracks loaded from storage without resolving them again.
func (h *CommandHandler) restore(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, res resolver.Result) {
	sess, err := h.prepare(ctx, s, i)
	if err != nil {
		h.editErr(s, i, err)
		return
	}
	embed, err := enqueue(sess, res, false)
	if err != nil {
		h.editErr(s, i, err)
		return
	}
	h.editReply(s, i, embed, nil)
}

func (h *CommandHandler) cmdSavedQueues(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	list, err := h.repo.ListSavedQueues(ctx, i.GuildID, userIDOf(i))
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	h.respond(s, i, ui.SavedQueues(list), nil, true)
}

func (h *CommandHandler) cmdDeleteQueue(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := optString(options(i.ApplicationCommandData().Options), "name")
	if err := h.repo.DeleteSavedQueue(ctx, i.GuildID, userIDOf(i), name); err != nil {
		h.replyErr(s, i, err)
		return
	}
	h.respond(s, i, ui.Success(fmt.Sprintf("Deleted saved queue **%s**.", utils.EscapeMd(name))), nil, true)
}

// cmdRequeue restores the snapshot taken when the last player was torn
// down, then forgets it.
func (h *CommandHandler) cmdRequeue(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if h.bot.info.userChannel(i.GuildID, userIDOf(i)) == "" {
		h.replyErr(s, i, errNotInVoice)
		return
	}
	h.deferReply(s, i, false)
	stored, err := h.repo.LastQueue(ctx, i.GuildID)
	if errors.Is(err, repository.ErrNotFound) {
		err = errNoLastQueue
	}
	if err != nil {
		h.editErr(s, i, err)
		return
	}
	sess, err := h.prepare(ctx, s, i)
	if err != nil {
		h.editErr(s, i, err)
		return
	}
	n, err := sess.QueueAddMany(storedTracks(stored, requesterOf(i)))
	if err != nil {
		h.editErr(s, i, err)
		return
	}
	if err := h.repo.SaveLastQueue(ctx, i.GuildID, nil, nil); err != nil {
		slog.Warn("clear last queue", "guildID", i.GuildID, "err", err)
	}
	msg := fmt.Sprintf("Restored queue with **%d** tracks.", n)
	if len(stored) > 0 && stored[0].WasPlaying {
		msg = fmt.Sprintf("Restored queue starting from **%s**.", utils.EscapeMd(stored[0].Title))
	}
	h.editReply(s, i, ui.Success(msg), nil)
}

func (h *CommandHandler) cmdLyrics(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	query := optString(options(i.ApplicationCommandData().Options), "query")
	var artist, title string
	if query != "" {
		a, t, ok := lyrics.SplitTitle(query)
		if !ok {
			h.replyErr(s, i, lyrics.ErrNotFound)
			return
		}
		artist, title = a, t
	} else {
		sess, err := h.bot.reg.Get(i.GuildID)
		if err != nil {
			h.replyErr(s, i, err)
			return
		}
		cur := sess.Current()
		if cur == nil {
			h.replyErr(s, i, player.ErrNothingPlaying)
			return
		}
		artist, title = cur.Author, cur.Title
		if a, t, ok := lyrics.SplitTitle(cur.Title); ok {
			artist, title = a, t
		}
	}
	h.deferReply(s, i, false)
	text, err := h.lyrics.Get(ctx, artist, title)
	if err != nil {
		h.editErr(s, i, err)
		return
	}
	h.editReply(s, i, ui.Lyrics(title, artist, text), nil)
}

func (h *CommandHandler) cmdStats(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.deferReply(s, i, false)
	st, err := h.repo.GuildStats(ctx, i.GuildID, h.bot.now())
	if err != nil {
		h.editErr(s, i, err)
		return
	}
	name := "this server"
	if g, err := s.State.Guild(i.GuildID); err == nil && g.Name != "" {
		name = g.Name
	}
	h.editReply(s, i, ui.Stats(name, st), nil)
}

func (h *CommandHandler) cmdPlaylist(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]
	opts := options(sub.Options)
	uid := userIDOf(i)
	name := optString(opts, "name")

	switch sub.Name {
	case "create":
		if err := h.repo.CreatePlaylist(ctx, uid, name); err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.respond(s, i, ui.Success(fmt.Sprintf("Created playlist **%s**.", utils.EscapeMd(name))), nil, true)
	case "delete":
		if err := h.repo.DeletePlaylist(ctx, uid, name); err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.respond(s, i, ui.Success(fmt.Sprintf("Deleted playlist **%s**.", utils.EscapeMd(name))), nil, true)
	case "list":
		list, err := h.repo.ListPlaylists(ctx, uid)
		if err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.respond(s, i, ui.Playlists(list), nil, true)
	case "view":
		p, err := h.repo.GetPlaylist(ctx, uid, name)
		if err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.reply(s, i, ui.PlaylistView(p))
	case "add":
		h.playlistAdd(ctx, s, i, name, optString(opts, "query"))
	case "remove":
		t, err := h.repo.RemovePlaylistTrack(ctx, uid, name, optInt(opts, "position", 0)-1)
		if err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.respond(s, i, ui.Success(fmt.Sprintf("Removed **%s** from **%s**.", utils.EscapeMd(t.Title), utils.EscapeMd(name))), nil, true)
	case "play":
		if h.bot.info.userChannel(i.GuildID, uid) == "" {
			h.replyErr(s, i, errNotInVoice)
			return
		}
		h.deferReply(s, i, false)
		p, err := h.repo.GetPlaylist(ctx, uid, name)
		if err != nil {
			h.editErr(s, i, err)
			return
		}
		if len(p.Tracks) == 0 {
			h.editErr(s, i, errEmptySaved)
			return
		}
		h.restore(ctx, s, i, resolver.Result{
			Kind:         resolver.KindPlaylist,
			Tracks:       storedTracks(p.Tracks, requesterOf(i)),
			PlaylistName: p.Name,
		})
	}
}

// playlistAdd stores query's first match, or the playing track when query
// is empty.
func (h *CommandHandler) playlistAdd(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, name, query string) {
	h.deferReply(s, i, true)
	var t state.Track
	if query == "" {
		sess, err := h.bot.reg.Get(i.GuildID)
		if err != nil {
			h.editErr(s, i, err)
			return
		}
		cur := sess.Current()
		if cur == nil {
			h.editErr(s, i, player.ErrNothingPlaying)
			return
		}
		t = *cur
	} else {
		res, err := h.resolve.Resolve(ctx, query, requesterOf(i))
		if err != nil {
			h.editErr(s, i, err)
			return
		}
		if len(res.Tracks) == 0 {
			h.editErr(s, i, resolver.ErrNotFound)
			return
		}
		t = res.Tracks[0]
	}
	n, err := h.repo.AddPlaylistTrack(ctx, userIDOf(i), name, t)
	if err != nil {
		h.editErr(s, i, err)
		return
	}
	h.editReply(s, i, ui.Success(fmt.Sprintf("Added **%s** to **%s** (%d tracks).", utils.EscapeMd(t.Title), utils.EscapeMd(name), n)), nil)
}

func (h *CommandHandler) cmdHelp(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.respond(s, i, ui.Help(commandList()), nil, true)
}
