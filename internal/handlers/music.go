package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/beatbox/internal/player"
	"github.com/sonroyaalmerol/beatbox/internal/resolver"
	"github.com/sonroyaalmerol/beatbox/internal/state"
	"github.com/sonroyaalmerol/beatbox/internal/ui"
	"github.com/sonroyaalmerol/beatbox/internal/utils"
)

var (
	errAlreadyHere        = errors.New("already in that channel")
	errListenersElsewhere = errors.New("listeners in current channel")
)

func (h *CommandHandler) botChannel(s *discordgo.Session, guildID string) string {
	if s.State.User == nil {
		return ""
	}
	return h.bot.info.userChannel(guildID, s.State.User.ID)
}

// prepare makes sure the caller is in voice, the guild has a player and
// the bot is in the caller's channel.
func (h *CommandHandler) prepare(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) (*player.Session, error) {
	uid := userIDOf(i)
	ch := h.bot.info.userChannel(i.GuildID, uid)
	if ch == "" {
		return nil, errNotInVoice
	}
	botCh := h.botChannel(s, i.GuildID)
	if botCh != "" && botCh != ch {
		return nil, errWrongChannel
	}
	sess := h.bot.session(ctx, i.GuildID, ch, i.ChannelID)
	if _, err := h.bot.ctl.Guard(ctx, i.GuildID, uid, player.OpQueueAdd); err != nil {
		return nil, err
	}
	if botCh == "" {
		if err := h.bot.joinVoice(s, i.GuildID, ch); err != nil {
			return nil, fmt.Errorf("join voice: %w", err)
		}
		sess.SetVoiceChannel(ch)
	}
	sess.CancelDisconnect()
	return sess, nil
}

// enqueue adds a resolved result to the session. With top set the tracks go
// to the front of the queue in their original order.
func enqueue(sess *player.Session, res resolver.Result, top bool) (*discordgo.MessageEmbed, error) {
	tracks := res.Tracks
	if len(tracks) == 0 {
		return nil, resolver.ErrNotFound
	}
	if len(tracks) == 1 {
		index := -1
		if top {
			index = 0
		}
		pos, err := sess.QueueAdd(tracks[0], index)
		if err != nil {
			return nil, err
		}
		return ui.TrackAdded(tracks[0], pos), nil
	}

	added := 0
	if top {
		idx := 0
		for _, t := range tracks {
			pos, err := sess.QueueAdd(t, idx)
			if err != nil {
				if added == 0 {
					return nil, err
				}
				break
			}
			if pos >= 0 {
				idx = pos + 1
			}
			added++
		}
	} else {
		n, err := sess.QueueAddMany(tracks)
		if err != nil {
			return nil, err
		}
		added = n
	}
	note := res.Note
	if added < len(tracks) {
		skipped := fmt.Sprintf("%d tracks did not fit in the queue.", len(tracks)-added)
		if note != "" {
			note += "\n"
		}
		note += skipped
	}
	return ui.PlaylistAdded(res.PlaylistName, tracks[:added], res.ArtworkURL, note), nil
}

func (h *CommandHandler) cmdPlay(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, top bool) {
	query := optString(options(i.ApplicationCommandData().Options), "query")
	if h.bot.info.userChannel(i.GuildID, userIDOf(i)) == "" {
		h.replyErr(s, i, errNotInVoice)
		return
	}
	h.deferReply(s, i, false)

	res, err := h.resolve.Resolve(ctx, query, requesterOf(i))
	if err != nil {
		h.editErr(s, i, err)
		return
	}
	sess, err := h.prepare(ctx, s, i)
	if err != nil {
		h.editErr(s, i, err)
		return
	}
	embed, err := enqueue(sess, res, top)
	if err != nil {
		h.editErr(s, i, err)
		return
	}
	h.editReply(s, i, embed, nil)
}

func searchKey(guildID, userID string) string { return guildID + ":" + userID }

func (h *CommandHandler) cmdSearch(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	query := optString(options(i.ApplicationCommandData().Options), "query")
	h.deferReply(s, i, false)
	tracks, err := h.resolve.Search(ctx, query, state.SearchLimit)
	if err != nil {
		h.editErr(s, i, err)
		return
	}
	req := requesterOf(i)
	for n := range tracks {
		tracks[n].Requester = req
	}
	h.searches.Set(searchKey(i.GuildID, req.ID), tracks)
	h.editReply(s, i, ui.SearchResults(query, tracks), ui.SearchMenu(tracks))
}

func (h *CommandHandler) pickSearch(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	values := i.MessageComponentData().Values
	tracks, ok := h.searches.Get(searchKey(i.GuildID, userIDOf(i)))
	if !ok || len(values) == 0 {
		h.replyErr(s, i, errSearchExpired)
		return
	}
	n := utils.Atoi(values[0])
	if n < 0 || n >= len(tracks) {
		h.replyErr(s, i, errSearchExpired)
		return
	}
	sess, err := h.prepare(ctx, s, i)
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	embed, err := enqueue(sess, resolver.Result{Kind: resolver.KindTrack, Tracks: tracks[n : n+1]}, false)
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	h.update(s, i, embed, []discordgo.MessageComponent{})
}

// control runs fn on the caller's session once op is authorized.
func (h *CommandHandler) control(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, op player.Op, fn func(*player.Session) (*discordgo.MessageEmbed, error)) {
	sess, err := h.bot.ctl.Guard(ctx, i.GuildID, userIDOf(i), op)
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	embed, err := fn(sess)
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	h.reply(s, i, embed)
}

func (h *CommandHandler) cmdPause(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.control(ctx, s, i, player.OpPause, func(sess *player.Session) (*discordgo.MessageEmbed, error) {
		if err := sess.Pause(); err != nil {
			return nil, err
		}
		return ui.Success("⏸️ Paused the player."), nil
	})
}

func (h *CommandHandler) cmdResume(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.control(ctx, s, i, player.OpResume, func(sess *player.Session) (*discordgo.MessageEmbed, error) {
		if err := sess.Resume(); err != nil {
			return nil, err
		}
		return ui.Success("▶️ Resumed the player."), nil
	})
}

func skipMessage(out player.SkipOutcome, title string) *discordgo.MessageEmbed {
	if out.By == "vote" && !out.Vote.Skipped {
		return ui.Info("Vote to skip", fmt.Sprintf("🗳️ **%d/%d** votes to skip **%s**", out.Vote.Votes, out.Vote.Required, utils.EscapeMd(title)))
	}
	return ui.Success(fmt.Sprintf("⏭️ Skipped **%s**", utils.EscapeMd(title)))
}

func (h *CommandHandler) cmdSkip(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.skip(ctx, s, i, false)
}

// skip goes through the controller so non-DJs cast a vote. Vote tallies are
// always public.
func (h *CommandHandler) skip(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) {
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
	out, err := h.bot.ctl.Skip(ctx, i.GuildID, userIDOf(i))
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	h.respond(s, i, skipMessage(out, cur.Title), nil, ephemeral && out.By != "vote")
}

func (h *CommandHandler) cmdPrevious(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.control(ctx, s, i, player.OpPrevious, func(sess *player.Session) (*discordgo.MessageEmbed, error) {
		if err := sess.Previous(); err != nil {
			return nil, err
		}
		msg := "⏮️ Playing the previous track."
		if cur := sess.Current(); cur != nil {
			msg = fmt.Sprintf("⏮️ Playing **%s**", utils.EscapeMd(cur.Title))
		}
		return ui.Success(msg), nil
	})
}

func (h *CommandHandler) cmdStop(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.control(ctx, s, i, player.OpStop, func(sess *player.Session) (*discordgo.MessageEmbed, error) {
		if err := sess.Stop(); err != nil {
			return nil, err
		}
		return ui.Success("⏹️ Stopped the player and cleared the queue."), nil
	})
}

func (h *CommandHandler) cmdSeek(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	secs := utils.ParseDurationString(optString(options(i.ApplicationCommandData().Options), "position"))
	h.control(ctx, s, i, player.OpSeek, func(sess *player.Session) (*discordgo.MessageEmbed, error) {
		if secs < 0 {
			return nil, player.ErrOutOfRange
		}
		ms := int64(secs) * 1000
		if err := sess.Seek(ms); err != nil {
			return nil, err
		}
		return ui.Success("Seeked to **" + state.FormatDuration(ms) + "**"), nil
	})
}

// cmdSeekBy moves dir*seconds from the current position, clamped to the
// track.
func (h *CommandHandler) cmdSeekBy(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, dir int) {
	secs := optInt(options(i.ApplicationCommandData().Options), "seconds", defaultSeekStep)
	h.control(ctx, s, i, player.OpSeek, func(sess *player.Session) (*discordgo.MessageEmbed, error) {
		pos, err := sess.SeekBy(time.Duration(dir*secs) * time.Second)
		if err != nil {
			return nil, err
		}
		verb := "⏩ Forwarded"
		if dir < 0 {
			verb = "⏪ Rewound"
		}
		return ui.Success(fmt.Sprintf("%s %ds to **%s**", verb, secs, state.FormatDuration(pos))), nil
	})
}

func (h *CommandHandler) cmdVolume(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	level := optInt(options(i.ApplicationCommandData().Options), "level", -1)
	h.control(ctx, s, i, player.OpVolume, func(sess *player.Session) (*discordgo.MessageEmbed, error) {
		if err := sess.SetVolume(level); err != nil {
			return nil, err
		}
		return ui.Success(fmt.Sprintf("🔊 Volume set to **%d%%**", level)), nil
	})
}

func (h *CommandHandler) cmdRepeat(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	mode := state.RepeatMode(optString(options(i.ApplicationCommandData().Options), "mode"))
	h.control(ctx, s, i, player.OpRepeat, func(sess *player.Session) (*discordgo.MessageEmbed, error) {
		if err := sess.SetRepeat(mode); err != nil {
			return nil, err
		}
		switch mode {
		case state.RepeatTrack:
			return ui.Success("🔂 Repeating the current track."), nil
		case state.RepeatQueue:
			return ui.Success("🔁 Repeating the queue."), nil
		}
		return ui.Success("➡️ Repeat is off."), nil
	})
}

func (h *CommandHandler) cmdShuffle(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.control(ctx, s, i, player.OpShuffle, func(sess *player.Session) (*discordgo.MessageEmbed, error) {
		if err := sess.Shuffle(); err != nil {
			return nil, err
		}
		return ui.Success(fmt.Sprintf("🔀 Shuffled **%d** tracks.", len(sess.State().Queue))), nil
	})
}

func (h *CommandHandler) queuePage(guildID string, page int) (*discordgo.MessageEmbed, []discordgo.MessageComponent, error) {
	sess, err := h.bot.reg.Get(guildID)
	if err != nil {
		return nil, nil, err
	}
	ps := sess.State()
	if ps.CurrentTrack == nil && len(ps.Queue) == 0 {
		return nil, nil, player.ErrNothingPlaying
	}
	embed, err := ui.Queue(ps, page, ui.QueuePageSize)
	if err != nil {
		return nil, nil, err
	}
	return embed, ui.QueueButtons(page, ui.TotalPages(len(ps.Queue), ui.QueuePageSize)), nil
}

func (h *CommandHandler) cmdQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	page := optInt(options(i.ApplicationCommandData().Options), "page", 1)
	embed, components, err := h.queuePage(i.GuildID, page)
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	h.respond(s, i, embed, components, false)
}

func (h *CommandHandler) cmdNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess, err := h.bot.reg.Get(i.GuildID)
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	ps := sess.State()
	if ps.CurrentTrack == nil {
		h.replyErr(s, i, player.ErrNothingPlaying)
		return
	}
	h.respond(s, i, ui.NowPlaying(ps), ui.PlayerButtons(ps.Paused), false)
}

func (h *CommandHandler) cmdRemove(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	pos := optInt(options(i.ApplicationCommandData().Options), "position", 0)
	h.control(ctx, s, i, player.OpQueueRemove, func(sess *player.Session) (*discordgo.MessageEmbed, error) {
		t, err := sess.QueueRemove(pos - 1)
		if err != nil {
			return nil, err
		}
		return ui.Success(fmt.Sprintf("Removed **%s** from the queue.", utils.EscapeMd(t.Title))), nil
	})
}

func (h *CommandHandler) cmdMove(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := options(i.ApplicationCommandData().Options)
	from, to := optInt(opts, "from", 0), optInt(opts, "to", 0)
	h.control(ctx, s, i, player.OpQueueMove, func(sess *player.Session) (*discordgo.MessageEmbed, error) {
		t, err := sess.QueueMove(from-1, to-1)
		if err != nil {
			return nil, err
		}
		return ui.Success(fmt.Sprintf("Moved **%s** to position **%d**.", utils.EscapeMd(t.Title), to)), nil
	})
}

func (h *CommandHandler) cmdClear(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.control(ctx, s, i, player.OpQueueClear, func(sess *player.Session) (*discordgo.MessageEmbed, error) {
		n, err := sess.QueueClear()
		if err != nil {
			return nil, err
		}
		return ui.Success(fmt.Sprintf("🗑️ Cleared **%d** tracks from the queue.", n)), nil
	})
}

func (h *CommandHandler) cmdRemoveDupes(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.control(ctx, s, i, player.OpDedupe, func(sess *player.Session) (*discordgo.MessageEmbed, error) {
		n, err := sess.RemoveDuplicates()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return ui.Success("No duplicate tracks found in the queue."), nil
		}
		return ui.Success(fmt.Sprintf("Removed **%d** duplicate tracks.", n)), nil
	})
}

func (h *CommandHandler) cmdLeaveCleanup(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.control(ctx, s, i, player.OpLeaveClean, func(sess *player.Session) (*discordgo.MessageEmbed, error) {
		ch := sess.VoiceChannelID()
		if ch == "" {
			return nil, errNotInVoice
		}
		present := h.bot.info.usersIn(i.GuildID, ch)
		n, err := sess.RemoveWhere(func(qt state.QueueTrack) bool {
			_, ok := present[qt.Requester.ID]
			return !ok
		})
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return ui.Success("No tracks from users who left the voice channel."), nil
		}
		return ui.Success(fmt.Sprintf("Removed **%d** tracks from users who left the voice channel.", n)), nil
	})
}

func (h *CommandHandler) cmdJoin(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	ch := h.bot.info.userChannel(i.GuildID, userIDOf(i))
	if ch == "" {
		h.replyErr(s, i, errNotInVoice)
		return
	}
	botCh := h.botChannel(s, i.GuildID)
	switch {
	case botCh == ch:
		h.replyErr(s, i, errAlreadyHere)
		return
	case botCh != "" && h.bot.info.humansIn(i.GuildID, botCh) > 0:
		h.replyErr(s, i, errListenersElsewhere)
		return
	}
	sess := h.bot.session(ctx, i.GuildID, ch, i.ChannelID)
	if err := h.bot.joinVoice(s, i.GuildID, ch); err != nil {
		h.replyErr(s, i, fmt.Errorf("join voice: %w", err))
		return
	}
	sess.SetVoiceChannel(ch)
	sess.CancelDisconnect()
	verb := "Joined"
	if botCh != "" {
		verb = "Moved to"
	}
	h.reply(s, i, ui.Success(fmt.Sprintf("%s <#%s>.", verb, ch)))
}
