package handlers

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/beatbox/internal/player"
	"github.com/sonroyaalmerol/beatbox/internal/ui"
)

var buttonOps = map[string]player.Op{
	ui.ButtonPause:    player.OpPause,
	ui.ButtonResume:   player.OpResume,
	ui.ButtonStop:     player.OpStop,
	ui.ButtonPrevious: player.OpPrevious,
}

func (h *CommandHandler) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	id := i.MessageComponentData().CustomID
	switch id {
	case "search:pick":
		h.pickSearch(ctx, s, i)
		return
	case ui.ButtonSkip:
		h.skip(ctx, s, i, true)
		return
	case ui.ButtonQueue:
		embed, components, err := h.queuePage(i.GuildID, 1)
		if err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.respond(s, i, embed, components, true)
		return
	}
	if page, ok := ui.ParseQueuePage(id); ok {
		embed, components, err := h.queuePage(i.GuildID, page)
		if err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.update(s, i, embed, components)
		return
	}
	op, ok := buttonOps[id]
	if !ok {
		slog.Debug("unknown component", "customID", id, "guildID", i.GuildID)
		return
	}
	sess, err := h.bot.ctl.Guard(ctx, i.GuildID, userIDOf(i), op)
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	var msg string
	switch op {
	case player.OpPause:
		err, msg = sess.Pause(), "⏸️ Paused the player."
	case player.OpResume:
		err, msg = sess.Resume(), "▶️ Resumed the player."
	case player.OpStop:
		err, msg = sess.Stop(), "⏹️ Stopped the player and cleared the queue."
	case player.OpPrevious:
		err, msg = sess.Previous(), "⏮️ Playing the previous track."
	}
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	h.respond(s, i, ui.Success(msg), nil, true)
}
