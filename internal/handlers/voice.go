package handlers

import (
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/beatbox/internal/state"
)

// VoiceForwarder receives the bot's voice credentials once both halves of
// a voice handshake have arrived.
type VoiceForwarder interface {
	VoiceUpdate(guildID, channelID, sessionID, token, endpoint string) error
}

type voiceHalf struct {
	channelID string
	sessionID string
	token     string
	endpoint  string
}

func (v voiceHalf) complete() bool {
	return v.channelID != "" && v.sessionID != "" && v.token != "" && v.endpoint != ""
}

// voiceTracker pairs the bot's VoiceStateUpdate with the VoiceServerUpdate
// for the same guild. Either can arrive first.
type voiceTracker struct {
	fwd VoiceForwarder

	mu     sync.Mutex
	guilds map[string]voiceHalf
}

func newVoiceTracker(fwd VoiceForwarder) *voiceTracker {
	return &voiceTracker{fwd: fwd, guilds: make(map[string]voiceHalf)}
}

func (v *voiceTracker) stateUpdate(guildID, channelID, sessionID string) {
	v.mu.Lock()
	if channelID == "" {
		delete(v.guilds, guildID)
		v.mu.Unlock()
		return
	}
	h := v.guilds[guildID]
	h.channelID = channelID
	h.sessionID = sessionID
	v.guilds[guildID] = h
	v.mu.Unlock()
	v.forward(guildID, h)
}

func (v *voiceTracker) serverUpdate(guildID, token, endpoint string) {
	v.mu.Lock()
	h := v.guilds[guildID]
	h.token = token
	h.endpoint = endpoint
	v.guilds[guildID] = h
	v.mu.Unlock()
	v.forward(guildID, h)
}

func (v *voiceTracker) forget(guildID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.guilds, guildID)
}

func (v *voiceTracker) forward(guildID string, h voiceHalf) {
	if v.fwd == nil || !h.complete() {
		return
	}
	if err := v.fwd.VoiceUpdate(guildID, h.channelID, h.sessionID, h.token, h.endpoint); err != nil {
		slog.Warn("forward voice update", "guildID", guildID, "err", err)
	}
}

func (b *Bot) onVoiceServerUpdate(s *discordgo.Session, e *discordgo.VoiceServerUpdate) {
	b.voice.serverUpdate(e.GuildID, e.Token, e.Endpoint)
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.VoiceState == nil {
		return
	}
	gid := vs.GuildID
	if s.State.User != nil && vs.UserID == s.State.User.ID {
		b.botVoiceChanged(gid, vs.ChannelID, vs.SessionID)
		return
	}

	prev := ""
	if vs.BeforeUpdate != nil {
		prev = vs.BeforeUpdate.ChannelID
	}
	if prev == vs.ChannelID {
		// mute, deafen and similar
		return
	}
	if b.voiceOut != nil {
		b.voiceOut.BroadcastVoice(state.VoiceUpdatePayload{GuildID: gid, UserID: vs.UserID, ChannelID: vs.ChannelID})
	}

	sess := b.reg.Peek(gid)
	if sess == nil {
		return
	}
	botCh := sess.VoiceChannelID()
	if botCh == "" || (prev != botCh && vs.ChannelID != botCh) {
		return
	}
	if !b.info.isBot(gid, vs.VoiceState) && b.eng != nil {
		if vs.ChannelID == botCh {
			b.eng.VoiceJoin(vs.UserID)
		} else {
			b.eng.VoiceLeave(vs.UserID)
		}
	}
	n := b.info.humansIn(gid, botCh)
	slog.Debug("listeners changed", "guildID", gid, "channelID", botCh, "listeners", n)
	sess.ListenersChanged(n)
}

func (b *Bot) botVoiceChanged(guildID, channelID, sessionID string) {
	b.voice.stateUpdate(guildID, channelID, sessionID)
	sess := b.reg.Peek(guildID)
	if sess == nil {
		return
	}
	if from := sess.VoiceChannelID(); from != channelID && b.eng != nil {
		moveListeners(b.eng, b.info, guildID, from, channelID)
	}
	if channelID == "" {
		slog.Info("removed from voice", "guildID", guildID)
		b.reg.OnVoiceClosed(guildID)
		return
	}
	sess.SetVoiceChannel(channelID)
	sess.ListenersChanged(b.info.humansIn(guildID, channelID))
}

type voiceTimer interface {
	VoiceJoin(userID string)
	VoiceLeave(userID string)
}

// moveListeners follows the bot from one channel to another: voice time
// stops for the humans left in from and starts for those already in to.
func moveListeners(vt voiceTimer, info stateInfo, guildID, from, to string) {
	for _, id := range info.humanIDs(guildID, from) {
		vt.VoiceLeave(id)
	}
	for _, id := range info.humanIDs(guildID, to) {
		vt.VoiceJoin(id)
	}
}

// joinVoice asks the gateway to move the bot into channelID. The audio node
// does the actual voice connection once the credentials are forwarded.
func (b *Bot) joinVoice(s *discordgo.Session, guildID, channelID string) error {
	return s.ChannelVoiceJoinManual(guildID, channelID, false, true)
}

func (b *Bot) leaveVoice(s *discordgo.Session, guildID string) {
	b.voice.forget(guildID)
	if err := s.ChannelVoiceJoinManual(guildID, "", false, false); err != nil {
		slog.Warn("leave voice", "guildID", guildID, "err", err)
	}
}
