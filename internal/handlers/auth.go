package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/beatbox/internal/player"
	"github.com/sonroyaalmerol/beatbox/internal/repository"
)

// guildInfo is the slice of the gateway cache the authorizer needs.
type guildInfo interface {
	memberRoles(guildID, userID string) []string
	canManage(guildID, userID string) bool
	userChannel(guildID, userID string) string
	humansIn(guildID, channelID string) int
}

type stateInfo struct {
	st *discordgo.State
}

func (si stateInfo) memberRoles(guildID, userID string) []string {
	m, err := si.st.Member(guildID, userID)
	if err != nil || m == nil {
		return nil
	}
	return m.Roles
}

// canManage reports guild owner, Administrator or Manage Server.
func (si stateInfo) canManage(guildID, userID string) bool {
	g, err := si.st.Guild(guildID)
	if err != nil || g == nil {
		return false
	}
	if g.OwnerID == userID {
		return true
	}
	// the @everyone role shares the guild's ID
	roles := append([]string{guildID}, si.memberRoles(guildID, userID)...)
	for _, id := range roles {
		r, err := si.st.Role(guildID, id)
		if err != nil || r == nil {
			continue
		}
		if r.Permissions&(discordgo.PermissionAdministrator|discordgo.PermissionManageGuild) != 0 {
			return true
		}
	}
	return false
}

func (si stateInfo) userChannel(guildID, userID string) string {
	vs, err := si.st.VoiceState(guildID, userID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}

func (si stateInfo) humansIn(guildID, channelID string) int {
	if channelID == "" {
		return 0
	}
	n := 0
	for _, vs := range si.voiceStates(guildID, channelID) {
		if !si.isBot(guildID, vs) {
			n++
		}
	}
	return n
}

// voiceStates copies the voice states of channelID under the state lock.
func (si stateInfo) voiceStates(guildID, channelID string) []*discordgo.VoiceState {
	g, err := si.st.Guild(guildID)
	if err != nil || g == nil {
		return nil
	}
	si.st.RLock()
	defer si.st.RUnlock()
	var out []*discordgo.VoiceState
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == channelID {
			out = append(out, vs)
		}
	}
	return out
}

// humanIDs returns the non-bot users in channelID.
func (si stateInfo) humanIDs(guildID, channelID string) []string {
	if channelID == "" {
		return nil
	}
	var out []string
	for _, vs := range si.voiceStates(guildID, channelID) {
		if !si.isBot(guildID, vs) {
			out = append(out, vs.UserID)
		}
	}
	return out
}

// usersIn returns the IDs of everyone in channelID.
func (si stateInfo) usersIn(guildID, channelID string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, vs := range si.voiceStates(guildID, channelID) {
		out[vs.UserID] = struct{}{}
	}
	return out
}

func (si stateInfo) isBot(guildID string, vs *discordgo.VoiceState) bool {
	if vs.Member != nil && vs.Member.User != nil {
		return vs.Member.User.Bot
	}
	if si.st.User != nil && vs.UserID == si.st.User.ID {
		return true
	}
	m, err := si.st.Member(guildID, vs.UserID)
	if err != nil || m == nil || m.User == nil {
		return false
	}
	return m.User.Bot
}

// djRequired is returned when a DJ role is set and the user lacks it.
type djRequired struct {
	roleID string
}

func (e djRequired) Error() string { return fmt.Sprintf("dj role %s required", e.roleID) }

func (e djRequired) Is(target error) bool { return target == player.ErrNotPermitted }

type settingsLoader interface {
	GetGuildSettings(ctx context.Context, guild string) (repository.GuildSettings, error)
}

// djAuthorizer gates DJ-only operations behind the guild's DJ role. Server
// managers and a user alone in voice with the bot are always allowed.
type djAuthorizer struct {
	settings settingsLoader
	info     guildInfo
}

func (a *djAuthorizer) Authorize(ctx context.Context, guildID, userID string, op player.Op) error {
	if !op.DJOnly() {
		return nil
	}
	set, err := a.settings.GetGuildSettings(ctx, guildID)
	if err != nil {
		// settings errors fall open
		slog.Warn("load guild settings for dj check", "guildID", guildID, "err", err)
		return nil
	}
	if set.DJRoleID == "" {
		return nil
	}
	if a.info.canManage(guildID, userID) {
		return nil
	}
	if slices.Contains(a.info.memberRoles(guildID, userID), set.DJRoleID) {
		return nil
	}
	if ch := a.info.userChannel(guildID, userID); ch != "" && a.info.humansIn(guildID, ch) == 1 {
		return nil
	}
	return djRequired{roleID: set.DJRoleID}
}

// listenerCounter reports the humans in the bot's voice channel.
type listenerCounter struct {
	reg  *player.Registry
	info guildInfo
}

func (l listenerCounter) Listeners(guildID string) int {
	sess := l.reg.Peek(guildID)
	if sess == nil {
		return 0
	}
	return l.info.humansIn(guildID, sess.VoiceChannelID())
}
