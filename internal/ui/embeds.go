// Package ui renders player state and command results as Discord embeds
// and components.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/beatbox/internal/repository"
	"github.com/sonroyaalmerol/beatbox/internal/state"
	"github.com/sonroyaalmerol/beatbox/internal/utils"
)

const (
	ColorPrimary = 0x7c3aed
	ColorSuccess = 0x22c55e
	ColorError   = 0xef4444
	ColorWarning = 0xf59e0b
	ColorInfo    = 0x3b82f6

	QueuePageSize = 10
	maxDesc       = 4096
	maxField      = 1024
)

func trackLink(t state.Track, n int) string {
	title := strings.NewReplacer("[", "\\[", "]", "\\]").Replace(state.Truncate(t.Title, n))
	if t.URI == "" {
		return title
	}
	return fmt.Sprintf("[%s](%s)", title, t.URI)
}

func repeatIcon(m state.RepeatMode) string {
	switch m {
	case state.RepeatTrack:
		return "🔂"
	case state.RepeatQueue:
		return "🔁"
	}
	return ""
}

func volumeIcon(v int) string {
	switch {
	case v == 0:
		return "🔇"
	case v < 50:
		return "🔉"
	}
	return "🔊"
}

func NowPlaying(ps state.PlayerState) *discordgo.MessageEmbed {
	cur := ps.CurrentTrack
	if cur == nil {
		return &discordgo.MessageEmbed{
			Title:       "Nothing Playing",
			Description: "Use `/play` to start the music.",
			Color:       ColorWarning,
		}
	}
	author := "Now Playing 🎵"
	if ps.Paused {
		author = "Paused ⏸"
	}
	desc := strings.Join([]string{
		"by **" + utils.EscapeMd(cur.Author) + "**",
		"",
		fmt.Sprintf("%s %s %s", state.FormatDuration(ps.Position), state.ProgressBar(ps.Position, cur.Duration, state.ProgressLength), state.FormatDuration(cur.Duration)),
		"",
		strings.TrimSpace(fmt.Sprintf("%s %d%% %s", volumeIcon(ps.Volume), ps.Volume, repeatIcon(ps.RepeatMode))),
	}, "\n")

	embed := &discordgo.MessageEmbed{
		Author:      &discordgo.MessageEmbedAuthor{Name: author},
		Title:       state.Truncate(cur.Title, 60),
		URL:         cur.URI,
		Description: desc,
		Color:       ColorPrimary,
		Footer: &discordgo.MessageEmbedFooter{
			Text:    "Requested by " + cur.Requester.Username,
			IconURL: cur.Requester.Avatar,
		},
	}
	if n := len(ps.Queue); n > 0 {
		embed.Footer.Text += fmt.Sprintf(" • %s up next", songs(n))
	}
	if cur.ArtworkURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: cur.ArtworkURL}
	}
	return embed
}

func songs(n int) string {
	if n == 1 {
		return "1 song"
	}
	return fmt.Sprintf("%d songs", n)
}

// TotalPages is at least 1 so an empty queue still renders.
func TotalPages(queueLen, pageSize int) int {
	if pageSize <= 0 {
		pageSize = QueuePageSize
	}
	return max(1, (queueLen+pageSize-1)/pageSize)
}

// Queue renders one 1-based page of the upcoming tracks.
func Queue(ps state.PlayerState, page, pageSize int) (*discordgo.MessageEmbed, error) {
	if pageSize <= 0 {
		pageSize = QueuePageSize
	}
	total := TotalPages(len(ps.Queue), pageSize)
	if page < 1 || page > total {
		return nil, fmt.Errorf("the queue isn't that big")
	}

	embed := &discordgo.MessageEmbed{
		Author: &discordgo.MessageEmbedAuthor{Name: "Queue 📋"},
		Color:  ColorPrimary,
		Footer: &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Page %d of %d", page, total)},
	}
	if cur := ps.CurrentTrack; cur != nil {
		embed.Description = fmt.Sprintf("**Now Playing:**\n%s — %s", trackLink(*cur, 50), state.FormatDuration(cur.Duration))
	}

	if len(ps.Queue) == 0 {
		embed.Fields = []*discordgo.MessageEmbedField{{
			Name:  "Up Next",
			Value: "The queue is empty. Use `/play` to add tracks!",
		}}
		return embed, nil
	}

	begin := (page - 1) * pageSize
	end := min(begin+pageSize, len(ps.Queue))
	var b strings.Builder
	shown := 0
	for _, qt := range ps.Queue[begin:end] {
		line := fmt.Sprintf("`%2d.` %s — %s\n", qt.Position+1, trackLink(qt.Track, 40), state.FormatDuration(qt.Duration))
		if b.Len()+len(line) > maxField {
			break
		}
		b.WriteString(line)
		shown++
	}

	var totalLen int64
	for _, qt := range ps.Queue {
		totalLen += qt.Duration
	}
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Up Next", Value: strings.TrimRight(b.String(), "\n")},
		{Name: "In queue", Value: songs(len(ps.Queue)), Inline: true},
		{Name: "Total length", Value: state.FormatDuration(totalLen), Inline: true},
	}
	if m := repeatIcon(ps.RepeatMode); m != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Repeat", Value: m + " " + string(ps.RepeatMode), Inline: true})
	}
	return embed, nil
}

func TrackAdded(t state.Track, position int) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Author:      &discordgo.MessageEmbedAuthor{Name: "Added to Queue ✅"},
		Title:       state.Truncate(t.Title, 60),
		URL:         t.URI,
		Description: fmt.Sprintf("by **%s** — %s", utils.EscapeMd(t.Author), state.FormatDuration(t.Duration)),
		Color:       ColorSuccess,
	}
	if position < 0 {
		e.Footer = &discordgo.MessageEmbedFooter{Text: "Playing now"}
	} else {
		e.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Position #%d in queue", position+1)}
	}
	if t.ArtworkURL != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: t.ArtworkURL}
	}
	return e
}

// PlaylistAdded summarises a multi-track add. note carries resolver
// warnings such as tracks that were not found.
func PlaylistAdded(name string, tracks []state.Track, artwork, note string) *discordgo.MessageEmbed {
	var total int64
	for _, t := range tracks {
		total += t.Duration
	}
	title := name
	if title == "" {
		title = "Playlist"
	}
	desc := fmt.Sprintf("Added **%d** tracks — %s", len(tracks), state.FormatDuration(total))
	if note != "" {
		desc += "\n" + note
	}
	e := &discordgo.MessageEmbed{
		Author:      &discordgo.MessageEmbedAuthor{Name: "Playlist Added ✅"},
		Title:       state.Truncate(title, 60),
		Description: desc,
		Color:       ColorSuccess,
	}
	if artwork != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: artwork}
	}
	return e
}

func Error(msg string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Description: "❌ " + msg, Color: ColorError}
}

func Success(msg string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Description: "✅ " + msg, Color: ColorSuccess}
}

func Info(title, msg string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Title: title, Description: msg, Color: ColorInfo}
}

// Button ids on now-playing and queue messages.
const (
	ButtonPause    = "player:pause"
	ButtonResume   = "player:resume"
	ButtonSkip     = "player:skip"
	ButtonStop     = "player:stop"
	ButtonPrevious = "player:previous"
	ButtonQueue    = "player:queue"
	queuePagePref  = "queue:page:"
)

func PlayerButtons(paused bool) []discordgo.MessageComponent {
	toggle := discordgo.Button{Label: "⏸ Pause", Style: discordgo.PrimaryButton, CustomID: ButtonPause}
	if paused {
		toggle = discordgo.Button{Label: "▶️ Resume", Style: discordgo.PrimaryButton, CustomID: ButtonResume}
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "⏮", Style: discordgo.SecondaryButton, CustomID: ButtonPrevious},
			toggle,
			discordgo.Button{Label: "⏭", Style: discordgo.SecondaryButton, CustomID: ButtonSkip},
			discordgo.Button{Label: "⏹", Style: discordgo.DangerButton, CustomID: ButtonStop},
			discordgo.Button{Label: "📋", Style: discordgo.SecondaryButton, CustomID: ButtonQueue},
		}},
	}
}

func QueueButtons(page, total int) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "◀", Style: discordgo.SecondaryButton, CustomID: fmt.Sprintf("%s%d", queuePagePref, page-1), Disabled: page <= 1},
			discordgo.Button{Label: fmt.Sprintf("Page %d / %d", page, total), Style: discordgo.SecondaryButton, CustomID: "queue:current", Disabled: true},
			discordgo.Button{Label: "▶", Style: discordgo.SecondaryButton, CustomID: fmt.Sprintf("%s%d", queuePagePref, page+1), Disabled: page >= total},
		}},
	}
}

// ParseQueuePage extracts the page from a queue navigation button id.
func ParseQueuePage(customID string) (int, bool) {
	rest, ok := strings.CutPrefix(customID, queuePagePref)
	if !ok {
		return 0, false
	}
	n := utils.Atoi(rest)
	return n, n > 0
}

func SearchResults(query string, tracks []state.Track) *discordgo.MessageEmbed {
	var b strings.Builder
	for i, t := range tracks {
		fmt.Fprintf(&b, "`%d.` %s — %s\n", i+1, trackLink(t, 50), state.FormatDuration(t.Duration))
	}
	return &discordgo.MessageEmbed{
		Author:      &discordgo.MessageEmbedAuthor{Name: "Search Results 🔎"},
		Title:       state.Truncate(query, 60),
		Description: strings.TrimRight(b.String(), "\n"),
		Color:       ColorPrimary,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Pick a track below"},
	}
}

// SearchMenu offers the results as a select menu; values are track indexes.
func SearchMenu(tracks []state.Track) []discordgo.MessageComponent {
	opts := make([]discordgo.SelectMenuOption, 0, len(tracks))
	for i, t := range tracks {
		opts = append(opts, discordgo.SelectMenuOption{
			Label:       state.Truncate(t.Title, 100),
			Description: state.Truncate(t.Author+" • "+state.FormatDuration(t.Duration), 100),
			Value:       fmt.Sprint(i),
		})
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{CustomID: "search:pick", Placeholder: "Choose a track", Options: opts},
		}},
	}
}

func Lyrics(title, artist, text string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Author:      &discordgo.MessageEmbedAuthor{Name: "Lyrics 🎤"},
		Title:       state.Truncate(title, 60),
		Description: state.Truncate(text, maxDesc),
		Color:       ColorPrimary,
		Footer:      &discordgo.MessageEmbedFooter{Text: artist + " • lyrics.ovh"},
	}
}

func hm(ms int64) string {
	minutes := ms / 60000
	if h := minutes / 60; h > 0 {
		return fmt.Sprintf("%dh %dm", h, minutes%60)
	}
	return fmt.Sprintf("%dm", minutes)
}

func Stats(guildName string, s repository.Stats) *discordgo.MessageEmbed {
	if guildName == "" {
		guildName = "Server"
	}
	top := "No data yet"
	if s.TopTrack != nil {
		top = fmt.Sprintf("**%s**\nby %s — played **%dx**", state.Truncate(s.TopTrack.Title, 45), s.TopTrack.Author, s.TopTrack.Count)
	}
	listener := "No data yet"
	if s.TopRequester != nil {
		listener = fmt.Sprintf("<@%s> — **%d** tracks requested", s.TopRequester.UserID, s.TopRequester.Count)
	}
	sessions := []string{fmt.Sprintf("**%d** total sessions", s.SessionCount)}
	if m := int(s.AvgSessionLength / time.Minute); m > 0 {
		sessions = append(sessions, fmt.Sprintf("~**%dm** avg length", m))
	}
	if s.AvgTracksPerSession > 0 {
		sessions = append(sessions, fmt.Sprintf("~**%d** tracks/session", s.AvgTracksPerSession))
	}
	return &discordgo.MessageEmbed{
		Author:      &discordgo.MessageEmbedAuthor{Name: guildName + " Stats"},
		Title:       "Listening Stats",
		Description: "Here's what this server has been vibing to:",
		Color:       ColorPrimary,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Most Played Track", Value: top},
			{Name: "Top Listener", Value: listener, Inline: true},
			{Name: "Unique Listeners", Value: fmt.Sprintf("**%d** users", s.UniqueListeners), Inline: true},
			{Name: "Total Listening Time", Value: "**" + hm(s.TotalListeningMs) + "**", Inline: true},
			{Name: "Tracks Played", Value: fmt.Sprintf("**%d** total\n**%d** unique", s.TotalPlays, s.UniqueTracks), Inline: true},
			{Name: "Last 24 Hours", Value: fmt.Sprintf("**%d** tracks played", s.PlaysLast24h), Inline: true},
			{Name: "Sessions", Value: strings.Join(sessions, "\n"), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Stats are tracked per server"},
	}
}

func SavedQueues(list []repository.QueueSummary) *discordgo.MessageEmbed {
	var b strings.Builder
	for _, q := range list {
		fmt.Fprintf(&b, "**%s** — %s, %s • <t:%d:R>\n", utils.EscapeMd(q.Name), songs(q.TrackCount), state.FormatDuration(q.TotalDuration), q.CreatedAt.Unix())
	}
	plural := "s"
	if len(list) == 1 {
		plural = ""
	}
	return &discordgo.MessageEmbed{
		Author:      &discordgo.MessageEmbedAuthor{Name: "Your Saved Queues 💾"},
		Description: state.Truncate(strings.TrimRight(b.String(), "\n"), maxDesc),
		Color:       ColorPrimary,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Total: %d saved queue%s | Use /loadqueue <name> to load one", len(list), plural)},
	}
}

func Playlists(list []repository.PlaylistSummary) *discordgo.MessageEmbed {
	var b strings.Builder
	for _, p := range list {
		fmt.Fprintf(&b, "**%s** — %s\n", utils.EscapeMd(p.Name), songs(p.TrackCount))
	}
	return &discordgo.MessageEmbed{
		Author:      &discordgo.MessageEmbedAuthor{Name: "Your Playlists 🎶"},
		Description: state.Truncate(strings.TrimRight(b.String(), "\n"), maxDesc),
		Color:       ColorPrimary,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d playlists", len(list))},
	}
}

// PlaylistView lists the first 20 tracks of a playlist.
func PlaylistView(p *repository.Playlist) *discordgo.MessageEmbed {
	var b strings.Builder
	var total int64
	for i, t := range p.Tracks {
		total += t.Duration
		if i < 20 {
			fmt.Fprintf(&b, "`%d.` %s — %s\n", i+1, trackLink(t.Track(state.Requester{}), 45), state.FormatDuration(t.Duration))
		}
	}
	if len(p.Tracks) > 20 {
		fmt.Fprintf(&b, "... and %d more", len(p.Tracks)-20)
	}
	desc := strings.TrimRight(b.String(), "\n")
	if desc == "" {
		desc = "This playlist is empty. Use `/playlist add` to add tracks."
	}
	return &discordgo.MessageEmbed{
		Author:      &discordgo.MessageEmbedAuthor{Name: "Playlist 🎶"},
		Title:       state.Truncate(p.Name, 60),
		Description: desc,
		Color:       ColorPrimary,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%s · %s", songs(len(p.Tracks)), state.FormatDuration(total))},
	}
}

func Help(commands []*discordgo.ApplicationCommand) *discordgo.MessageEmbed {
	var b strings.Builder
	for _, c := range commands {
		fmt.Fprintf(&b, "`/%s` %s\n", c.Name, c.Description)
	}
	return &discordgo.MessageEmbed{
		Author:      &discordgo.MessageEmbedAuthor{Name: "Commands"},
		Description: state.Truncate(strings.TrimRight(b.String(), "\n"), maxDesc),
		Color:       ColorInfo,
	}
}

// Promo is the one-time message sent to regular users.
func Promo(botID string) (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	embed := &discordgo.MessageEmbed{
		Title:       "Thanks for using Beatbox!",
		Description: "You've been enjoying Beatbox. Here's what else you can do:",
		Color:       0x5865f2,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Web Dashboard", Value: "Control music and manage the queue from your browser.", Inline: true},
			{Name: "Playlists", Value: "Keep your favourite tracks with `/playlist create` and play them anytime.", Inline: true},
			{Name: "Server Stats", Value: "See what your server's been listening to with `/stats`.", Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "You won't receive this message again."},
	}
	invite := fmt.Sprintf("https://discord.com/oauth2/authorize?client_id=%s&permissions=3147776&scope=bot%%20applications.commands", botID)
	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Add Beatbox to Another Server", Style: discordgo.LinkButton, URL: invite},
		}},
	}
	return embed, components
}
