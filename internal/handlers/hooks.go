package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/beatbox/internal/state"
	"github.com/sonroyaalmerol/beatbox/internal/ui"
)

const (
	jobBuffer  = 256
	jobTimeout = 10 * time.Second
)

// dispatch runs fn on the job worker. Player hooks fire on whatever
// goroutine drove the session, so Discord and database calls are moved off
// it. A full buffer drops the job.
func (b *Bot) dispatch(name string, fn func(ctx context.Context)) {
	select {
	case b.jobs <- job{name: name, fn: fn}:
	default:
		slog.Warn("job queue full, dropping", "job", name)
	}
}

type job struct {
	name string
	fn   func(ctx context.Context)
}

func (b *Bot) runJobs(ctx context.Context) {
	defer close(b.jobsDone)
	for {
		select {
		case <-ctx.Done():
			b.drainJobs()
			return
		case j := <-b.jobs:
			b.runJob(j)
		}
	}
}

// drainJobs finishes queued work so teardown hooks fired during shutdown
// still persist.
func (b *Bot) drainJobs() {
	for {
		select {
		case j := <-b.jobs:
			b.runJob(j)
		default:
			return
		}
	}
}

func (b *Bot) runJob(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	start := time.Now()
	j.fn(ctx)
	slog.Debug("job done", "job", j.name, "took", time.Since(start))
}

func (b *Bot) onTrackStarted(guildID string, t state.Track) {
	b.dispatch("track-started", func(ctx context.Context) {
		if b.eng != nil {
			b.eng.TrackPlayed(guildID, t)
		}
		sess := b.reg.Peek(guildID)
		if sess == nil || b.dg == nil {
			return
		}
		ch := sess.TextChannelID()
		if ch == "" {
			return
		}
		ps := sess.State()
		if _, err := b.dg.ChannelMessageSendComplex(ch, &discordgo.MessageSend{
			Embeds:     []*discordgo.MessageEmbed{ui.NowPlaying(ps)},
			Components: ui.PlayerButtons(ps.Paused),
		}, discordgo.WithContext(ctx)); err != nil {
			slog.Warn("post now playing", "guildID", guildID, "channelID", ch, "err", err)
		}
	})
}

func (b *Bot) onDestroyed(guildID string, final state.PlayerState, reason string) {
	b.dispatch("destroyed", func(ctx context.Context) {
		if err := persistLastQueue(ctx, b.repo, guildID, final); err != nil {
			slog.Warn("save last queue", "guildID", guildID, "err", err)
		}
		if b.eng != nil {
			b.eng.SessionEnded(guildID)
		}
		if b.dg != nil {
			b.leaveVoice(b.dg, guildID)
		}
		slog.Info("session torn down", "guildID", guildID, "reason", reason)
	})
}

type lastQueueSaver interface {
	SaveLastQueue(ctx context.Context, guild string, current *state.Track, upcoming []state.Track) error
}

// persistLastQueue snapshots the final queue so /requeue can restore it.
// An idle player leaves the previous snapshot alone.
func persistLastQueue(ctx context.Context, store lastQueueSaver, guildID string, final state.PlayerState) error {
	if store == nil || (final.CurrentTrack == nil && len(final.Queue) == 0) {
		return nil
	}
	upcoming := make([]state.Track, 0, len(final.Queue))
	for _, qt := range final.Queue {
		upcoming = append(upcoming, qt.Track)
	}
	return store.SaveLastQueue(ctx, guildID, final.CurrentTrack, upcoming)
}
