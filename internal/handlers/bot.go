package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/beatbox/internal/autocomplete"
	"github.com/sonroyaalmerol/beatbox/internal/clock"
	"github.com/sonroyaalmerol/beatbox/internal/config"
	"github.com/sonroyaalmerol/beatbox/internal/engagement"
	"github.com/sonroyaalmerol/beatbox/internal/lyrics"
	"github.com/sonroyaalmerol/beatbox/internal/player"
	"github.com/sonroyaalmerol/beatbox/internal/repository"
	"github.com/sonroyaalmerol/beatbox/internal/resolver"
	"github.com/sonroyaalmerol/beatbox/internal/state"
	"github.com/sonroyaalmerol/beatbox/internal/ui"
)

// VoiceBroadcaster publishes user voice moves to dashboard clients.
type VoiceBroadcaster interface {
	BroadcastVoice(p state.VoiceUpdatePayload)
}

type Deps struct {
	Repo      *repository.Repo
	Audio     player.Audio
	Voice     VoiceForwarder
	Resolver  *resolver.Resolver
	Lyrics    *lyrics.Client
	Suggester *autocomplete.Suggester
	Clock     clock.Clock
}

type Bot struct {
	cfg  *config.Config
	dg   *discordgo.Session
	repo *repository.Repo
	reg  *player.Registry
	ctl  *player.Controller
	cmd  *CommandHandler
	eng  *engagement.Tracker
	info stateInfo
	clk  clock.Clock

	voice    *voiceTracker
	voiceOut VoiceBroadcaster

	jobs     chan job
	jobsDone chan struct{}
}

func NewBot(cfg *config.Config, deps Deps) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	dg.StateEnabled = true
	dg.State.TrackVoice = true
	dg.State.TrackRoles = true
	dg.State.TrackMembers = true

	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	b := &Bot{
		cfg:      cfg,
		clk:      clk,
		dg:       dg,
		repo:     deps.Repo,
		info:     stateInfo{st: dg.State},
		voice:    newVoiceTracker(deps.Voice),
		jobs:     make(chan job, jobBuffer),
		jobsDone: make(chan struct{}),
	}
	b.eng = engagement.New(deps.Repo, clk, b.sendPromo, slog.Default())
	b.reg = player.NewRegistry(player.Options{
		Audio:             deps.Audio,
		Clock:             clk,
		DisconnectTimeout: cfg.DisconnectTimeout,
		RequeueOnRepeat:   cfg.RequeueOnRepeat,
		MaxQueue:          cfg.MaxQueueSize,
		Hooks: player.Hooks{
			TrackStarted: b.onTrackStarted,
			Destroyed:    b.onDestroyed,
		},
		Logger: slog.Default(),
	})
	b.ctl = &player.Controller{
		Registry: b.reg,
		Auth:     &djAuthorizer{settings: deps.Repo, info: b.info},
		Voice:    listenerCounter{reg: b.reg, info: b.info},
	}
	b.cmd = NewCommandHandler(b, deps)
	return b, nil
}

func (b *Bot) now() time.Time { return b.clk.Now() }

func (b *Bot) Registry() *player.Registry     { return b.reg }
func (b *Bot) Controller() *player.Controller { return b.ctl }

// SetVoiceBroadcaster must be called before Run.
func (b *Bot) SetVoiceBroadcaster(v VoiceBroadcaster) { b.voiceOut = v }

// Requester describes a user for tracks added from outside Discord.
func (b *Bot) Requester(userID string) state.Requester {
	u, err := b.dg.User(userID)
	if err != nil || u == nil {
		return state.Requester{ID: userID, Username: "dashboard"}
	}
	return state.Requester{ID: u.ID, Username: u.Username, Avatar: u.AvatarURL("")}
}

func (b *Bot) Run(ctx context.Context) error {
	dg := b.dg

	// On ready: register commands depending on configuration
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("connected", "user", s.State.User.Username, "guilds", len(r.Guilds))
		b.setPresence(s)
		appID := s.State.User.ID

		if b.cfg.RegisterCommandsGlobally {
			if err := b.cmd.RegisterCommands(s, appID, ""); err != nil {
				slog.Error("register global commands", "err", err)
			} else {
				slog.Info("registered global application commands")
			}
			return
		}
		var wg sync.WaitGroup
		for _, g := range r.Guilds {
			wg.Add(1)
			go func(guildID string) {
				defer wg.Done()
				if err := b.cmd.RegisterCommands(s, appID, guildID); err != nil {
					slog.Error("register guild commands", "guild", guildID, "err", err)
				}
			}(g.ID)
		}
		wg.Wait()

		if _, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
			slog.Error("clear global commands", "err", err)
		}
		slog.Info("registered commands on all guilds")
	})

	// If registering per-guild, register on new guilds too
	dg.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		if b.cfg.RegisterCommandsGlobally || s.State.User == nil {
			return
		}
		if err := b.cmd.RegisterCommands(s, s.State.User.ID, g.ID); err != nil {
			slog.Error("register guild commands on join", "guild", g.ID, "err", err)
		}
	})

	dg.AddHandler(func(s *discordgo.Session, g *discordgo.GuildDelete) {
		if g.Unavailable {
			return
		}
		b.reg.Remove(g.ID, "guild left")
	})

	dg.AddHandler(b.cmd.HandleInteraction)
	dg.AddHandler(b.onVoiceStateUpdate)
	dg.AddHandler(b.onVoiceServerUpdate)

	jobCtx, stopJobs := context.WithCancel(context.Background())
	go b.runJobs(jobCtx)

	if err := dg.Open(); err != nil {
		stopJobs()
		<-b.jobsDone
		return fmt.Errorf("open gateway: %w", err)
	}

	<-ctx.Done()
	slog.Info("shutting down bot")

	// teardown hooks queue their jobs before the worker drains
	b.reg.Shutdown()
	stopJobs()
	<-b.jobsDone
	b.eng.Close()
	return dg.Close()
}

func (b *Bot) setPresence(s *discordgo.Session) {
	if err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: b.cfg.BotStatus,
		Activities: []*discordgo.Activity{{
			Name: b.cfg.BotActivity,
			Type: discordgo.ActivityTypeListening,
		}},
	}); err != nil {
		slog.Warn("update presence", "err", err)
	}
}

// sendPromo DMs the one-time promo message.
func (b *Bot) sendPromo(ctx context.Context, userID string) error {
	ch, err := b.dg.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm: %w", err)
	}
	botID := ""
	if b.dg.State.User != nil {
		botID = b.dg.State.User.ID
	}
	embed, components := ui.Promo(botID)
	_, err = b.dg.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	}, discordgo.WithContext(ctx))
	return err
}

// session returns the guild's player, creating it with the guild's stored
// settings when there is none.
func (b *Bot) session(ctx context.Context, guildID, voiceChannelID, textChannelID string) *player.Session {
	if sess := b.reg.Peek(guildID); sess != nil && !sess.Destroyed() {
		return sess
	}
	set, err := b.repo.GetGuildSettings(ctx, guildID)
	if err != nil {
		slog.Warn("load guild settings", "guildID", guildID, "err", err)
		set = repository.GuildSettings{GuildID: guildID, DefaultVolume: b.cfg.DefaultVolume, DefaultRepeat: state.RepeatOff}
	}
	vol := set.DefaultVolume
	if vol <= 0 {
		vol = b.cfg.DefaultVolume
	}
	sess, created := b.reg.Create(guildID, player.SessionConfig{
		Volume:          vol,
		RepeatMode:      set.DefaultRepeat,
		TwentyFourSeven: set.TwentyFourSeven,
		VoiceChannelID:  voiceChannelID,
		TextChannelID:   textChannelID,
	})
	if created {
		slog.Info("player created", "guildID", guildID, "voiceChannelID", voiceChannelID, "volume", vol)
		b.eng.SessionStarted(guildID)
	}
	return sess
}
