package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sonroyaalmerol/beatbox/internal/audionode"
	"github.com/sonroyaalmerol/beatbox/internal/autocomplete"
	"github.com/sonroyaalmerol/beatbox/internal/config"
	"github.com/sonroyaalmerol/beatbox/internal/dashboard"
	"github.com/sonroyaalmerol/beatbox/internal/handlers"
	"github.com/sonroyaalmerol/beatbox/internal/logging"
	"github.com/sonroyaalmerol/beatbox/internal/lyrics"
	"github.com/sonroyaalmerol/beatbox/internal/repository"
	"github.com/sonroyaalmerol/beatbox/internal/resolver"
	"github.com/sonroyaalmerol/beatbox/internal/spotify"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("starting beatbox", "version", version)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := repository.Open(cfg.DataDir)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	repo := repository.NewRepo(db)

	var (
		expander resolver.SpotifyExpander
		searcher autocomplete.SpotifySearcher
	)
	sp, err := spotify.NewClientCredentials(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret)
	switch {
	case err == nil:
		expander, searcher = sp, sp
	case errors.Is(err, spotify.ErrNotConfigured):
		logger.Info("spotify credentials not set, spotify links disabled")
	default:
		logger.Warn("spotify client", "err", err)
	}
	res := resolver.New(&resolver.YTDLP{CookiesPath: cfg.YTDLPCookies}, expander, cfg.PlaylistLimit)

	botID, err := handlers.BotIDFromToken(cfg.DiscordToken)
	if err != nil {
		log.Fatal(err)
	}
	node := audionode.New(audionode.Options{
		URL:    cfg.AudioNodeURL,
		BotID:  botID,
		Logger: logger.With("component", "audionode"),
	})

	bot, err := handlers.NewBot(cfg, handlers.Deps{
		Repo:      repo,
		Audio:     node,
		Voice:     node,
		Resolver:  res,
		Lyrics:    lyrics.NewClient(lyrics.Options{TTL: cfg.LyricsCacheTTL}),
		Suggester: autocomplete.New(searcher),
	})
	if err != nil {
		log.Fatal(err)
	}
	node.SetHandler(bot.Registry())

	hub := dashboard.New(dashboard.Options{
		Registry:      bot.Registry(),
		Controller:    bot.Controller(),
		Resolver:      res,
		Requester:     bot.Requester,
		AllowedOrigin: cfg.DashboardOrigin,
		Version:       version,
		Logger:        logger.With("component", "dashboard"),
	})
	bot.Registry().SetBroadcaster(hub)
	bot.SetVoiceBroadcaster(hub)

	srv := &http.Server{
		Addr:         cfg.DashboardAddr,
		Handler:      hub.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errChan := make(chan error, 2)
	go func() {
		logger.Info("dashboard listening", slog.String("addr", cfg.DashboardAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	nodeCtx, stopNode := context.WithCancel(context.Background())
	nodeDone := make(chan struct{})
	go func() {
		defer close(nodeDone)
		if err := node.Run(nodeCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("audio node client stopped", "err", err)
		}
	}()

	botCtx, stopBot := context.WithCancel(context.Background())
	botDone := make(chan error, 1)
	go func() { botDone <- bot.Run(botCtx) }()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errChan:
		logger.Error("dashboard server error", "err", err)
	case err := <-botDone:
		logger.Error("bot stopped", "err", err)
		botDone <- err
	}

	// the bot tears players down while the node connection is still open
	stopBot()
	if err := <-botDone; err != nil {
		logger.Warn("bot shutdown", "err", err)
	}
	stopNode()
	<-nodeDone

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("dashboard shutdown", "err", err)
	}
	logger.Info("beatbox stopped")
}
