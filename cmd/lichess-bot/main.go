package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/lichess-cheese-bot/internal/admission"
	"github.com/park285/lichess-cheese-bot/internal/config"
	"github.com/park285/lichess-cheese-bot/internal/dispatcher"
	"github.com/park285/lichess-cheese-bot/internal/engine"
	"github.com/park285/lichess-cheese-bot/internal/lichess"
	"github.com/park285/lichess-cheese-bot/internal/obslog"
	"github.com/park285/lichess-cheese-bot/internal/registry"
	"github.com/park285/lichess-cheese-bot/internal/session"
	"github.com/park285/lichess-cheese-bot/internal/stats"
)

// apiClient adapts the concrete lichess client to the interfaces the
// dispatcher and sessions consume.
type apiClient struct {
	*lichess.Client
}

func (c apiClient) StreamEvents(ctx context.Context) (dispatcher.EventStream, error) {
	return c.Client.StreamEvents(ctx)
}

func (c apiClient) StreamGame(ctx context.Context, gameID string) (session.GameStream, error) {
	return c.Client.StreamGame(ctx, gameID)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if err := obslog.InitFromEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	log := obslog.L()
	defer func() { _ = log.Sync() }()

	log.Info("lichess bot starting",
		zap.String("username", cfg.BotUsername),
		zap.String("base_url", cfg.BaseURL),
		zap.String("engine", cfg.StockfishPath),
		zap.Int("depth", cfg.EngineDepth))

	client := apiClient{lichess.NewClient(cfg.BaseURL, cfg.Token)}

	store, err := stats.Open(cfg.StatsFile)
	if err != nil {
		log.Fatal("open stats store", zap.Error(err))
	}
	log.Info("stats store loaded", zap.String("path", cfg.StatsFile), zap.Int("sessions", store.Len()))

	reg := registry.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	threads := engine.Threads()
	hashMB := engine.HashSizeMB(cfg.MaxHashMB)
	log.Info("engine settings", zap.Int("threads", threads), zap.Int("hash_mb", hashMB))

	newSession := func(gameID string) dispatcher.Runner {
		return session.New(session.Params{
			GameID:      gameID,
			BotUsername: cfg.BotUsername,
			Depth:       cfg.EngineDepth,
			GameLogDir:  cfg.GameLogDir,
		}, session.Deps{
			Client: client,
			NewEngine: func(ctx context.Context) (session.MoveEngine, error) {
				return engine.New(ctx, cfg.StockfishPath, engine.Options{
					Threads: threads,
					HashMB:  hashMB,
				})
			},
			Stats:    store,
			Registry: reg,
			Log:      log,
		})
	}

	disp := dispatcher.New(admission.Policy{
		Speeds:            cfg.AcceptSpeeds,
		Variants:          cfg.AcceptVariants,
		DailyFlaggedLimit: cfg.BotDailyLimit,
	}, dispatcher.Deps{
		Client:     client,
		Counter:    store,
		Registry:   reg,
		NewSession: newSession,
		Log:        log,
	})

	idle := dispatcher.NewIdleChallenger(dispatcher.IdleParams{
		Interval:   time.Duration(cfg.IdleSeconds) * time.Second,
		Candidates: cfg.IdleCandidates,
	}, client, reg, log)

	go idle.Run(ctx)
	go func() {
		if err := disp.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("dispatcher stopped", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info("shutting down", zap.String("signal", s.String()))
	case <-ctx.Done():
	}
	cancel()
	// In-flight sessions are not awaited; the server aborts abandoned games.
	log.Info("bye")
}
