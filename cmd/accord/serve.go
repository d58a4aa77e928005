package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/accord-chat/accord/internal/auth"
	"github.com/accord-chat/accord/internal/config"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/gateway"
	"github.com/accord-chat/accord/internal/httpapi"
	"github.com/accord-chat/accord/internal/permissions"
	"github.com/accord-chat/accord/internal/store"
	"github.com/accord-chat/accord/internal/tracing"
	"github.com/accord-chat/accord/internal/voice"
)

// runServe wires and runs the main node until SIGINT/SIGTERM.
func runServe(cfg *config.Config) error {
	shutdownTracing, err := tracing.Setup(cfg.Server.Trace, version)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Migrate(cfg.Database.URL); err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	st := store.New(pool)
	authSvc := auth.NewService(st)
	perms := permissions.NewResolver(st)
	bus := events.NewBus()
	registry := gateway.NewSessionRegistry()
	presence := gateway.NewPresenceTable()
	states := voice.NewStateTable()

	var (
		router    voice.RouterClient
		directory *voice.Directory
	)
	switch cfg.Voice.Backend {
	case config.VoiceBackendLiveKit:
		router = voice.NewLiveKitRouter(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret)
	default:
		directory = voice.NewDirectory(st)
		if err := directory.Restore(ctx); err != nil {
			return err
		}
		go directory.RunReaper(ctx, cfg.Timings.ReaperTick, cfg.Timings.ReapThreshold)
		router = voice.NewEmbeddedRouter(directory, cfg.Sfu.Secret, cfg.Voice.DefaultRegion)
	}

	coordinator := voice.NewCoordinator(st, perms, bus, states, router, directory, cfg.Voice.DefaultRegion)
	gatewayHandler := gateway.NewHandler(cfg, st, authSvc, coordinator, bus, registry, presence, version)
	server := httpapi.NewServer(cfg, st, authSvc, perms, bus, coordinator, directory, registry, gatewayHandler, version)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}

	cancel()
	registry.CloseAll()
	bus.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("tracing shutdown", "error", err)
	}
	return nil
}
