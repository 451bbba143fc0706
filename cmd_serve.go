/*
Package main
File: cmd_serve.go
Description:
    The 'serve' command: builds every component and runs them until a signal
    arrives. SIGHUP reloads the catalog.
*/

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/everforgeworks/idle-tycoon/internal/api"
	"github.com/everforgeworks/idle-tycoon/internal/auth"
	"github.com/everforgeworks/idle-tycoon/internal/game"
	"github.com/everforgeworks/idle-tycoon/internal/logging"
	"github.com/everforgeworks/idle-tycoon/internal/metrics"
	"github.com/everforgeworks/idle-tycoon/internal/session"
	"github.com/everforgeworks/idle-tycoon/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the economy server",
	Long: `Run the economy server.

The server keeps one session per signed-in player, accrues passive income
every 100ms, pushes state to connected clients over /ws and serves the REST
API under /api. Send SIGHUP to reload the catalog without a restart.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log, verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// 1. Load the catalog
	catalog, err := game.LoadCatalog(cfg.Game.CatalogPath)
	if err != nil {
		return fmt.Errorf("catalog fail: %w", err)
	}
	for _, id := range catalog.DanglingManagers() {
		logger.Warn("manager upgrade targets unknown business", zap.String("upgrade_id", id))
	}

	// 2. Open the stores
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	local, err := store.OpenLocal(cfg.LocalStorePath())
	if err != nil {
		return err
	}
	defer local.Close()
	docs, err := store.OpenDocuments(cfg.DocumentStorePath())
	if err != nil {
		return err
	}
	defer docs.Close()
	gateway := store.NewGateway(local, docs, logger.Named("store"))

	// 3. Identity
	secret := cfg.Auth.Secret
	if secret == "" {
		secret = randomSecret()
		logger.Warn("auth.secret not set, sessions will not survive a restart")
	}
	verifier := auth.NewJWTVerifier(cfg.Auth.IdentitySecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	provider, err := auth.NewProvider(auth.Options{
		Secret:           secret,
		AllowedProviders: cfg.Auth.AllowedProviders,
		TokenTTL:         cfg.Auth.TokenTTL,
	}, verifier, gateway, logger.Named("auth"))
	if err != nil {
		return err
	}

	// 4. Sessions and the real-time hub
	m := metrics.Default()
	hub := api.NewHub(m, logger.Named("hub"))
	sessions := session.NewManager(catalog, gateway, hub, m, logger.Named("session"), session.Options{
		PulseEvery:       cfg.Game.PulseEvery,
		AutoSaveInterval: cfg.Game.AutoSaveInterval,
		AutoSaveDefault:  cfg.Game.AutoSaveDefault,
	})

	srv := api.NewServer(cfg.Server, sessions, provider, hub, m, logger.Named("api"))
	defer srv.Close()
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return sessions.Run(ctx) })

	// 5. Hot reload: SIGHUP, and file changes when enabled
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				logger.Info("SIGHUP: reloading catalog")
				_ = sessions.ReloadCatalogFile(cfg.Game.CatalogPath)
			}
		}
	})
	if cfg.Game.WatchCatalog && cfg.Game.CatalogPath != "" {
		g.Go(func() error { return sessions.WatchCatalog(ctx, cfg.Game.CatalogPath, 250*time.Millisecond) })
	}

	// 6. Serve until a signal arrives
	g.Go(func() error {
		logger.Info("server live", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		if serr := sessions.Shutdown(shutdownCtx); serr != nil && err == nil {
			err = serr
		}
		logger.Info("server stopped")
		return err
	})

	return g.Wait()
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
