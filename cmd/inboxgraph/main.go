package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inboxgraph/inboxgraph/internal/api"
	"github.com/inboxgraph/inboxgraph/internal/auth"
	"github.com/inboxgraph/inboxgraph/internal/credential"
	"github.com/inboxgraph/inboxgraph/internal/logger"
	"github.com/inboxgraph/inboxgraph/internal/model"
	"github.com/inboxgraph/inboxgraph/internal/scanner"
	"github.com/inboxgraph/inboxgraph/internal/scanner/gmailapi"
	"github.com/inboxgraph/inboxgraph/internal/scanner/imapscan"
	"github.com/inboxgraph/inboxgraph/internal/store"
	appsync "github.com/inboxgraph/inboxgraph/internal/sync"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}

	log := logger.Init(logger.Config{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
	})

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Error("failed to open database", "path", cfg.Database.Path, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	secrets := credential.NewStore()
	provider := auth.NewProvider(
		cfg.OAuth.ClientID,
		cfg.OAuth.ClientSecret,
		cfg.OAuth.RedirectURL,
		cfg.GmailAPI.BaseURL+"/users/me/profile",
	)

	backends := map[scanner.Kind]scanner.Scanner{
		scanner.KindIMAP: imapscan.New(
			cfg.IMAP.Host, cfg.IMAP.Port, db, secrets, log,
		),
		scanner.KindGmailAPI: gmailapi.New(
			gmailapi.NewClient(cfg.GmailAPI.BaseURL), log,
		),
	}

	engine := scanner.NewEngine(scanner.NewJobs(), db, log)

	poller := appsync.New(engine, db, log)
	registerRescans(cfg, provider, backends, poller, log)
	poller.Start()
	defer poller.Stop()

	server := api.NewServer(engine, backends, db, provider, log)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "err", err)
		os.Exit(1)
	}

	log.Info("server exited gracefully")
}

// registerRescans exchanges each configured refresh token for a mail
// client and puts the account in the background rescan rotation. A bad
// entry is logged and skipped so one stale token cannot keep the server
// from starting.
func registerRescans(
	cfg *model.AppConfig,
	provider *auth.Provider,
	backends map[scanner.Kind]scanner.Scanner,
	poller *appsync.Poller,
	log *slog.Logger,
) {
	interval := time.Duration(cfg.Rescan.IntervalMinutes) * time.Minute

	for _, account := range cfg.Rescan.Accounts {
		backend, ok := backends[scanner.Kind(account.Kind)]
		if !ok {
			log.Warn("skipping rescan account with unknown scanner kind",
				"kind", account.Kind)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		client, err := provider.GetMailClient(ctx, account.RefreshToken)
		cancel()
		if err != nil {
			log.Warn("skipping rescan account, token exchange failed",
				"kind", account.Kind, "err", err)
			continue
		}

		scanCfg, err := scanner.PresetConfig(backend.Kind(), "full")
		if err != nil {
			log.Warn("skipping rescan account", "kind", account.Kind, "err", err)
			continue
		}

		poller.RegisterAccount(client, backend, scanCfg, interval)
		log.Info("registered rescan account",
			"account", client.AccountEmail, "kind", account.Kind)
	}
}
