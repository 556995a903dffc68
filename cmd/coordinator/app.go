package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/example/meeting-coordinator/internal/config"
	"github.com/example/meeting-coordinator/internal/identity"
	"github.com/example/meeting-coordinator/internal/jobs"
	"github.com/example/meeting-coordinator/internal/logging"
	"github.com/example/meeting-coordinator/internal/persistence/sqlite"
)

const shutdownTimeout = 10 * time.Second

func newApp() *cli.App {
	return &cli.App{
		Name:  "coordinator",
		Usage: "Meeting scheduling coordinator API.",
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			workerCommand(),
			tokenCommand(),
		},
		Action: serve,
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API (default).",
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer srv.close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("coordinator API listening", "addr", server.Addr, "storage", cfg.Storage)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server encountered error: %w", err)
	}
	return nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations and report the schema version.",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.NewLogger(cfg.LogLevel)

			store, err := openStorage(c.Context, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := store.Close(); cerr != nil {
					logger.Error("failed to close storage", "error", cerr)
				}
			}()

			if err := store.Migrate(c.Context); err != nil {
				return fmt.Errorf("failed to apply migrations: %w", err)
			}

			sq, ok := store.(*sqlite.Storage)
			if !ok {
				fmt.Fprintf(c.App.Writer, "%s schema is up to date\n", cfg.Storage)
				return nil
			}
			status, err := sq.MigrationStatus(c.Context)
			if err != nil {
				return fmt.Errorf("failed to read migration status: %w", err)
			}
			for _, applied := range status.AppliedMigrations {
				fmt.Fprintf(c.App.Writer, "%s\t%s\n", applied.Version, applied.AppliedAt.UTC().Format(time.RFC3339))
			}
			fmt.Fprintf(c.App.Writer, "current version: %s\n", status.CurrentVersion)
			return nil
		},
	}
}

func workerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Consume calendar publish jobs from Redis.",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.RedisURL == "" || !cfg.CalDAV.Enabled() {
				return errors.New("worker requires COORDINATOR_REDIS_URL and COORDINATOR_CALDAV_URL")
			}
			logger := logging.NewLogger(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := openStorage(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			publisher, err := newCalDAVPublisher(cfg, logger)
			if err != nil {
				return err
			}

			worker, err := jobs.NewWorker(cfg.RedisURL, cfg.WorkerConcurrency, newMeetingService(store, nil, logger), publisher, logger)
			if err != nil {
				return err
			}
			logger.Info("publish worker started", "concurrency", cfg.WorkerConcurrency)
			return worker.Run(ctx)
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Manage PASETO access tokens.",
		Subcommands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "Generate a v4.public key pair.",
				Action: func(c *cli.Context) error {
					keys := identity.GenerateKeyPair()
					fmt.Fprintf(c.App.Writer, "COORDINATOR_TOKEN_SECRET_KEY=%s\n", keys.SecretKeyHex)
					fmt.Fprintf(c.App.Writer, "COORDINATOR_TOKEN_PUBLIC_KEY=%s\n", keys.PublicKeyHex)
					return nil
				},
			},
			{
				Name:  "issue",
				Usage: "Sign an access token for a user id.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uid", Required: true, Usage: "user id carried in the token"},
					&cli.StringFlag{Name: "secret-key", EnvVars: []string{"COORDINATOR_TOKEN_SECRET_KEY"}, Required: true, Usage: "hex v4 secret key"},
					&cli.StringFlag{Name: "issuer", EnvVars: []string{"COORDINATOR_TOKEN_ISSUER"}, Value: identity.DefaultIssuer},
					&cli.DurationFlag{Name: "ttl", Value: identity.DefaultTTL},
				},
				Action: func(c *cli.Context) error {
					issuer, err := identity.NewIssuer(c.String("secret-key"), c.String("issuer"), c.Duration("ttl"))
					if err != nil {
						return err
					}
					token, expires, err := issuer.Issue(c.String("uid"), time.Now())
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, token)
					fmt.Fprintf(c.App.ErrWriter, "expires at %s\n", expires.UTC().Format(time.RFC3339))
					return nil
				},
			},
		},
	}
}
