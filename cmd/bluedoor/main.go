package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshp123/bluedoor/internal/bridge"
	"github.com/joshp123/bluedoor/internal/config"
	"github.com/joshp123/bluedoor/internal/fermax"
	"github.com/joshp123/bluedoor/internal/logging"
	"github.com/joshp123/bluedoor/internal/poll"
	"github.com/joshp123/bluedoor/internal/server"
	"github.com/joshp123/bluedoor/internal/session"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config file")
	check := flag.Bool("check", false, "log in, list doors, and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	store, err := buildStore(cfg)
	if err != nil {
		logger.Error("credential store setup failed", "err", err)
		os.Exit(1)
	}

	manager, err := session.NewManager(
		session.Config{
			TokenURL:     orDefault(cfg.Fermax.TokenURL, fermax.DefaultTokenURL),
			ClientID:     orDefault(cfg.Fermax.ClientID, fermax.DefaultClientID),
			ClientSecret: orDefault(cfg.Fermax.ClientSecret, fermax.DefaultClientSecret),
			Timeout:      cfg.RequestTimeout(),
		},
		session.Account{Username: cfg.Fermax.Username, Password: cfg.Fermax.Password},
		store,
		logger,
	)
	if err != nil {
		logger.Error("session setup failed", "err", err)
		os.Exit(1)
	}

	client, err := fermax.NewClient(
		fermax.Config{BaseURL: cfg.Fermax.BaseURL, Timeout: cfg.RequestTimeout()},
		manager,
		logger,
	)
	if err != nil {
		logger.Error("api client setup failed", "err", err)
		os.Exit(1)
	}

	if *check {
		runCheck(manager, client)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator := poll.NewCoordinator(manager, client, cfg.PollInterval(), logger)
	coordinator.Start(ctx)

	if cfg.MQTT.Enabled {
		b, err := bridge.New(cfg.MQTT, coordinator, client, logger)
		if err != nil {
			logger.Error("mqtt bridge setup failed", "err", err)
			os.Exit(1)
		}
		if err := b.Start(ctx, cfg.PollInterval()); err != nil {
			logger.Error("mqtt bridge connect failed", "err", err)
			os.Exit(1)
		}
	}

	registry := server.MetricsRegistry(
		session.MetricsCollectors(),
		fermax.MetricsCollectors(),
		poll.MetricsCollectors(),
	)
	mux := server.NewMux(coordinator, client, server.MetricsHandler(registry))
	httpServer := server.NewHTTPServer(cfg.HTTP.Addr, mux)

	go func() {
		<-ctx.Done()
		_ = httpServer.Server.Shutdown(context.Background())
	}()

	logger.Info("listening", "addr", cfg.HTTP.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http serve failed", "err", err)
		os.Exit(1)
	}
}

// runCheck performs one full login and discovery and prints the
// result, so a new install can be verified before the daemon is
// deployed.
func runCheck(manager *session.Manager, client *fermax.Client) {
	ctx := context.Background()

	if _, err := manager.EnsureValid(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}
	homes, err := client.Pairings(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "discovery failed: %v\n", err)
		os.Exit(1)
	}

	for _, home := range homes {
		fmt.Printf("%s (%s)\n", home.Name, home.ID)
		for _, door := range home.Doors {
			fmt.Printf("  %s (%s)\n", door.Name, door.ID)
		}
	}
}

func buildStore(cfg *config.Config) (session.Store, error) {
	fileStore, err := session.NewFileStore(cfg.Session.StatePath)
	if err != nil {
		return nil, err
	}
	if !cfg.Session.Mirror.Enabled {
		return fileStore, nil
	}

	blobStore, err := session.NewS3Store(session.BlobConfig{
		Endpoint:      cfg.Session.Mirror.Endpoint,
		Bucket:        cfg.Session.Mirror.Bucket,
		Prefix:        cfg.Session.Mirror.Prefix,
		Region:        cfg.Session.Mirror.Region,
		AccessKeyFile: cfg.Session.Mirror.AccessKeyFile,
		SecretKeyFile: cfg.Session.Mirror.SecretKeyFile,
	})
	if err != nil {
		return nil, err
	}
	return session.NewMirroredStore(fileStore, blobStore), nil
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
