package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"taskherd/src/internal/api"
	"taskherd/src/internal/config"
	"taskherd/src/internal/directory"
	"taskherd/src/internal/gateway"
	"taskherd/src/internal/storage"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	configPath := flag.String("config", "", "path to config.yaml (defaults to the storage dir)")
	flag.Parse()

	// Local .env keeps credentials out of the config file.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st, err := storage.New(cfg.StorageDir)
	if err != nil {
		slog.Error("failed to initialize task storage", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	dir, err := directory.Load(cfg.UsersFile)
	if err != nil {
		slog.Error("failed to load user directory", "path", cfg.UsersFile, "error", err)
		os.Exit(1)
	}
	slog.Info("user directory loaded", "users", dir.Len())

	pidPath := filepath.Join(cfg.StorageDir, "taskherd.pid")
	if err := writePidFile(pidPath); err != nil {
		slog.Error("failed to write pidfile", "path", pidPath, "error", err)
		os.Exit(1)
	}
	defer os.Remove(pidPath)

	gw := gateway.New(cfg, st, dir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gw.Start(ctx); err != nil {
		slog.Error("failed to start gateway", "error", err)
		os.Exit(1)
	}
	defer gw.Stop()

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Server.Enabled {
		server := api.NewServer(gw)
		g.Go(func() error {
			return server.Run(ctx, cfg.Server.Addr)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("exiting with error", "error", err)
		os.Exit(1)
	}
}

func writePidFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d\n", os.Getpid())
	return err
}
