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

	"github.com/park285/cheese-xiangqi/internal/api"
	"github.com/park285/cheese-xiangqi/internal/config"
	"github.com/park285/cheese-xiangqi/internal/obslog"
	"github.com/park285/cheese-xiangqi/internal/room"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func serve(ctx context.Context, c *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if addr := c.String("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if err := obslog.InitFromEnv(); err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer obslog.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, relay, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	mgr := room.NewManager(store, relay, room.Options{
		CodeLength:  cfg.RoomCodeLength,
		SendTimeout: cfg.RelaySendTimeout,
	})
	defer mgr.Stop()

	if cfg.DatabaseURL != "" {
		repo, err := room.OpenRepository(cfg.DatabaseURL, room.RatingOptions{DefaultElo: cfg.DefaultElo, K: cfg.EloK})
		if err != nil {
			return fmt.Errorf("archive init: %w", err)
		}
		defer repo.Close()
		mgr.AttachRepository(repo)
	} else {
		obslog.L().Info("archive_disabled", zap.String("reason", "DATABASE_URL not set"))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.New(mgr, relay).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	obslog.L().Info("server_start", zap.String("addr", cfg.HTTPAddr), zap.Bool("redis", cfg.RedisURL != ""), zap.Bool("archive", cfg.DatabaseURL != ""))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		obslog.L().Warn("server_shutdown_error", zap.Error(err))
	}
	obslog.L().Info("server_stop")
	return nil
}

// openBackend picks Redis when REDIS_URL is set and in-process state otherwise.
func openBackend(ctx context.Context, cfg *config.AppConfig) (room.Store, room.Transport, func(), error) {
	opts := room.StoreOptions{TTL: cfg.RoomTTL, ClosedTTL: cfg.ClosedRoomTTL}
	if cfg.RedisURL == "" {
		obslog.L().Info("backend_memory")
		return room.NewMemoryStore(opts), room.NewMemoryHub(cfg.RelayBuffer), func() {}, nil
	}
	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rdb, err := room.Dial(dctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("redis init: %w", err)
	}
	obslog.L().Info("backend_redis", zap.String("addr", rdb.Options().Addr))
	return room.NewRedisStore(rdb, opts), room.NewRedisTransport(rdb, cfg.RelayBuffer), func() { _ = rdb.Close() }, nil
}
