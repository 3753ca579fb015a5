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
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/electr1fy0/relay/internal/cluster"
	"github.com/electr1fy0/relay/internal/config"
	"github.com/electr1fy0/relay/internal/registry"
	"github.com/electr1fy0/relay/internal/session"
	"github.com/electr1fy0/relay/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to config file (built-in defaults when empty)")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("relay stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := registry.New(registry.WithShards(cfg.Registry.Shards))

	var (
		node   *cluster.Node
		remote session.Remote
	)
	if cfg.Cluster.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cluster.RedisAddr,
			Password: cfg.Cluster.RedisPassword,
			DB:       cfg.Cluster.RedisDB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}

		node = cluster.NewNode(rdb, reg, cluster.Config{
			NodeID:             cfg.Cluster.NodeID,
			KeyPrefix:          cfg.Cluster.KeyPrefix,
			PresenceTTL:        cfg.Cluster.PresenceTTL,
			ReconnectBaseDelay: cfg.Cluster.ReconnectBaseDelay,
			ReconnectMaxDelay:  cfg.Cluster.ReconnectMaxDelay,
		}, logger)
		remote = node
		logger.Info("cluster enabled", "node_id", node.ID(), "redis", cfg.Cluster.RedisAddr)
	}

	router := session.NewRouter(reg, remote, logger)
	ws := transport.NewServer(router, transport.Config{
		ReadLimit:      cfg.Server.ReadLimit,
		SendBuffer:     cfg.Session.SendBuffer,
		WriteWait:      cfg.Session.WriteWait,
		PingPeriod:     cfg.Session.PingPeriod,
		UsernameParam:  cfg.Server.UsernameParam,
		OriginPatterns: cfg.Server.OriginPatterns,
	}, logger,
		session.WithRateLimit(cfg.Session.RateLimit, cfg.Session.RateBurst),
		session.WithMaxUsernameLength(cfg.Session.MaxUsernameLength),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newMux(ws, reg, node),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting the server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if node != nil {
		// Losing the cluster costs cross-node reach, never the local relay.
		g.Go(func() error {
			if err := node.Run(gctx, router); err != nil {
				logger.Error("cluster node stopped, routing locally only", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "sessions", ws.Active())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()

		if err := ws.Shutdown(shutdownCtx); err != nil {
			logger.Warn("sessions did not finish before shutdown deadline", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newMux(ws *transport.Server, reg *registry.Registry, node *cluster.Node) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", ws)
	mux.Handle("GET /ws/{username}", ws)
	mux.Handle("GET /healthz", healthHandler(ws, reg, node))
	return mux
}
