package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/emberrun/sandbox/internal/cache"
	"github.com/emberrun/sandbox/internal/config"
	"github.com/emberrun/sandbox/internal/engine"
	"github.com/emberrun/sandbox/internal/logging"
	"github.com/emberrun/sandbox/internal/metrics"
	"github.com/emberrun/sandbox/internal/moduleloader"
	"github.com/emberrun/sandbox/internal/observability"
	"github.com/emberrun/sandbox/internal/packages"
	"github.com/emberrun/sandbox/internal/pool"
	"github.com/emberrun/sandbox/internal/store"
)

func serveCmd() *cobra.Command {
	var httpAddr string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sandbox daemon",
		Long:  "Run sandboxd as a long-lived daemon: loads the guest pool, serves invocations, and exposes metrics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http") {
				cfg.Daemon.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Daemon.LogLevel = logLevel
			}

			logging.SetLevelFromString(cfg.Daemon.LogLevel)
			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

			ctx := context.Background()

			if err := observability.Init(ctx, observability.Config{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Exporter:    cfg.Observability.Tracing.Exporter,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: cfg.Observability.Tracing.ServiceName,
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			if cfg.Observability.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Observability.Metrics.Namespace, cfg.Observability.Metrics.HistogramBuckets)
			}

			pgStore, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			s := store.NewStore(pgStore)
			defer s.Close()

			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Packages.Region))
			if err != nil {
				return fmt.Errorf("load aws config: %w", err)
			}
			s3Client := s3.NewFromConfig(awsCfg)
			pkgProvider := packages.New(s3Client, cfg.Packages.Bucket, cfg.Packages.CacheDir)

			kvCache, err := buildCache(cfg.Cache)
			if err != nil {
				return fmt.Errorf("build cache: %w", err)
			}
			defer kvCache.Close()
			kv := cache.NewProjectKV(kvCache)

			guestPool := pool.New(pool.Config{
				BasePoolSize:  cfg.Pool.BasePoolSize,
				MaxPoolSize:   cfg.Pool.MaxPoolSize,
				MemoryLimitMB: cfg.Pool.MemoryLimitMB,
				IdleTimeout:   cfg.Pool.IdleTimeout,
			})
			defer guestPool.Shutdown(10 * time.Second)

			scripts := moduleloader.NewScriptCache(512, true)

			eng := engine.New(engine.Config{
				FunctionTimeout: cfg.Engine.FunctionTimeout,
				Breaker:         cfg.Engine.Breaker,
			}, s, s, pkgProvider, guestPool, kv, scripts)

			var httpServer *http.Server
			if cfg.Daemon.HTTPAddr != "" {
				httpServer = startHTTPServer(cfg.Daemon.HTTPAddr, eng)
				logging.Op().Info("http server started", "addr", cfg.Daemon.HTTPAddr)
			}

			logging.Op().Info("sandboxd started",
				"pool_base", cfg.Pool.BasePoolSize,
				"pool_max", cfg.Pool.MaxPoolSize,
				"cache_backend", cfg.Cache.Backend,
			)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			logging.Op().Info("shutdown signal received")
			if httpServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				httpServer.Shutdown(shutdownCtx)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP address for metrics/health (empty disables)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")

	return cmd
}

// startHTTPServer exposes the metrics and health surface over HTTP; there
// is no invocation-over-HTTP endpoint because inbound invocations arrive
// over the collaborator the engine is embedded in, not this process's
// own listener.
func startHTTPServer(addr string, eng *engine.Engine) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.PrometheusHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: observability.HTTPMiddleware(mux)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("http server failed", "error", err)
		}
	}()
	return srv
}

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	config.LoadFromEnv(cfg)
	if pgDSN != "" {
		cfg.Postgres.DSN = pgDSN
	}
	return cfg, nil
}

func buildCache(cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Backend {
	case "redis":
		return cache.NewRedisCache(cache.RedisCacheConfig{Addr: cfg.RedisAddr}), nil
	case "tiered":
		l1 := cache.NewInMemoryCache()
		l2 := cache.NewRedisCache(cache.RedisCacheConfig{Addr: cfg.RedisAddr})
		return cache.NewTieredCache(l1, l2, cfg.DefaultTTL), nil
	case "memory", "":
		return cache.NewInMemoryCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
