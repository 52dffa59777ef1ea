package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/emberrun/sandbox/internal/cache"
	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/engine"
	"github.com/emberrun/sandbox/internal/moduleloader"
	"github.com/emberrun/sandbox/internal/output"
	"github.com/emberrun/sandbox/internal/packages"
	"github.com/emberrun/sandbox/internal/pool"
	"github.com/emberrun/sandbox/internal/store"
)

func invokeCmd() *cobra.Command {
	var body string
	var method string

	cmd := &cobra.Command{
		Use:   "invoke <function-id>",
		Short: "Invoke a function once and print its response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			pg, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			s := store.NewStore(pg)
			defer s.Close()

			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Packages.Region))
			if err != nil {
				return fmt.Errorf("load aws config: %w", err)
			}
			pkgProvider := packages.New(s3.NewFromConfig(awsCfg), cfg.Packages.Bucket, cfg.Packages.CacheDir)

			kvCache, err := buildCache(cfg.Cache)
			if err != nil {
				return err
			}
			defer kvCache.Close()
			kv := cache.NewProjectKV(kvCache)

			guestPool := pool.New(pool.Config{
				BasePoolSize:  1,
				MaxPoolSize:   1,
				MemoryLimitMB: cfg.Pool.MemoryLimitMB,
				IdleTimeout:   cfg.Pool.IdleTimeout,
			})
			defer guestPool.Shutdown(5 * time.Second)

			scripts := moduleloader.NewScriptCache(64, true)

			eng := engine.New(engine.Config{
				FunctionTimeout: cfg.Engine.FunctionTimeout,
				Breaker:         cfg.Engine.Breaker,
			}, s, s, pkgProvider, guestPool, kv, scripts)

			req := &domain.InvokeRequest{
				FunctionID: args[0],
				Method:     method,
				Body:       json.RawMessage(body),
			}

			start := time.Now()
			resp, err := eng.ExecuteFunction(ctx, req)
			if err != nil {
				return fmt.Errorf("invoke %s: %w", args[0], err)
			}
			durationMs := time.Since(start).Milliseconds()

			result := output.InvokeResult{
				RequestID:  args[0],
				Success:    resp.Error == "",
				Output:     resp.Data,
				Error:      resp.Error,
				DurationMs: durationMs,
			}
			return printer().PrintInvokeResult(result)
		},
	}

	cmd.Flags().StringVar(&body, "body", "{}", "JSON request body")
	cmd.Flags().StringVar(&method, "method", "GET", "HTTP method presented to the handler")

	return cmd
}
