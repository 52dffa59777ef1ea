package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the metadata cache backend",
	}
	cmd.AddCommand(cacheStatsCmd())
	return cmd
}

func cacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Ping the configured cache backend and report its settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			c, err := buildCache(cfg.Cache)
			if err != nil {
				return err
			}
			defer c.Close()

			reachable := true
			if err := c.Ping(ctx); err != nil {
				reachable = false
			}

			fmt.Printf("backend:     %s\n", cfg.Cache.Backend)
			fmt.Printf("redis addr:  %s\n", cfg.Cache.RedisAddr)
			fmt.Printf("default ttl: %s\n", cfg.Cache.DefaultTTL)
			fmt.Printf("reachable:   %v\n", reachable)
			return nil
		},
	}
}
