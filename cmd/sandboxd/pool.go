package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/emberrun/sandbox/internal/pool"
)

func poolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Inspect guest pool sizing",
	}
	cmd.AddCommand(poolStatusCmd())
	return cmd
}

// poolStatusCmd warms a pool from the resolved config and reports its
// steady-state sizing. There is no admin RPC into a running daemon's pool
// (§1 Non-goals: administrative control plane), so this is a capacity
// dry-run against the config the daemon would use, not a live snapshot of
// a running process.
func poolStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show guest pool sizing for the resolved config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			p := pool.New(pool.Config{
				BasePoolSize:  cfg.Pool.BasePoolSize,
				MaxPoolSize:   cfg.Pool.MaxPoolSize,
				MemoryLimitMB: cfg.Pool.MemoryLimitMB,
				IdleTimeout:   cfg.Pool.IdleTimeout,
			})
			defer p.Shutdown(2 * time.Second)

			stats := p.Stats()
			fmt.Printf("base:    %d\n", stats.BaseSize)
			fmt.Printf("max:     %d\n", stats.MaxSize)
			fmt.Printf("idle:    %d\n", stats.Idle)
			fmt.Printf("in use:  %d\n", stats.InUse)
			fmt.Printf("total:   %d\n", stats.Total)
			return nil
		},
	}
}
