package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emberrun/sandbox/internal/output"
	"github.com/emberrun/sandbox/internal/store"
)

func functionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "function",
		Short: "Inspect registered functions",
	}
	cmd.AddCommand(functionListCmd(), functionGetCmd())
	return cmd
}

func openMetadataStore(ctx context.Context) (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	pg, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	return store.NewStore(pg), nil
}

func functionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered function",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openMetadataStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			fns, err := s.ListFunctions(ctx)
			if err != nil {
				return err
			}

			rows := make([]output.FunctionRow, len(fns))
			for i, fn := range fns {
				rows[i] = output.FunctionRow{
					ID:            fn.ID,
					Project:       fn.Project,
					ActiveVersion: fn.ActiveVersion,
					Memory:        fn.MemoryMB,
					Timeout:       fn.TimeoutMs,
					Created:       fn.CreatedAt.Format("2006-01-02 15:04:05"),
					Updated:       fn.UpdatedAt.Format("2006-01-02 15:04:05"),
				}
			}
			return printer().PrintFunctions(rows)
		},
	}
}

func functionGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <function-id>",
		Short: "Show one function's full record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openMetadataStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			fn, err := s.GetFunction(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get function %s: %w", args[0], err)
			}

			return printer().PrintFunctionDetail(output.FunctionDetail{
				ID:            fn.ID,
				Project:       fn.Project,
				ActiveVersion: fn.ActiveVersion,
				PackageDigest: fn.PackageDigest,
				PackagePath:   fn.PackagePath,
				MemoryMB:      fn.MemoryMB,
				TimeoutMs:     fn.TimeoutMs,
				EnvVars:       fn.EnvVars,
				TrafficSplit:  fn.TrafficSplit,
				Created:       fn.CreatedAt.Format("2006-01-02 15:04:05"),
				Updated:       fn.UpdatedAt.Format("2006-01-02 15:04:05"),
			})
		},
	}
}
