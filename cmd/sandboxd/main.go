package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emberrun/sandbox/internal/output"
)

var (
	configFile string
	pgDSN      string
	outputFmt  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sandboxd",
		Short: "Multi-tenant function execution sandbox",
		Long:  "sandboxd runs untrusted JavaScript functions in pooled, memory-capped guest runtimes and exposes a CLI for operating the daemon.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&pgDSN, "pg-dsn", "", "Postgres DSN (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "output format: table, wide, json, yaml")

	rootCmd.AddCommand(
		serveCmd(),
		poolCmd(),
		cacheCmd(),
		functionCmd(),
		invokeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printer() *output.Printer {
	return output.NewPrinter(output.ParseFormat(outputFmt))
}
