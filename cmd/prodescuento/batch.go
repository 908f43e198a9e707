package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/herrera199898/Pro-descuento/batch"
	"github.com/herrera199898/Pro-descuento/config"
	"github.com/spf13/cobra"
)

// NewBatchCmd creates the batch command.
func NewBatchCmd() *cobra.Command {
	var (
		configPath string
		outputDir  string
		cookie     string
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the configured searches and write per-query artifacts plus a digest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := batch.Load(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := batch.NewRunner(cfg, outputDir, config.ParseCookieHeader(cookie), nil)
			runDir, err := runner.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Artefactos generados en: %s\n", runDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "automation/searches.yaml", "Batch configuration file")
	cmd.Flags().StringVar(&outputDir, "output-dir", "automation/runs", "Directory for run artifacts")
	cmd.Flags().StringVar(&cookie, "cookie", "", "Optional cookie header for every query")
	return cmd
}
