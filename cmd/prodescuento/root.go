package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for prodescuento.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prodescuento",
		Short: "Discount hunter for MercadoLibre search listings",
		Long: `prodescuento crawls MercadoLibre public search-result pages, survives the
site's proof-of-work bot challenge, and extracts structured product listings
with prices, discounts and condition. Results can be filtered, ranked and
exported to JSON or an Excel spreadsheet.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			logger, _ := newLogger(verbose)
			slog.SetDefault(logger)
		},
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewSearchCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewBatchCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
