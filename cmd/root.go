package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saldang/grezzi/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "grezzi",
	Short: "Lead list cleaning pipeline",
	Long:  "Cleans raw Italian lead exports: maps columns, repairs and checks emails, splits City/CAP/Province, reconciles CAPs against the municipality registry and forwards the result to NocoDB.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
