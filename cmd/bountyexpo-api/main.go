package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "bountyexpo-api",
	Short: "BountyExpo bounty lifecycle and escrow service",
	Long: `BountyExpo runs the bounty lifecycle: posting, applications, acceptance with
escrow hold, completion review, release and refund. Configuration comes from the
environment or a .env file in the working directory.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(auditCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	return logger
}
