package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mselser95/lending-liquidator/internal/app"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var inspectCmd = &cobra.Command{
	Use:   "inspect <wallet>",
	Short: "Value one borrower against current prices",
	Long: `Fetches every pool's price and the borrower's position once over RPC,
then prints the position's exposures, health ratio and, when the position is
unsafe, the liquidation plan the bot would execute.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Duration("timeout", 30*time.Second, "Overall RPC timeout")
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err = app.Inspect(ctx, cfg, logger, args[0], os.Stdout)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", args[0], err)
	}
	return nil
}
