package cmd

import (
	"fmt"

	"github.com/mselser95/lending-liquidator/internal/app"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the liquidation bot",
	Long: `Starts the liquidation bot, which will:
1. Mirror every pool's price account and the configured page range
2. Follow each listed borrower's position account
3. Evaluate positions on a fixed interval once every price is known
4. Liquidate unsafe positions (paper, live or dry-run)

Flags override the matching environment variables.`,
	RunE: runBot,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("mode", "", "Execution mode: paper, live or dry-run (overrides EXECUTION_MODE)")
	runCmd.Flags().Int("page-start", -1, "First page to watch (overrides PAGE_START)")
	runCmd.Flags().Int("page-end", -1, "Page after the last one to watch (overrides PAGE_END)")
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	mode, _ := cmd.Flags().GetString("mode")
	if mode != "" {
		cfg.ExecutionMode = mode
	}
	pageStart, _ := cmd.Flags().GetInt("page-start")
	if pageStart >= 0 {
		cfg.PageStart = pageStart
	}
	pageEnd, _ := cmd.Flags().GetInt("page-end")
	if pageEnd >= 0 {
		cfg.PageEnd = pageEnd
	}

	err = cfg.Validate()
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	application, err := app.New(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
