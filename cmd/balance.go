package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/lending-liquidator/pkg/config"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/wallet"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Check the liquidator wallet's balances",
	Long: `Display the liquidator's current holdings:
- native balance (for fees)
- stable balance summed over every stable token account

The wallet is the KEYPAIR_PATH key unless --address is given.`,
	RunE: runBalance,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringP("address", "a", "", "Wallet address to check instead of the keypair's")
}

func runBalance(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	owner, err := balanceOwner(cmd, cfg)
	if err != nil {
		return err
	}

	pools, err := config.LoadPools(cfg.PoolsConfigPath)
	if err != nil {
		return fmt.Errorf("load pools: %w", err)
	}
	stable := pools.Stable()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rpc, err := ledger.NewRPCClient(ctx, &ledger.RPCConfig{
		URL:     cfg.RPCURL,
		Timeout: cfg.RPCTimeout,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer rpc.Close()

	client, err := wallet.NewClient(rpc, stable.Mint, stable.Decimals, logger)
	if err != nil {
		return err
	}

	balances, err := client.GetBalances(ctx, owner)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "=== Wallet Balance Sheet ===\n\n")
	fmt.Fprintf(out, "Address: %s\n\n", owner)
	fmt.Fprintf(out, "Native Balance: %.6f\n", balances.NativeUI())
	fmt.Fprintf(out, "%s Balance: %.2f (%d token accounts)\n", stable.Symbol, balances.StableUI(), balances.StableAccounts)

	fmt.Fprintf(out, "\n=== Summary ===\n")
	if cfg.CircuitBreakerEnabled && balances.StableUI() < cfg.CircuitBreakerMinAbsolute {
		fmt.Fprintf(out, "Ready to liquidate: ❌ NO\n")
		fmt.Fprintf(out, "  - %s balance is below the circuit breaker floor of %.2f\n", stable.Symbol, cfg.CircuitBreakerMinAbsolute)
		return nil
	}
	fmt.Fprintf(out, "Ready to liquidate: ✅ YES\n")

	return nil
}

func balanceOwner(cmd *cobra.Command, cfg *config.Config) (ledger.Address, error) {
	address, _ := cmd.Flags().GetString("address")
	if address != "" {
		return ledger.ParseAddress(address)
	}

	if cfg.KeypairPath == "" {
		return "", fmt.Errorf("KEYPAIR_PATH not set and no --address given")
	}
	kp, err := ledger.LoadKeypair(cfg.KeypairPath)
	if err != nil {
		return "", fmt.Errorf("load keypair: %w", err)
	}
	return kp.PublicKey(), nil
}
