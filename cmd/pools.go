package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/mselser95/lending-liquidator/pkg/config"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/protocol"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var poolsCmd = &cobra.Command{
	Use:   "pools",
	Short: "List configured pools and their derived accounts",
	RunE:  runPools,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(poolsCmd)
	poolsCmd.Flags().StringP("file", "f", "", "Pools file (defaults to POOLS_CONFIG_PATH)")
}

func runPools(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = os.Getenv("POOLS_CONFIG_PATH")
	}
	if path == "" {
		path = "pools.json"
	}

	pools, err := config.LoadPools(path)
	if err != nil {
		return err
	}

	var book *protocol.AddressBook
	if program := os.Getenv("LENDING_PROGRAM_ID"); program != "" {
		programID, parseErr := ledger.ParseAddress(program)
		if parseErr != nil {
			return fmt.Errorf("LENDING_PROGRAM_ID: %w", parseErr)
		}
		seed := os.Getenv("POSITION_SEED")
		if seed == "" {
			seed = "position"
		}
		book, err = protocol.NewAddressBook(programID, seed)
		if err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSYMBOL\tLTV\tDISCOUNT\tDECIMALS\tSTABLE\tSWAP\tMINT\tPRICE ACCOUNT")
	for _, pool := range pools.All() {
		price := pool.PriceAccount.String()
		if pool.PriceAccount.IsZero() {
			price = "-"
			if book != nil {
				derived, deriveErr := book.PriceAddress(pool.Mint)
				if deriveErr != nil {
					return fmt.Errorf("pool %d price account: %w", pool.ID, deriveErr)
				}
				price = derived.String() + " (derived)"
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%.2f\t%d\t%t\t%s\t%s\t%s\n",
			pool.ID, pool.Symbol, pool.LTV, pool.LiquidationDiscount, pool.Decimals,
			pool.Stable, pool.SwapToken, pool.Mint, price)
	}
	return w.Flush()
}
