package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	nextPointOfSale int
	nextVoucherType int
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Query the next voucher number",
	Long: `Ask AFIP for the last authorized voucher number of a point of
sale / voucher type pair and print last+1.

The number is advisory: another issuer can take it between this query
and your submission.

Examples:
  afip-gateway next --pos 1 --type 6
  afip-gateway next --type 11 --tenant acme`,
	RunE: runNext,
}

func init() {
	rootCmd.AddCommand(nextCmd)

	nextCmd.Flags().IntVar(&nextPointOfSale, "pos", 0, "Point of sale (default: from configuration)")
	nextCmd.Flags().IntVar(&nextVoucherType, "type", 0, "Voucher type code (e.g. 1=A, 6=B, 11=C)")
	_ = nextCmd.MarkFlagRequired("type")
}

func runNext(cmd *cobra.Command, args []string) error {
	svc, err := loadService()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	next, err := svc.NextNumber(ctx, tenantID, nextPointOfSale, nextVoucherType)
	if err != nil {
		return err
	}

	fmt.Printf("%d\n", next)
	return nil
}
