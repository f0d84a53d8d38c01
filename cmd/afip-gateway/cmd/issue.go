package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/afip-gateway/internal/model"
	"github.com/rezonia/afip-gateway/pkg/facturador"
)

var (
	issueFile   string
	issueDryRun bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue one invoice and print the CAE",
	Long: `Read an invoice request from a JSON file (or stdin with -f -),
authorize it against WSFEv1 and print the assigned CAE.

Examples:
  afip-gateway issue -f request.json
  cat request.json | afip-gateway issue -f -
  afip-gateway issue -f request.json --dry-run`,
	RunE: runIssue,
}

func init() {
	rootCmd.AddCommand(issueCmd)

	issueCmd.Flags().StringVarP(&issueFile, "file", "f", "", "Invoice request JSON file (- for stdin)")
	issueCmd.Flags().BoolVar(&issueDryRun, "dry-run", false, "Build and sign without contacting AFIP")
	_ = issueCmd.MarkFlagRequired("file")
}

func runIssue(cmd *cobra.Command, args []string) error {
	data, err := readRequestFile(issueFile)
	if err != nil {
		return err
	}

	var req model.InvoiceRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("cannot parse invoice request: %w", err)
	}

	var opts []facturador.ServiceOption
	if issueDryRun {
		opts = append(opts, facturador.WithDryRun(true))
	}
	svc, err := loadService(opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	result, err := svc.Issue(ctx, tenantID, req)
	if err != nil {
		return err
	}

	if result.DryRun {
		fmt.Printf("Dry run: voucher type %d for point of sale %d builds and signs cleanly\n",
			result.VoucherType, result.PointOfSale)
		return nil
	}

	fmt.Printf("CAE %s (valid until %s)\n", result.CAE, result.CAEExpiration.Format("2006-01-02"))
	fmt.Printf("Voucher %04d-%08d type %d issued %s\n",
		result.PointOfSale, result.Number, result.VoucherType,
		result.IssueDate.Format("2006-01-02"))
	return nil
}

func readRequestFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
