package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and certificate material offline",
	Long: `Load the configuration, resolve the identity (extracting the
PKCS#12 bundle when one is configured) and produce a test signature with
its key material. No network call is made.

Examples:
  afip-gateway check
  afip-gateway check --tenant acme`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	svc, err := loadService()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := svc.Check(ctx, tenantID); err != nil {
		return err
	}

	who := tenantID
	if who == "" {
		who = "default identity"
	}
	fmt.Printf("Configuration and signing material OK for %s\n", who)
	return nil
}
