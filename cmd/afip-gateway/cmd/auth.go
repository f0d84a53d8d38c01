package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Obtain an auth ticket and print its expiry",
	Long: `Authenticate against WSAA for the configured identity. A cached
ticket is reused while it is still valid; otherwise a fresh login
handshake runs.

Examples:
  afip-gateway auth
  afip-gateway auth --tenant acme --verbose`,
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)
}

func runAuth(cmd *cobra.Command, args []string) error {
	svc, err := loadService()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	tk, err := svc.Authenticate(ctx, tenantID)
	if err != nil {
		return err
	}

	fmt.Printf("Ticket valid until %s (%s from now)\n",
		tk.Expiration.Format(time.RFC3339),
		time.Until(tk.Expiration).Round(time.Minute))
	printVerbose("token length: %d, sign length: %d\n", len(tk.Token), len(tk.Sign))
	return nil
}
