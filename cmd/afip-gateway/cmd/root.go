package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/afip-gateway/internal/credential"
	"github.com/rezonia/afip-gateway/pkg/facturador"
)

var (
	version = "1.0.0"

	// Global flags
	configPath string
	tenantID   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "afip-gateway",
	Short: "Issue AFIP electronic invoices (WSAA/WSFEv1)",
	Long: `afip-gateway authenticates against AFIP's WSAA service with a
certificate-signed login request and authorizes invoices through WSFEv1.

Examples:
  # Obtain (or reuse) an auth ticket and print its expiry
  afip-gateway auth --config afip.yaml

  # Query the next voucher number for point of sale 1, invoice B
  afip-gateway next --pos 1 --type 6

  # Issue one invoice from a JSON request
  afip-gateway issue -f request.json

  # Validate configuration and certificate material offline
  afip-gateway check

  # Start the HTTP facade
  afip-gateway serve --address :8080`,
	Version: version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "afip.yaml", "Configuration file")
	rootCmd.PersistentFlags().StringVarP(&tenantID, "tenant", "t", "", "Tenant identity to use (default: system identity)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

func newLogger() *zap.Logger {
	if verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}
	return zap.NewNop()
}

// loadService builds the invoice service from the configured file.
func loadService(extra ...facturador.ServiceOption) (*facturador.Service, error) {
	cfg, err := credential.Load(configPath)
	if err != nil {
		return nil, err
	}
	opts := append([]facturador.ServiceOption{facturador.WithLogger(newLogger())}, extra...)
	return facturador.NewService(cfg, opts...)
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
