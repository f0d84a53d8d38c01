// Package credential resolves which signing identity and tax ID a call uses.
//
// Configuration comes from a YAML file (plus AFIP_-prefixed environment
// overrides) holding one system-wide identity and optional per-tenant
// overrides. Resolution precedence is fixed: a tenant override with its own
// certificate material wins, then a tax-ID-only tenant override reusing the
// system material, then the system default. Anything else is a
// ConfigurationError.
package credential

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rezonia/afip-gateway/internal/model"
)

// IdentityConfig describes one set of signing material. Either a
// cert_file/key_file pair or a bundle_file (PKCS#12) must be present.
type IdentityConfig struct {
	CertFile       string `mapstructure:"cert_file"`
	KeyFile        string `mapstructure:"key_file"`
	BundleFile     string `mapstructure:"bundle_file"`
	BundlePassword string `mapstructure:"bundle_password"`
	TaxID          string `mapstructure:"tax_id"`
	PointOfSale    int    `mapstructure:"point_of_sale"`
}

// HasMaterial reports whether the entry carries its own certificate material.
func (c IdentityConfig) HasMaterial() bool {
	return c.BundleFile != "" || (c.CertFile != "" && c.KeyFile != "")
}

// Config is the full gateway configuration.
type Config struct {
	Environment model.Environment         `mapstructure:"environment"`
	Identity    IdentityConfig            `mapstructure:"identity"`
	Tenants     map[string]IdentityConfig `mapstructure:"tenants"`

	// CacheDir holds persisted auth tickets. Empty selects in-memory caching.
	CacheDir string `mapstructure:"cache_dir"`
	// Timeout bounds every network call.
	Timeout time.Duration `mapstructure:"timeout"`
	// DryRun builds and signs everything but never contacts AFIP.
	DryRun bool `mapstructure:"dry_run"`
}

// DefaultTimeout bounds network calls when the configuration does not.
const DefaultTimeout = 30 * time.Second

// Load reads configuration from the given file, applying AFIP_* environment
// variable overrides (e.g. AFIP_ENVIRONMENT, AFIP_IDENTITY_TAX_ID).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("AFIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", string(model.EnvironmentSandbox))
	v.SetDefault("timeout", DefaultTimeout)

	if err := v.ReadInConfig(); err != nil {
		return nil, model.NewConfigurationError("config", "cannot read configuration file", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, model.NewConfigurationError("config", "cannot parse configuration", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants that do not need filesystem access.
func (c *Config) Validate() error {
	if !c.Environment.Valid() {
		return model.NewConfigurationError("environment", "must be sandbox or production", nil)
	}
	if !c.Identity.HasMaterial() {
		return model.NewConfigurationError("identity", "needs cert_file/key_file or bundle_file", nil)
	}
	if c.Identity.TaxID == "" {
		return model.NewConfigurationError("identity.tax_id", "missing issuer tax ID", nil)
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return nil
}
