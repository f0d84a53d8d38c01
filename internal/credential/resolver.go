package credential

import (
	"os"

	"github.com/rezonia/afip-gateway/internal/model"
)

// Resolver selects and loads the signing identity for a call. Certificate
// material is read fresh on every Resolve; nothing is cached in memory, so a
// rotated certificate takes effect on the next call.
type Resolver struct {
	cfg *Config
}

// NewResolver creates a resolver over the loaded configuration.
func NewResolver(cfg *Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve returns the signing identity for the given tenant. An empty tenant
// selects the system default. Precedence: tenant override with its own
// material, then tenant tax-ID override on system material, then system
// default.
func (r *Resolver) Resolve(tenantID string) (*model.SigningIdentity, error) {
	base := r.cfg.Identity
	ref := "default"

	if tenantID != "" {
		tenant, ok := r.cfg.Tenants[tenantID]
		if !ok {
			return nil, model.NewConfigurationError("tenant", "unknown tenant "+tenantID, nil)
		}
		ref = tenantID
		if tenant.HasMaterial() {
			base = tenant
		} else {
			// Tax-ID-only override: reuse system signing material.
			if tenant.TaxID != "" {
				base.TaxID = tenant.TaxID
			}
			if tenant.PointOfSale != 0 {
				base.PointOfSale = tenant.PointOfSale
			}
		}
	}

	if base.TaxID == "" {
		return nil, model.NewConfigurationError("tax_id", "no tax ID configured for "+ref, nil)
	}

	certPEM, keyPEM, err := loadMaterial(base)
	if err != nil {
		return nil, err
	}

	return &model.SigningIdentity{
		Ref:         ref,
		CertPEM:     certPEM,
		KeyPEM:      keyPEM,
		TaxID:       base.TaxID,
		PointOfSale: base.PointOfSale,
		Environment: r.cfg.Environment,
	}, nil
}

func loadMaterial(ic IdentityConfig) ([]byte, []byte, error) {
	if ic.BundleFile != "" {
		return ExtractPEM(ic.BundleFile, ic.BundlePassword)
	}

	certPEM, err := os.ReadFile(ic.CertFile)
	if err != nil {
		return nil, nil, model.NewConfigurationError("cert_file", "cannot read certificate", err)
	}
	keyPEM, err := os.ReadFile(ic.KeyFile)
	if err != nil {
		return nil, nil, model.NewConfigurationError("key_file", "cannot read private key", err)
	}
	return certPEM, keyPEM, nil
}
