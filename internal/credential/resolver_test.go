package credential

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/afip-gateway/internal/model"
)

func writeTestMaterial(t *testing.T) (certFile, keyFile string) {
	t.Helper()

	key, cert := generateTestIdentity(t)
	dir := t.TempDir()

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	require.NoError(t, os.WriteFile(certFile, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))
	return certFile, keyFile
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	certFile, keyFile := writeTestMaterial(t)
	return &Config{
		Environment: model.EnvironmentSandbox,
		Identity: IdentityConfig{
			CertFile:    certFile,
			KeyFile:     keyFile,
			TaxID:       "20111111112",
			PointOfSale: 1,
		},
		Tenants: map[string]IdentityConfig{
			"salon-norte": {TaxID: "27222222223", PointOfSale: 4},
			"empty":       {},
		},
	}
}

func TestResolve_Default(t *testing.T) {
	r := NewResolver(testConfig(t))

	id, err := r.Resolve("")
	require.NoError(t, err)

	assert.Equal(t, "default", id.Ref)
	assert.Equal(t, "20111111112", id.TaxID)
	assert.Equal(t, 1, id.PointOfSale)
	assert.Equal(t, model.EnvironmentSandbox, id.Environment)
	assert.NotEmpty(t, id.CertPEM)
	assert.NotEmpty(t, id.KeyPEM)
}

func TestResolve_TenantTaxIDOverride(t *testing.T) {
	r := NewResolver(testConfig(t))

	id, err := r.Resolve("salon-norte")
	require.NoError(t, err)

	// Tenant reuses system signing material but bills under its own CUIT.
	assert.Equal(t, "salon-norte", id.Ref)
	assert.Equal(t, "27222222223", id.TaxID)
	assert.Equal(t, 4, id.PointOfSale)
	assert.NotEmpty(t, id.CertPEM)
}

func TestResolve_TenantWithOwnMaterial(t *testing.T) {
	cfg := testConfig(t)
	certFile, keyFile := writeTestMaterial(t)
	cfg.Tenants["standalone"] = IdentityConfig{
		CertFile:    certFile,
		KeyFile:     keyFile,
		TaxID:       "30333333334",
		PointOfSale: 9,
	}
	r := NewResolver(cfg)

	id, err := r.Resolve("standalone")
	require.NoError(t, err)
	assert.Equal(t, "30333333334", id.TaxID)
	assert.Equal(t, 9, id.PointOfSale)
}

func TestResolve_UnknownTenant(t *testing.T) {
	r := NewResolver(testConfig(t))

	_, err := r.Resolve("nope")
	require.Error(t, err)

	var cfgErr *model.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
}

func TestResolve_TenantWithoutTaxIDInheritsDefault(t *testing.T) {
	r := NewResolver(testConfig(t))

	id, err := r.Resolve("empty")
	require.NoError(t, err)
	assert.Equal(t, "20111111112", id.TaxID)
}

func TestResolve_MissingCertFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Identity.CertFile = filepath.Join(t.TempDir(), "gone.pem")
	r := NewResolver(cfg)

	_, err := r.Resolve("")
	require.Error(t, err)

	var cfgErr *model.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Environment = "staging"
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Identity = IdentityConfig{TaxID: "20111111112"}
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Identity.TaxID = ""
	require.Error(t, bad.Validate())
}

func TestLoad_FromYAML(t *testing.T) {
	certFile, keyFile := writeTestMaterial(t)
	content := `environment: sandbox
timeout: 45s
identity:
  cert_file: ` + certFile + `
  key_file: ` + keyFile + `
  tax_id: "20111111112"
  point_of_sale: 2
tenants:
  salon-norte:
    tax_id: "27222222223"
`
	path := filepath.Join(t.TempDir(), "afip.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, model.EnvironmentSandbox, cfg.Environment)
	assert.Equal(t, 2, cfg.Identity.PointOfSale)
	assert.Equal(t, "27222222223", cfg.Tenants["salon-norte"].TaxID)
	assert.Equal(t, "45s", cfg.Timeout.String())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
