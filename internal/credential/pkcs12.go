package credential

import (
	"crypto/x509"
	"encoding/pem"
	"os"

	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/rezonia/afip-gateway/internal/model"
)

// ExtractPEM opens a PKCS#12 bundle and returns the certificate and private
// key as PEM blocks. If decoding with the supplied password fails and the
// password was non-empty, the empty password is tried before giving up;
// bundles exported without a passphrase are common in the field.
func ExtractPEM(bundlePath, password string) (certPEM, keyPEM []byte, err error) {
	data, err := os.ReadFile(bundlePath)
	if err != nil {
		return nil, nil, model.NewConfigurationError("bundle", "cannot read PKCS#12 bundle", err)
	}
	return extractPEM(data, password)
}

func extractPEM(data []byte, password string) (certPEM, keyPEM []byte, err error) {
	key, cert, decodeErr := pkcs12.Decode(data, password)
	if decodeErr != nil && password != "" {
		key, cert, decodeErr = pkcs12.Decode(data, "")
	}
	if decodeErr != nil {
		return nil, nil, model.NewConfigurationError("bundle", "cannot decode PKCS#12 bundle", decodeErr)
	}
	if cert == nil {
		return nil, nil, model.NewConfigurationError("bundle", "no certificate in PKCS#12 bundle", nil)
	}
	if key == nil {
		return nil, nil, model.NewConfigurationError("bundle", "no private key in PKCS#12 bundle", nil)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, model.NewConfigurationError("bundle", "cannot encode private key", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}
