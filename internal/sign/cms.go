package sign

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"go.mozilla.org/pkcs7"

	"github.com/rezonia/afip-gateway/internal/model"
)

// CMSSigner signs in-process with go.mozilla.org/pkcs7. Output matches the
// openssl backend: attached DER SignedData, base64, single line.
type CMSSigner struct{}

// NewCMSSigner creates the in-process signing backend.
func NewCMSSigner() *CMSSigner {
	return &CMSSigner{}
}

// Name returns the backend identifier.
func (s *CMSSigner) Name() string { return "cms" }

// Sign produces the base64 DER SignedData over payload.
func (s *CMSSigner) Sign(_ context.Context, payload []byte, identity *model.SigningIdentity) (string, error) {
	cert, err := parseCertificatePEM(identity.CertPEM)
	if err != nil {
		return "", err
	}
	key, err := parsePrivateKeyPEM(identity.KeyPEM)
	if err != nil {
		return "", err
	}

	signed, err := pkcs7.NewSignedData(payload)
	if err != nil {
		return "", fmt.Errorf("failed to initialize signed data: %w", err)
	}
	signed.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)

	if err := signed.AddSigner(cert, key, pkcs7.SignerInfoConfig{}); err != nil {
		return "", fmt.Errorf("failed to add signer: %w", err)
	}

	der, err := signed.Finish()
	if err != nil {
		return "", fmt.Errorf("failed to finish signed data: %w", err)
	}

	return base64.StdEncoding.EncodeToString(der), nil
}

func parseCertificatePEM(certPEM []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no CERTIFICATE block in PEM data")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

func parsePrivateKeyPEM(keyPEM []byte) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in key data")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("unsupported private key format (type %q)", block.Type)
}
