// Package sign produces CMS/PKCS#7 signatures over login ticket requests.
//
// Two interchangeable backends exist: a shell-out to the openssl binary and
// an in-process signer. The openssl backend is preferred when the binary is
// present; any failure falls through to the in-process signer transparently.
// Both emit the same format: DER SignedData with the content attached,
// base64-encoded on a single line.
package sign

import (
	"context"

	"go.uber.org/zap"

	"github.com/rezonia/afip-gateway/internal/model"
)

// Signer signs an XML payload for the ticket-granting handshake.
type Signer interface {
	// Sign returns the base64-encoded DER CMS signature over payload.
	Sign(ctx context.Context, payload []byte, identity *model.SigningIdentity) (string, error)
	// Name identifies the backend in logs.
	Name() string
}

// NewSigner selects the signing backend: openssl when the binary is found,
// wrapped with an in-process fallback; in-process alone otherwise.
func NewSigner(logger *zap.Logger) Signer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cms := NewCMSSigner()
	openssl := NewOpenSSLSigner()
	if !openssl.Available() {
		logger.Debug("openssl not found, using in-process signer")
		return cms
	}
	return NewChainSigner(openssl, cms, logger)
}

// ChainSigner tries a primary backend and falls back on any error.
type ChainSigner struct {
	primary  Signer
	fallback Signer
	logger   *zap.Logger
}

// NewChainSigner wires an explicit primary/fallback pair. Exposed so tests
// can exercise the fallback path with a deterministic failing primary.
func NewChainSigner(primary, fallback Signer, logger *zap.Logger) *ChainSigner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainSigner{primary: primary, fallback: fallback, logger: logger}
}

func (c *ChainSigner) Name() string {
	return c.primary.Name() + "+" + c.fallback.Name()
}

func (c *ChainSigner) Sign(ctx context.Context, payload []byte, identity *model.SigningIdentity) (string, error) {
	sig, err := c.primary.Sign(ctx, payload, identity)
	if err == nil {
		return sig, nil
	}
	c.logger.Warn("primary signer failed, falling back",
		zap.String("primary", c.primary.Name()),
		zap.String("fallback", c.fallback.Name()),
		zap.Error(err))
	return c.fallback.Sign(ctx, payload, identity)
}
