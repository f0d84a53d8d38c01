// Package soap carries the HTTP plumbing shared by the WSAA and WSFE
// clients: mutual-TLS transport, envelope submission, and fault detection.
package soap

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rezonia/afip-gateway/internal/model"
)

// Client posts SOAP envelopes over one mutual-TLS connection configuration.
// A client is built per call pipeline from freshly loaded identity material.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a mutual-TLS client presenting the identity's
// certificate. The timeout bounds every request end to end.
func NewClient(identity *model.SigningIdentity, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	cert, err := tls.X509KeyPair(identity.CertPEM, identity.KeyPEM)
	if err != nil {
		return nil, model.NewConfigurationError("identity", "cannot build TLS key pair", err)
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
		},
	}
	return NewClientWithHTTP(httpClient, logger), nil
}

// NewClientWithHTTP wraps an existing HTTP client. Tests inject httptest
// transports through here.
func NewClientWithHTTP(httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{httpClient: httpClient, logger: logger}
}

// Call posts the envelope with the given SOAPAction and returns the response
// body. A 500 body is returned too: SOAP services deliver faults that way
// and callers parse them into the protocol-level taxonomy. Anything else
// non-200 is a TransportError, as are network failures and timeouts.
func (c *Client) Call(ctx context.Context, url, soapAction string, envelope []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(envelope))
	if err != nil {
		return nil, model.NewTransportError(url, 0, "cannot create request", err)
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	if soapAction != "" {
		req.Header.Set("SOAPAction", soapAction)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, model.NewTransportError(url, 0, "request timed out", err)
		}
		return nil, model.NewTransportError(url, 0, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewTransportError(url, resp.StatusCode, "cannot read response body", err)
	}

	c.logger.Debug("soap call completed",
		zap.String("url", url),
		zap.String("action", soapAction),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusInternalServerError:
		// Fault envelopes arrive with status 500.
		return body, nil
	default:
		return nil, model.NewTransportError(url, resp.StatusCode, "unexpected status", nil)
	}
}
