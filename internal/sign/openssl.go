package sign

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rezonia/afip-gateway/internal/model"
)

// DefaultOpenSSLTimeout bounds one openssl invocation.
const DefaultOpenSSLTimeout = 15 * time.Second

// OpenSSLSigner shells out to the openssl binary (smime -sign). Certificate,
// key, and payload are written to temp files that are removed on every exit
// path.
type OpenSSLSigner struct {
	path      string
	available bool
	timeout   time.Duration
}

// NewOpenSSLSigner probes for the openssl binary in common locations.
func NewOpenSSLSigner() *OpenSSLSigner {
	path, available := detectOpenSSL()
	return &OpenSSLSigner{
		path:      path,
		available: available,
		timeout:   DefaultOpenSSLTimeout,
	}
}

// Name returns the backend identifier.
func (s *OpenSSLSigner) Name() string { return "openssl" }

// Available reports whether the openssl binary was found.
func (s *OpenSSLSigner) Available() bool { return s.available }

// SetTimeout sets the execution timeout for openssl.
func (s *OpenSSLSigner) SetTimeout(d time.Duration) { s.timeout = d }

// Sign writes the identity material and payload to temp files, runs
// openssl smime -sign, and returns the DER output base64-encoded.
func (s *OpenSSLSigner) Sign(ctx context.Context, payload []byte, identity *model.SigningIdentity) (string, error) {
	if !s.available {
		return "", fmt.Errorf("openssl binary not available")
	}

	certFile, err := writeTemp("afip-cert-*.pem", identity.CertPEM)
	if err != nil {
		return "", err
	}
	defer os.Remove(certFile)

	keyFile, err := writeTemp("afip-key-*.pem", identity.KeyPEM)
	if err != nil {
		return "", err
	}
	defer os.Remove(keyFile)

	inFile, err := writeTemp("afip-tra-*.xml", payload)
	if err != nil {
		return "", err
	}
	defer os.Remove(inFile)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.path, "smime", "-sign",
		"-signer", certFile,
		"-inkey", keyFile,
		"-in", inFile,
		"-outform", "DER",
		"-nodetach")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("openssl smime failed: %w, stderr: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return "", fmt.Errorf("openssl smime produced no output, stderr: %s", stderr.String())
	}

	return base64.StdEncoding.EncodeToString(stdout.Bytes()), nil
}

func writeTemp(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return f.Name(), nil
}

// detectOpenSSL looks for openssl in common locations.
func detectOpenSSL() (string, bool) {
	paths := []string{
		"openssl",                   // PATH
		"/usr/bin/openssl",          // Linux
		"/opt/homebrew/bin/openssl", // macOS Homebrew ARM
		"/usr/local/bin/openssl",    // macOS Homebrew Intel
	}

	for _, p := range paths {
		if path, err := exec.LookPath(p); err == nil {
			return path, true
		}
	}

	return "", false
}
