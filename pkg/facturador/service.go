// Package facturador is the caller-facing surface: one service that takes
// an InvoiceRequest plus a tenant reference and returns an authorized
// InvoiceResult or a typed error. It wires credential resolution, the
// login handshake, voucher numbering and CAE authorization into a single
// pipeline.
package facturador

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rezonia/afip-gateway/internal/billing"
	"github.com/rezonia/afip-gateway/internal/credential"
	"github.com/rezonia/afip-gateway/internal/model"
	"github.com/rezonia/afip-gateway/internal/sign"
	"github.com/rezonia/afip-gateway/internal/ticket"
	"github.com/rezonia/afip-gateway/internal/wsaa"
	"github.com/rezonia/afip-gateway/internal/wsfe"
)

// Authenticator supplies a valid ticket for an identity, from cache or by
// performing the login handshake.
type Authenticator interface {
	Authenticate(ctx context.Context, identity *model.SigningIdentity, service string) (*ticket.Ticket, error)
}

// Authorizer covers the voucher-numbering and CAE operations.
type Authorizer interface {
	NextNumber(ctx context.Context, identity *model.SigningIdentity, tk *ticket.Ticket, pointOfSale, voucherType int) (int64, error)
	Authorize(ctx context.Context, identity *model.SigningIdentity, tk *ticket.Ticket, req model.InvoiceRequest, number int64) (*model.InvoiceResult, error)
	BuildRequest(identity *model.SigningIdentity, tk *ticket.Ticket, req model.InvoiceRequest, number int64) (*wsfe.FECAESolicitarRequest, error)
}

// Service issues electronic invoices for the identities in configuration.
type Service struct {
	resolver *credential.Resolver
	signer   sign.Signer
	auth     Authenticator
	fe       Authorizer
	logger   *zap.Logger
	dryRun   bool
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithAuthenticator replaces the login client.
func WithAuthenticator(auth Authenticator) ServiceOption {
	return func(s *Service) { s.auth = auth }
}

// WithAuthorizer replaces the invoice-authorization client.
func WithAuthorizer(fe Authorizer) ServiceOption {
	return func(s *Service) { s.fe = fe }
}

// WithSigner replaces the CMS signer.
func WithSigner(signer sign.Signer) ServiceOption {
	return func(s *Service) { s.signer = signer }
}

// WithDryRun builds and signs requests without contacting the authority.
func WithDryRun(dryRun bool) ServiceOption {
	return func(s *Service) { s.dryRun = dryRun }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService builds a Service from loaded configuration.
func NewService(cfg *credential.Config, opts ...ServiceOption) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		resolver: credential.NewResolver(cfg),
		logger:   zap.NewNop(),
		dryRun:   cfg.DryRun,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.signer == nil {
		s.signer = sign.NewSigner(s.logger)
	}

	if s.auth == nil {
		var store ticket.Store
		if cfg.CacheDir != "" {
			fileStore, err := ticket.NewFileStore(cfg.CacheDir)
			if err != nil {
				return nil, err
			}
			store = fileStore
		} else {
			store = ticket.NewMemoryStore()
		}
		s.auth = wsaa.NewClient(s.signer, store,
			wsaa.WithLogger(s.logger),
			wsaa.WithTimeout(cfg.Timeout))
	}

	if s.fe == nil {
		s.fe = wsfe.NewClient(
			wsfe.WithLogger(s.logger),
			wsfe.WithTimeout(cfg.Timeout))
	}

	return s, nil
}

// Authenticate resolves the tenant's identity and returns a usable ticket.
func (s *Service) Authenticate(ctx context.Context, tenantID string) (*ticket.Ticket, error) {
	identity, err := s.resolver.Resolve(tenantID)
	if err != nil {
		return nil, err
	}
	return s.auth.Authenticate(ctx, identity, wsaa.ServiceWSFE)
}

// NextNumber returns the next voucher number for the tenant's point of
// sale, or for an explicit one when pointOfSale is nonzero.
func (s *Service) NextNumber(ctx context.Context, tenantID string, pointOfSale, voucherType int) (int64, error) {
	identity, err := s.resolver.Resolve(tenantID)
	if err != nil {
		return 0, err
	}
	if pointOfSale == 0 {
		pointOfSale = identity.PointOfSale
	}

	tk, err := s.auth.Authenticate(ctx, identity, wsaa.ServiceWSFE)
	if err != nil {
		return 0, err
	}
	return s.fe.NextNumber(ctx, identity, tk, pointOfSale, voucherType)
}

// Issue authorizes one invoice end to end: resolve identity, obtain a
// ticket, compute the next number, submit, parse. Concurrent calls for the
// same (point of sale, voucher type) pair can compute the same number and
// the authority rejects the loser; callers wanting strict ordering must
// serialize per pair themselves.
func (s *Service) Issue(ctx context.Context, tenantID string, req model.InvoiceRequest) (*model.InvoiceResult, error) {
	correlationID := uuid.NewString()
	log := s.logger.With(
		zap.String("correlation_id", correlationID),
		zap.String("tenant", tenantID))

	identity, err := s.resolver.Resolve(tenantID)
	if err != nil {
		return nil, err
	}

	s.applyDefaults(&req)

	// Every business rule runs here, before the handshake and the numbering
	// query. An invalid request must not cost a login that could later trip
	// the already-authenticated fault.
	req, err = wsfe.Normalize(req)
	if err != nil {
		return nil, err
	}

	if s.dryRun {
		return s.dryIssue(ctx, identity, req, log)
	}

	tk, err := s.auth.Authenticate(ctx, identity, wsaa.ServiceWSFE)
	if err != nil {
		return nil, err
	}

	number, err := s.fe.NextNumber(ctx, identity, tk, identity.PointOfSale, req.VoucherType)
	if err != nil {
		return nil, err
	}

	result, err := s.fe.Authorize(ctx, identity, tk, req, number)
	if err != nil {
		log.Warn("authorization failed",
			zap.Int("voucher_type", req.VoucherType),
			zap.Int64("number", number),
			zap.Error(err))
		return nil, err
	}

	log.Info("voucher authorized",
		zap.Int("voucher_type", result.VoucherType),
		zap.Int64("number", result.Number),
		zap.String("cae", result.CAE))
	return result, nil
}

// applyDefaults fills the voucher type and receiver classification from
// the customer's tax condition when the caller left them unset.
func (s *Service) applyDefaults(req *model.InvoiceRequest) {
	if req.VoucherType == 0 && req.CustomerTaxCondition != "" {
		req.VoucherType = billing.SelectVoucherType(req.CustomerTaxCondition)
	}
	if req.ReceiverTaxCondition == 0 && model.RequiresReceiverTaxCondition(req.VoucherType) &&
		req.CustomerTaxCondition != "" {
		req.ReceiverTaxCondition = billing.ReceiverCondition(req.CustomerTaxCondition)
	}
}

// dryIssue runs the full local pipeline, signing included, and synthesizes
// a result without any network call.
func (s *Service) dryIssue(ctx context.Context, identity *model.SigningIdentity, req model.InvoiceRequest, log *zap.Logger) (*model.InvoiceResult, error) {
	probe := &ticket.Ticket{
		Token:      "dry-run",
		Sign:       "dry-run",
		Expiration: s.now().Add(time.Hour),
	}

	wire, err := s.fe.BuildRequest(identity, probe, req, 1)
	if err != nil {
		return nil, err
	}

	// Exercise the signing path so broken key material surfaces here and
	// not on the first real call.
	if _, err := s.signer.Sign(ctx, []byte("probe"), identity); err != nil {
		return nil, model.NewConfigurationError("signer", "cannot sign with the configured material", err)
	}

	detail := wire.FeCAEReq.FeDetReq.Details[0]
	log.Info("dry run: request built, network skipped",
		zap.Int("voucher_type", wire.FeCAEReq.FeCabReq.CbteTipo),
		zap.String("total", detail.ImpTotal))

	return &model.InvoiceResult{
		Number:      detail.CbteDesde,
		PointOfSale: identity.PointOfSale,
		VoucherType: wire.FeCAEReq.FeCabReq.CbteTipo,
		IssueDate:   s.now(),
		DryRun:      true,
	}, nil
}

// Check validates configuration and certificate material without touching
// the network: the tenant must resolve and the signer must produce a
// signature with its material.
func (s *Service) Check(ctx context.Context, tenantID string) error {
	identity, err := s.resolver.Resolve(tenantID)
	if err != nil {
		return err
	}
	if _, err := s.signer.Sign(ctx, []byte("probe"), identity); err != nil {
		return model.NewConfigurationError("signer", "cannot sign with the configured material", err)
	}
	return nil
}
