package facturador

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/afip-gateway/internal/afipdec"
	"github.com/rezonia/afip-gateway/internal/credential"
	"github.com/rezonia/afip-gateway/internal/model"
	"github.com/rezonia/afip-gateway/internal/ticket"
	"github.com/rezonia/afip-gateway/internal/wsfe"
)

func testConfig(t *testing.T) *credential.Config {
	t.Helper()
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certPath, []byte("cert material"), 0o600))
	require.NoError(t, os.WriteFile(keyPath, []byte("key material"), 0o600))

	return &credential.Config{
		Environment: model.EnvironmentSandbox,
		Identity: credential.IdentityConfig{
			CertFile:    certPath,
			KeyFile:     keyPath,
			TaxID:       "20111111112",
			PointOfSale: 4,
		},
		Timeout: time.Second,
	}
}

type stubAuth struct {
	ticket *ticket.Ticket
	err    error
	calls  int
}

func (a *stubAuth) Authenticate(context.Context, *model.SigningIdentity, string) (*ticket.Ticket, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.ticket, nil
}

type stubFE struct {
	next       int64
	nextErr    error
	authorized *model.InvoiceResult
	authErr    error

	gotRequest model.InvoiceRequest
	gotNumber  int64
	gotPos     int
	nextCalls  int
	authCalls  int
}

func (f *stubFE) NextNumber(_ context.Context, _ *model.SigningIdentity, _ *ticket.Ticket, pointOfSale, _ int) (int64, error) {
	f.nextCalls++
	f.gotPos = pointOfSale
	if f.nextErr != nil {
		return 0, f.nextErr
	}
	return f.next, nil
}

func (f *stubFE) Authorize(_ context.Context, _ *model.SigningIdentity, _ *ticket.Ticket, req model.InvoiceRequest, number int64) (*model.InvoiceResult, error) {
	f.authCalls++
	f.gotRequest = req
	f.gotNumber = number
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.authorized, nil
}

func (f *stubFE) BuildRequest(identity *model.SigningIdentity, tk *ticket.Ticket, req model.InvoiceRequest, number int64) (*wsfe.FECAESolicitarRequest, error) {
	return wsfe.NewClient().BuildRequest(identity, tk, req, number)
}

type stubSigner struct {
	err   error
	calls int
}

func (s *stubSigner) Name() string { return "stub" }

func (s *stubSigner) Sign(context.Context, []byte, *model.SigningIdentity) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "c2lnbmF0dXJl", nil
}

func validTicket() *ticket.Ticket {
	return &ticket.Ticket{Token: "T", Sign: "S", Expiration: time.Now().Add(time.Hour)}
}

func testRequest() model.InvoiceRequest {
	return model.InvoiceRequest{
		VoucherType:          model.VoucherInvoiceB,
		Concept:              model.ConceptProducts,
		DocType:              model.DocTypeFinalConsumer,
		ReceiverTaxCondition: model.TaxConditionFinalConsumer,
		Net:                  afipdec.MustFromString("1000.00"),
		VAT:                  afipdec.MustFromString("210.00"),
		Total:                afipdec.MustFromString("1210.00"),
	}
}

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(testConfig(t), opts...)
	require.NoError(t, err)
	return svc
}

func TestIssue_FullPipeline(t *testing.T) {
	auth := &stubAuth{ticket: validTicket()}
	fe := &stubFE{
		next: 42,
		authorized: &model.InvoiceResult{
			CAE:         "71234567890123",
			Number:      42,
			PointOfSale: 4,
			VoucherType: model.VoucherInvoiceB,
		},
	}

	svc := newTestService(t,
		WithAuthenticator(auth),
		WithAuthorizer(fe),
		WithSigner(&stubSigner{}))

	result, err := svc.Issue(context.Background(), "", testRequest())
	require.NoError(t, err)

	assert.Equal(t, "71234567890123", result.CAE)
	assert.Equal(t, int64(42), fe.gotNumber, "authorization uses the freshly computed number")
	assert.Equal(t, 4, fe.gotPos, "numbering uses the identity's point of sale")
	assert.Equal(t, 1, auth.calls)
}

func TestIssue_DerivesTypeAndConditionFromCustomer(t *testing.T) {
	auth := &stubAuth{ticket: validTicket()}
	fe := &stubFE{next: 1, authorized: &model.InvoiceResult{CAE: "X"}}

	svc := newTestService(t,
		WithAuthenticator(auth),
		WithAuthorizer(fe),
		WithSigner(&stubSigner{}))

	req := testRequest()
	req.VoucherType = 0
	req.ReceiverTaxCondition = 0
	req.CustomerTaxCondition = "consumidor_final"

	_, err := svc.Issue(context.Background(), "", req)
	require.NoError(t, err)

	assert.Equal(t, model.VoucherInvoiceB, fe.gotRequest.VoucherType)
	assert.Equal(t, model.TaxConditionFinalConsumer, fe.gotRequest.ReceiverTaxCondition)
}

func TestIssue_RegisteredCustomerGetsAInvoice(t *testing.T) {
	auth := &stubAuth{ticket: validTicket()}
	fe := &stubFE{next: 1, authorized: &model.InvoiceResult{CAE: "X"}}

	svc := newTestService(t,
		WithAuthenticator(auth),
		WithAuthorizer(fe),
		WithSigner(&stubSigner{}))

	req := testRequest()
	req.VoucherType = 0
	req.ReceiverTaxCondition = 0
	req.CustomerTaxCondition = "responsable_inscripto"
	req.DocType = model.DocTypeCUIT
	req.DocNumber = 20111111112

	_, err := svc.Issue(context.Background(), "", req)
	require.NoError(t, err)

	assert.Equal(t, model.VoucherInvoiceA, fe.gotRequest.VoucherType)
	assert.Zero(t, fe.gotRequest.ReceiverTaxCondition, "A vouchers carry no receiver classification")
}

func TestIssue_InvalidRequestNeverReachesNetwork(t *testing.T) {
	auth := &stubAuth{ticket: validTicket()}
	fe := &stubFE{next: 1, authorized: &model.InvoiceResult{CAE: "X"}}

	svc := newTestService(t,
		WithAuthenticator(auth),
		WithAuthorizer(fe),
		WithSigner(&stubSigner{}))

	req := testRequest()
	req.ReceiverTaxCondition = 0

	_, err := svc.Issue(context.Background(), "", req)

	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "receiver_tax_condition", verr.Field)
	assert.Zero(t, auth.calls, "invalid request must not cost a login")
	assert.Zero(t, fe.nextCalls, "invalid request must not query numbering")
	assert.Zero(t, fe.authCalls)
}

func TestIssue_UnknownRateNeverReachesNetwork(t *testing.T) {
	auth := &stubAuth{ticket: validTicket()}
	fe := &stubFE{next: 1, authorized: &model.InvoiceResult{CAE: "X"}}

	svc := newTestService(t,
		WithAuthenticator(auth),
		WithAuthorizer(fe),
		WithSigner(&stubSigner{}))

	req := testRequest()
	req.VAT = afipdec.MustFromString("150.00")
	req.Total = afipdec.MustFromString("1150.00")

	_, err := svc.Issue(context.Background(), "", req)

	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "vat", verr.Field)
	assert.Zero(t, auth.calls)
	assert.Zero(t, fe.nextCalls)
}

func TestIssue_UnknownTenant(t *testing.T) {
	auth := &stubAuth{ticket: validTicket()}
	svc := newTestService(t,
		WithAuthenticator(auth),
		WithAuthorizer(&stubFE{}),
		WithSigner(&stubSigner{}))

	_, err := svc.Issue(context.Background(), "ghost", testRequest())
	require.Error(t, err)

	var cfgErr *model.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Zero(t, auth.calls, "resolution fails before any handshake")
}

func TestIssue_AuthFailurePropagates(t *testing.T) {
	auth := &stubAuth{err: model.NewProtocolFault("x", "boom", nil)}
	svc := newTestService(t,
		WithAuthenticator(auth),
		WithAuthorizer(&stubFE{}),
		WithSigner(&stubSigner{}))

	_, err := svc.Issue(context.Background(), "", testRequest())
	var fault *model.ProtocolFault
	require.True(t, errors.As(err, &fault))
}

func TestIssue_DryRunSkipsNetwork(t *testing.T) {
	auth := &stubAuth{ticket: validTicket()}
	signer := &stubSigner{}

	svc := newTestService(t,
		WithAuthenticator(auth),
		WithAuthorizer(&stubFE{}),
		WithSigner(signer),
		WithDryRun(true))

	result, err := svc.Issue(context.Background(), "", testRequest())
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Empty(t, result.CAE)
	assert.Equal(t, 4, result.PointOfSale)
	assert.Equal(t, model.VoucherInvoiceB, result.VoucherType)
	assert.Zero(t, auth.calls, "dry run never authenticates")
	assert.Equal(t, 1, signer.calls, "dry run still exercises the signer")
}

func TestIssue_DryRunStillValidates(t *testing.T) {
	svc := newTestService(t,
		WithAuthenticator(&stubAuth{ticket: validTicket()}),
		WithAuthorizer(&stubFE{}),
		WithSigner(&stubSigner{}),
		WithDryRun(true))

	req := testRequest()
	req.ReceiverTaxCondition = 0

	_, err := svc.Issue(context.Background(), "", req)
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestCheck(t *testing.T) {
	svc := newTestService(t,
		WithAuthenticator(&stubAuth{}),
		WithAuthorizer(&stubFE{}),
		WithSigner(&stubSigner{}))
	require.NoError(t, svc.Check(context.Background(), ""))
}

func TestCheck_BrokenSigner(t *testing.T) {
	svc := newTestService(t,
		WithAuthenticator(&stubAuth{}),
		WithAuthorizer(&stubFE{}),
		WithSigner(&stubSigner{err: errors.New("no key")}))

	err := svc.Check(context.Background(), "")
	var cfgErr *model.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
}

func TestNextNumber_DefaultsPointOfSale(t *testing.T) {
	fe := &stubFE{next: 8}
	svc := newTestService(t,
		WithAuthenticator(&stubAuth{ticket: validTicket()}),
		WithAuthorizer(fe),
		WithSigner(&stubSigner{}))

	next, err := svc.NextNumber(context.Background(), "", 0, model.VoucherInvoiceB)
	require.NoError(t, err)
	assert.Equal(t, int64(8), next)
	assert.Equal(t, 4, fe.gotPos)
}

func TestNewService_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Identity.TaxID = ""

	_, err := NewService(cfg)
	var cfgErr *model.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
}
