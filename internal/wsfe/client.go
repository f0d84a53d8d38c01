// Package wsfe implements the WSFEv1 operations: last-authorized voucher
// lookup and CAE authorization. Requests are typed structs marshaled
// declaratively; the tax-regime rules run before anything touches the
// network.
package wsfe

import (
	"context"
	"encoding/xml"
	"time"

	"go.uber.org/zap"

	"github.com/rezonia/afip-gateway/internal/model"
	"github.com/rezonia/afip-gateway/internal/soap"
	"github.com/rezonia/afip-gateway/internal/ticket"
)

// Invoice-authorization endpoints per environment.
const (
	EndpointSandbox    = "https://wswhomo.afip.gov.ar/wsfev1/service.asmx"
	EndpointProduction = "https://servicios1.afip.gov.ar/wsfev1/service.asmx"
)

const dateLayout = "20060102"

// buenosAires pins voucher dates to the authority's -03:00 offset,
// independent of the host timezone.
var buenosAires = time.FixedZone("-03:00", -3*60*60)

// Client calls the invoice-authorization service. The ticket's token/sign
// pair is the bearer credential; no per-call CMS signature is involved.
type Client struct {
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time

	endpointOverride string
	newTransport     func(*model.SigningIdentity) (*soap.Client, error)
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout bounds each network call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithClock overrides the time source used for issue dates.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithEndpoint overrides the environment-derived endpoint URL.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpointOverride = url }
}

// WithTransport overrides the transport construction for tests.
func WithTransport(factory func(*model.SigningIdentity) (*soap.Client, error)) Option {
	return func(c *Client) { c.newTransport = factory }
}

// NewClient creates an invoice-authorization client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		logger:  zap.NewNop(),
		timeout: 30 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.newTransport == nil {
		c.newTransport = func(identity *model.SigningIdentity) (*soap.Client, error) {
			return soap.NewClient(identity, c.timeout, c.logger)
		}
	}
	return c
}

// Endpoint returns the service URL for the identity's environment.
func (c *Client) Endpoint(env model.Environment) string {
	if c.endpointOverride != "" {
		return c.endpointOverride
	}
	if env == model.EnvironmentProduction {
		return EndpointProduction
	}
	return EndpointSandbox
}

func (c *Client) call(ctx context.Context, identity *model.SigningIdentity, operation string, payload interface{}) ([]byte, error) {
	envelope, err := xml.Marshal(envelopeFor(payload))
	if err != nil {
		return nil, model.NewProtocolFault("", "cannot marshal "+operation+" request", err)
	}
	envelope = append([]byte(xml.Header), envelope...)

	transport, err := c.newTransport(identity)
	if err != nil {
		return nil, err
	}

	url := c.Endpoint(identity.Environment)
	body, err := transport.Call(ctx, url, Namespace+operation, envelope)
	if err != nil {
		return nil, err
	}

	if fault := soap.ExtractFault(body); fault != nil {
		return nil, model.NewProtocolFault(fault.Code, fault.Reason, nil)
	}
	return body, nil
}

// LastAuthorized returns the last voucher number the authority authorized
// for the point of sale / voucher type pair.
func (c *Client) LastAuthorized(ctx context.Context, identity *model.SigningIdentity, tk *ticket.Ticket, pointOfSale, voucherType int) (int64, error) {
	req := FECompUltimoAutorizadoRequest{
		Auth:     FEAuthRequest{Token: tk.Token, Sign: tk.Sign, Cuit: identity.TaxID},
		PtoVta:   pointOfSale,
		CbteTipo: voucherType,
	}

	body, err := c.call(ctx, identity, "FECompUltimoAutorizado", req)
	if err != nil {
		return 0, err
	}

	var resp lastAuthorizedResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return 0, model.NewProtocolFault("", "cannot parse FECompUltimoAutorizado response", err)
	}

	if len(resp.Result.Errors.Err) > 0 {
		return 0, rejectionFromErrors(resp.Result.Errors)
	}

	return resp.Result.CbteNro, nil
}

// NextNumber computes last+1. The value is advisory: the authority is
// authoritative at submission time, and concurrent callers for the same
// pair can compute the same number.
func (c *Client) NextNumber(ctx context.Context, identity *model.SigningIdentity, tk *ticket.Ticket, pointOfSale, voucherType int) (int64, error) {
	last, err := c.LastAuthorized(ctx, identity, tk, pointOfSale, voucherType)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// Authorize submits one voucher under the given number and parses the CAE
// or the rejection. The request is normalized first; a rule violation never
// reaches the network.
func (c *Client) Authorize(ctx context.Context, identity *model.SigningIdentity, tk *ticket.Ticket, req model.InvoiceRequest, number int64) (*model.InvoiceResult, error) {
	wire, err := c.BuildRequest(identity, tk, req, number)
	if err != nil {
		return nil, err
	}

	body, err := c.call(ctx, identity, "FECAESolicitar", *wire)
	if err != nil {
		return nil, err
	}

	return parseCAEResponse(body, identity, req.VoucherType)
}

// BuildRequest normalizes the invoice and assembles the wire request
// without submitting it. Dry-run flows and tests use it directly.
func (c *Client) BuildRequest(identity *model.SigningIdentity, tk *ticket.Ticket, req model.InvoiceRequest, number int64) (*FECAESolicitarRequest, error) {
	normalized, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	detail, err := c.buildDetail(&normalized, number)
	if err != nil {
		return nil, err
	}

	return &FECAESolicitarRequest{
		Auth: FEAuthRequest{Token: tk.Token, Sign: tk.Sign, Cuit: identity.TaxID},
		FeCAEReq: FECAERequest{
			FeCabReq: FECAECabRequest{
				CantReg:  1,
				PtoVta:   identity.PointOfSale,
				CbteTipo: normalized.VoucherType,
			},
			FeDetReq: FECAEDetList{Details: []FECAEDetRequest{*detail}},
		},
	}, nil
}

func (c *Client) buildDetail(req *model.InvoiceRequest, number int64) (*FECAEDetRequest, error) {
	issue := c.now().In(buenosAires)

	detail := &FECAEDetRequest{
		Concepto:   req.Concept,
		DocTipo:    req.DocType,
		DocNro:     req.DocNumber,
		CbteDesde:  number,
		CbteHasta:  number,
		CbteFch:    issue.Format(dateLayout),
		ImpTotal:   req.Total.StringFixed(2),
		ImpTotConc: req.Untaxed.StringFixed(2),
		ImpNeto:    req.Net.StringFixed(2),
		ImpOpEx:    req.Exempt.StringFixed(2),
		ImpTrib:    req.OtherTaxes.StringFixed(2),
		ImpIVA:     req.VAT.StringFixed(2),
		MonId:      req.Currency,
		MonCotiz:   "1",
	}

	// Service concepts carry a period; missing dates default to the issue
	// date so the request stays conformant.
	if req.Concept == model.ConceptServices || req.Concept == model.ConceptProductsAndServices {
		detail.FchServDesde = dateOrDefault(req.ServiceFrom, issue)
		detail.FchServHasta = dateOrDefault(req.ServiceTo, issue)
		detail.FchVtoPago = dateOrDefault(req.PaymentDue, issue)
	}

	// The classification goes on the wire only for the types that demand
	// it; everywhere else the element is absent.
	if model.RequiresReceiverTaxCondition(req.VoucherType) {
		detail.CondicionIVAReceptorId = req.ReceiverTaxCondition
	}

	iva, err := vatLines(req)
	if err != nil {
		return nil, err
	}
	detail.Iva = iva
	detail.CbtesAsoc = associatedVouchers(req)

	return detail, nil
}

func dateOrDefault(t *time.Time, fallback time.Time) string {
	if t != nil {
		return t.In(buenosAires).Format(dateLayout)
	}
	return fallback.Format(dateLayout)
}

func rejectionFromErrors(errs feErrors) *model.RejectionError {
	observations := make([]model.Observation, len(errs.Err))
	for i, e := range errs.Err {
		observations[i] = model.Observation{Code: e.Code, Message: e.Msg}
	}
	return model.NewRejectionError(observations)
}

func parseCAEResponse(body []byte, identity *model.SigningIdentity, voucherType int) (*model.InvoiceResult, error) {
	var resp caeResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, model.NewProtocolFault("", "cannot parse FECAESolicitar response", err)
	}

	if len(resp.Result.Errors.Err) > 0 {
		return nil, rejectionFromErrors(resp.Result.Errors)
	}

	if len(resp.Result.FeDetResp.Details) == 0 {
		return nil, model.NewProtocolFault("", "FECAESolicitar response has no detail", nil)
	}
	detail := resp.Result.FeDetResp.Details[0]

	// Either result level can flag the rejection; observations live on the
	// detail. All of them go into the error.
	if resp.Result.FeCabResp.Resultado == "R" || detail.Resultado == "R" {
		observations := make([]model.Observation, len(detail.Observaciones.Obs))
		for i, obs := range detail.Observaciones.Obs {
			observations[i] = model.Observation{Code: obs.Code, Message: obs.Msg}
		}
		return nil, model.NewRejectionError(observations)
	}

	if detail.CAE == "" {
		return nil, model.NewProtocolFault("", "accepted response carries no CAE", nil)
	}

	caeExpiration, err := time.ParseInLocation(dateLayout, detail.CAEFchVto, buenosAires)
	if err != nil {
		return nil, model.NewProtocolFault("", "cannot parse CAE expiration "+detail.CAEFchVto, err)
	}
	issueDate, err := time.ParseInLocation(dateLayout, detail.CbteFch, buenosAires)
	if err != nil {
		return nil, model.NewProtocolFault("", "cannot parse voucher date "+detail.CbteFch, err)
	}

	return &model.InvoiceResult{
		CAE:           detail.CAE,
		CAEExpiration: caeExpiration,
		Number:        detail.CbteDesde,
		PointOfSale:   identity.PointOfSale,
		VoucherType:   voucherType,
		IssueDate:     issueDate,
	}, nil
}
