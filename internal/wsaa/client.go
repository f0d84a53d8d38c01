// Package wsaa implements the ticket-granting login handshake.
//
// The flow: build a time-windowed login ticket request, CMS-sign it, post it
// over mutual TLS to the LoginCms endpoint, and extract token/sign/expiration
// from the nested response. Fresh tickets go through the cache; the
// "already authenticated" fault is recovered from the cache when possible.
package wsaa

import (
	"context"
	"strings"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/rezonia/afip-gateway/internal/model"
	"github.com/rezonia/afip-gateway/internal/sign"
	"github.com/rezonia/afip-gateway/internal/soap"
	"github.com/rezonia/afip-gateway/internal/ticket"
)

// ServiceWSFE is the service name tickets are requested for.
const ServiceWSFE = "wsfe"

// Ticket-granting endpoints per environment.
const (
	EndpointSandbox    = "https://wsaahomo.afip.gov.ar/ws/services/LoginCms"
	EndpointProduction = "https://wsaa.afip.gov.ar/ws/services/LoginCms"
)

// alreadyAuthenticatedCode marks the fault the authority returns while a
// previously issued ticket is still active for the identity.
const alreadyAuthenticatedCode = "alreadyAuthenticated"

// Client performs the login handshake and maintains the ticket cache.
type Client struct {
	signer    sign.Signer
	store     ticket.Store
	logger    *zap.Logger
	timeout   time.Duration
	now       func() time.Time
	reference func() time.Time

	endpointOverride string
	newTransport     func(*model.SigningIdentity) (*soap.Client, error)
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout bounds the login network call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithReferenceClock overrides the drift-check reference. Tests simulate a
// fast host clock by letting it lag behind the main clock.
func WithReferenceClock(reference func() time.Time) Option {
	return func(c *Client) { c.reference = reference }
}

// WithEndpoint overrides the environment-derived endpoint URL.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpointOverride = url }
}

// WithTransport overrides the transport construction. Tests inject plain
// HTTP clients pointed at httptest servers.
func WithTransport(factory func(*model.SigningIdentity) (*soap.Client, error)) Option {
	return func(c *Client) { c.newTransport = factory }
}

// NewClient creates an authentication client over the given signer and
// ticket store.
func NewClient(signer sign.Signer, store ticket.Store, opts ...Option) *Client {
	c := &Client{
		signer:  signer,
		store:   store,
		logger:  zap.NewNop(),
		timeout: 30 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reference == nil {
		c.reference = c.now
	}
	if c.newTransport == nil {
		c.newTransport = func(identity *model.SigningIdentity) (*soap.Client, error) {
			return soap.NewClient(identity, c.timeout, c.logger)
		}
	}
	return c
}

// Endpoint returns the login URL for the identity's environment.
func (c *Client) Endpoint(env model.Environment) string {
	if c.endpointOverride != "" {
		return c.endpointOverride
	}
	if env == model.EnvironmentProduction {
		return EndpointProduction
	}
	return EndpointSandbox
}

// Authenticate returns a valid ticket for the identity and service, reusing
// the cache when the stored ticket is still inside its safety margin.
func (c *Client) Authenticate(ctx context.Context, identity *model.SigningIdentity, service string) (*ticket.Ticket, error) {
	key := ticket.CacheKey(identity.Ref, service, string(identity.Environment))

	if cached, _ := c.store.Load(key); cached.ValidAt(c.now()) {
		c.logger.Debug("reusing cached ticket",
			zap.String("identity", identity.Ref),
			zap.String("service", service),
			zap.Time("expiration", cached.Expiration))
		return cached, nil
	}

	return c.login(ctx, identity, service, key)
}

func (c *Client) login(ctx context.Context, identity *model.SigningIdentity, service, key string) (*ticket.Ticket, error) {
	tra, err := BuildTRA(service, c.now(), c.reference())
	if err != nil {
		return nil, model.NewProtocolFault("", "cannot build login ticket request", err)
	}

	cms, err := c.signer.Sign(ctx, tra, identity)
	if err != nil {
		return nil, model.NewConfigurationError("identity", "cannot sign login ticket request", err)
	}

	envelope, err := loginEnvelope(cms)
	if err != nil {
		return nil, model.NewProtocolFault("", "cannot build login envelope", err)
	}

	transport, err := c.newTransport(identity)
	if err != nil {
		return nil, err
	}

	body, err := transport.Call(ctx, c.Endpoint(identity.Environment), "", envelope)
	if err != nil {
		return nil, err
	}

	if fault := soap.ExtractFault(body); fault != nil {
		return c.handleFault(fault, key, identity)
	}

	tk, err := parseLoginResponse(body)
	if err != nil {
		return nil, err
	}
	tk.ScopeKey = key

	if err := c.store.Save(key, tk); err != nil {
		// The ticket is still good for this call; losing the cache entry
		// only costs a future handshake.
		c.logger.Warn("cannot persist ticket", zap.Error(err))
	}

	c.logger.Info("ticket issued",
		zap.String("identity", identity.Ref),
		zap.String("service", service),
		zap.Time("expiration", tk.Expiration))
	return tk, nil
}

// handleFault recovers the already-authenticated fault from the cache when a
// valid entry exists; every other fault propagates.
func (c *Client) handleFault(fault *soap.Fault, key string, identity *model.SigningIdentity) (*ticket.Ticket, error) {
	if strings.Contains(fault.Code, alreadyAuthenticatedCode) {
		if cached, _ := c.store.Load(key); cached.ValidAt(c.now()) {
			c.logger.Info("authority reports active ticket, reusing cache",
				zap.String("identity", identity.Ref))
			return cached, nil
		}
		return nil, model.NewProtocolFault(fault.Code,
			"a ticket is already active for this identity but none is cached; wait for it to expire and retry", nil)
	}
	return nil, model.NewProtocolFault(fault.Code, fault.Reason, nil)
}

// loginEnvelope wraps the base64 CMS in the LoginCms SOAP envelope.
func loginEnvelope(cms string) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("soapenv:Envelope")
	env.CreateAttr("xmlns:soapenv", "http://schemas.xmlsoap.org/soap/envelope/")
	env.CreateAttr("xmlns:wsaa", "http://wsaa.view.sua.dvadac.desein.afip.gov")

	body := env.CreateElement("soapenv:Body")
	login := body.CreateElement("wsaa:loginCms")
	login.CreateElement("wsaa:in0").SetText(cms)

	doc.Indent(0)
	return doc.WriteToBytes()
}

// expirationLayouts covers the formats the authority has been seen using.
var expirationLayouts = []string{
	"2006-01-02T15:04:05.000-07:00",
	time.RFC3339,
	timeLayout,
}

// parseLoginResponse extracts the ticket from the nested response: the
// loginCmsReturn element carries an escaped loginTicketResponse document.
func parseLoginResponse(body []byte) (*ticket.Ticket, error) {
	doc, err := soap.ParseDocument(body)
	if err != nil || doc.Root() == nil {
		return nil, model.NewProtocolFault("", "cannot parse login response", err)
	}

	ret := soap.FindLocal(doc.Root(), "loginCmsReturn")
	if ret == nil {
		return nil, model.NewProtocolFault("", "login response has no loginCmsReturn", nil)
	}

	inner, err := soap.ParseDocument([]byte(ret.Text()))
	if err != nil || inner.Root() == nil {
		return nil, model.NewProtocolFault("", "cannot parse login ticket response", err)
	}

	token := soap.Text(inner.Root(), "token")
	signature := soap.Text(inner.Root(), "sign")
	if token == "" || signature == "" {
		return nil, model.NewProtocolFault("", "login ticket response missing token or sign", nil)
	}

	expirationText := soap.Text(inner.Root(), "expirationTime")
	expiration, err := parseExpiration(expirationText)
	if err != nil {
		return nil, model.NewProtocolFault("", "cannot parse ticket expiration "+expirationText, err)
	}

	return &ticket.Ticket{Token: token, Sign: signature, Expiration: expiration}, nil
}

func parseExpiration(text string) (time.Time, error) {
	var lastErr error
	for _, layout := range expirationLayouts {
		t, err := time.Parse(layout, text)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
