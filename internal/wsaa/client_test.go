package wsaa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rezonia/afip-gateway/internal/model"
	"github.com/rezonia/afip-gateway/internal/soap"
	"github.com/rezonia/afip-gateway/internal/ticket"
)

type stubSigner struct {
	err    error
	called int
}

func (s *stubSigner) Name() string { return "stub" }

func (s *stubSigner) Sign(context.Context, []byte, *model.SigningIdentity) (string, error) {
	s.called++
	if s.err != nil {
		return "", s.err
	}
	return "Q01TLXNpZ25hdHVyZQ==", nil
}

func testIdentity() *model.SigningIdentity {
	return &model.SigningIdentity{
		Ref:         "default",
		CertPEM:     []byte("cert"),
		KeyPEM:      []byte("key"),
		TaxID:       "20111111112",
		PointOfSale: 1,
		Environment: model.EnvironmentSandbox,
	}
}

// loginResponseBody builds a LoginCms response with the inner ticket
// document escaped inside loginCmsReturn, as the authority sends it.
func loginResponseBody(t *testing.T, token, sign, expiration string) string {
	t.Helper()

	inner := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
		`<loginTicketResponse version="1.0">`+
		`<header><expirationTime>%s</expirationTime></header>`+
		`<credentials><token>%s</token><sign>%s</sign></credentials>`+
		`</loginTicketResponse>`, expiration, token, sign)

	doc := etree.NewDocument()
	env := doc.CreateElement("soapenv:Envelope")
	env.CreateAttr("xmlns:soapenv", "http://schemas.xmlsoap.org/soap/envelope/")
	body := env.CreateElement("soapenv:Body")
	resp := body.CreateElement("loginCmsResponse")
	resp.CreateElement("loginCmsReturn").SetText(inner)

	out, err := doc.WriteToString()
	require.NoError(t, err)
	return out
}

func newTestClient(t *testing.T, srv *httptest.Server, store ticket.Store, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithEndpoint(srv.URL),
		WithTransport(func(*model.SigningIdentity) (*soap.Client, error) {
			return soap.NewClientWithHTTP(srv.Client(), zap.NewNop()), nil
		}),
	}
	return NewClient(&stubSigner{}, store, append(base, opts...)...)
}

func TestAuthenticate_IssuesAndCachesTicket(t *testing.T) {
	expiration := time.Now().Add(12 * time.Hour)
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(loginResponseBody(t, "TOKEN123", "SIGN456", expiration.Format("2006-01-02T15:04:05.000-07:00"))))
	}))
	defer srv.Close()

	store := ticket.NewMemoryStore()
	c := newTestClient(t, srv, store)

	tk, err := c.Authenticate(context.Background(), testIdentity(), ServiceWSFE)
	require.NoError(t, err)
	assert.Equal(t, "TOKEN123", tk.Token)
	assert.Equal(t, "SIGN456", tk.Sign)
	assert.WithinDuration(t, expiration, tk.Expiration, time.Second)

	key := ticket.CacheKey("default", ServiceWSFE, "sandbox")
	cached, err := store.Load(key)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, key, cached.ScopeKey)

	// Second call is served from the cache.
	_, err = c.Authenticate(context.Background(), testIdentity(), ServiceWSFE)
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
}

func TestAuthenticate_ExpiredCacheTriggersLogin(t *testing.T) {
	expiration := time.Now().Add(12 * time.Hour)
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(loginResponseBody(t, "FRESH", "SIGN", expiration.Format("2006-01-02T15:04:05.000-07:00"))))
	}))
	defer srv.Close()

	store := ticket.NewMemoryStore()
	key := ticket.CacheKey("default", ServiceWSFE, "sandbox")
	// Inside the safety margin: unusable.
	require.NoError(t, store.Save(key, &ticket.Ticket{
		Token:      "STALE",
		Sign:       "STALE",
		Expiration: time.Now().Add(2 * time.Minute),
		ScopeKey:   key,
	}))

	c := newTestClient(t, srv, store)
	tk, err := c.Authenticate(context.Background(), testIdentity(), ServiceWSFE)
	require.NoError(t, err)
	assert.Equal(t, "FRESH", tk.Token)
	assert.Equal(t, 1, requests)
}

// scriptedStore returns nil on the first load and a fixed ticket afterwards,
// simulating another process writing the cache mid-handshake.
type scriptedStore struct {
	ticket.Store
	later *ticket.Ticket
	loads int
}

func (s *scriptedStore) Load(string) (*ticket.Ticket, error) {
	s.loads++
	if s.loads == 1 {
		return nil, nil
	}
	return s.later, nil
}

func (s *scriptedStore) Save(string, *ticket.Ticket) error { return nil }

func alreadyAuthenticatedFault() string {
	return `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"><soapenv:Body>` +
		`<soapenv:Fault><faultcode>ns1:coe.alreadyAuthenticated</faultcode>` +
		`<faultstring>El CEE ya posee un TA valido para el acceso al WSN solicitado</faultstring>` +
		`</soapenv:Fault></soapenv:Body></soapenv:Envelope>`
}

func TestAuthenticate_AlreadyAuthenticatedReusesCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(alreadyAuthenticatedFault()))
	}))
	defer srv.Close()

	valid := &ticket.Ticket{
		Token:      "CONCURRENT",
		Sign:       "SIGN",
		Expiration: time.Now().Add(time.Hour),
	}
	store := &scriptedStore{later: valid}

	c := newTestClient(t, srv, store)
	tk, err := c.Authenticate(context.Background(), testIdentity(), ServiceWSFE)
	require.NoError(t, err)
	assert.Equal(t, "CONCURRENT", tk.Token)
}

func TestAuthenticate_AlreadyAuthenticatedWithoutCacheFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(alreadyAuthenticatedFault()))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, ticket.NewMemoryStore())
	_, err := c.Authenticate(context.Background(), testIdentity(), ServiceWSFE)
	require.Error(t, err)

	var fault *model.ProtocolFault
	require.True(t, errors.As(err, &fault))
	assert.Contains(t, fault.Code, "alreadyAuthenticated")
	assert.Contains(t, fault.Message, "retry")
}

func TestAuthenticate_OtherFaultPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`<Envelope><Body><Fault><faultcode>ns1:cms.bad</faultcode>` +
			`<faultstring>Firma invalida</faultstring></Fault></Body></Envelope>`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, ticket.NewMemoryStore())
	_, err := c.Authenticate(context.Background(), testIdentity(), ServiceWSFE)
	require.Error(t, err)

	var fault *model.ProtocolFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, "ns1:cms.bad", fault.Code)
	assert.Contains(t, fault.Message, "Firma invalida")
}

func TestAuthenticate_MissingTokenIsProtocolFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(loginResponseBody(t, "", "", "2026-08-24T10:00:00.000-03:00")))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, ticket.NewMemoryStore())
	_, err := c.Authenticate(context.Background(), testIdentity(), ServiceWSFE)
	require.Error(t, err)

	var fault *model.ProtocolFault
	require.True(t, errors.As(err, &fault))
}

func TestAuthenticate_MalformedResponseIsProtocolFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>this is not soap</html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, ticket.NewMemoryStore())
	_, err := c.Authenticate(context.Background(), testIdentity(), ServiceWSFE)
	require.Error(t, err)

	var fault *model.ProtocolFault
	require.True(t, errors.As(err, &fault))
}

func TestAuthenticate_SignerFailureIsConfigurationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("network must not be reached when signing fails")
	}))
	defer srv.Close()

	signer := &stubSigner{err: fmt.Errorf("no key material")}
	c := NewClient(signer, ticket.NewMemoryStore(),
		WithEndpoint(srv.URL),
		WithTransport(func(*model.SigningIdentity) (*soap.Client, error) {
			return soap.NewClientWithHTTP(srv.Client(), zap.NewNop()), nil
		}))

	_, err := c.Authenticate(context.Background(), testIdentity(), ServiceWSFE)
	require.Error(t, err)

	var cfgErr *model.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
}

func TestEndpoint_PerEnvironment(t *testing.T) {
	c := NewClient(&stubSigner{}, ticket.NewMemoryStore())
	assert.Equal(t, EndpointSandbox, c.Endpoint(model.EnvironmentSandbox))
	assert.Equal(t, EndpointProduction, c.Endpoint(model.EnvironmentProduction))
}
