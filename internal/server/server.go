// Package server exposes the invoice gateway over HTTP. Handlers translate
// the error taxonomy into statuses: invalid requests are 422, broken
// configuration is 500, authority trouble is 502, and explicit rejections
// are 409 with every observation included.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rezonia/afip-gateway/internal/model"
)

// Config holds server configuration
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Debug        bool
}

// Gateway is the invoice pipeline the handlers delegate to.
type Gateway interface {
	Issue(ctx context.Context, tenantID string, req model.InvoiceRequest) (*model.InvoiceResult, error)
	NextNumber(ctx context.Context, tenantID string, pointOfSale, voucherType int) (int64, error)
}

// Server represents the HTTP API server
type Server struct {
	config  *Config
	router  *gin.Engine
	gateway Gateway
	logger  *zap.Logger
}

// NewServer creates a new API server
func NewServer(config *Config, gateway Gateway, logger *zap.Logger) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if config.Debug {
		router.Use(gin.Logger())
	}

	s := &Server{
		config:  config,
		router:  router,
		gateway: gateway,
		logger:  logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/invoices", s.handleIssue)
		v1.GET("/vouchers/next", s.handleNextNumber)
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return srv.ListenAndServe()
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleIssue(c *gin.Context) {
	var req model.InvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "malformed request body: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	result, err := s.gateway.Issue(ctx, c.Query("tenant"), req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, IssueResponse{Result: result})
}

func (s *Server) handleNextNumber(c *gin.Context) {
	voucherType, err := strconv.Atoi(c.Query("type"))
	if err != nil || voucherType <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "query parameter 'type' must be a positive voucher type code"})
		return
	}
	pointOfSale, _ := strconv.Atoi(c.DefaultQuery("pos", "0"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	next, err := s.gateway.NextNumber(ctx, c.Query("tenant"), pointOfSale, voucherType)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, NextNumberResponse{
		PointOfSale: pointOfSale,
		VoucherType: voucherType,
		Next:        next,
	})
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, kind := statusFor(err)

	resp := ErrorResponse{Error: err.Error(), Kind: kind}
	var rejection *model.RejectionError
	if errors.As(err, &rejection) {
		for _, obs := range rejection.Observations {
			resp.Observations = append(resp.Observations, ObservationOutput{
				Code:    obs.Code,
				Message: obs.Message,
			})
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("kind", kind), zap.Error(err))
	}
	c.JSON(status, resp)
}

// statusFor maps the error taxonomy to HTTP statuses.
func statusFor(err error) (int, string) {
	var (
		validation *model.ValidationError
		config     *model.ConfigurationError
		transport  *model.TransportError
		fault      *model.ProtocolFault
		rejection  *model.RejectionError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, "validation"
	case errors.As(err, &config):
		return http.StatusInternalServerError, "configuration"
	case errors.As(err, &transport):
		return http.StatusBadGateway, "transport"
	case errors.As(err, &fault):
		return http.StatusBadGateway, "protocol"
	case errors.As(err, &rejection):
		return http.StatusConflict, "rejection"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
