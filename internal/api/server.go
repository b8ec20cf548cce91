// Package api exposes the marketplace over HTTP. Routing and JSON shaping
// live here; all domain validation happens in the market service, and errors
// surface through the taxonomy's stable codes and status mapping.
package api

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/snaillabs/snailmarket/internal/market"
	"github.com/snaillabs/snailmarket/internal/metrics"
	mkterr "github.com/snaillabs/snailmarket/pkg/errors"
)

const requestIDHeader = "X-Request-ID"

// Marketplace is the service surface the API serves, satisfied by
// *market.Service.
type Marketplace interface {
	ListSnails(ctx context.Context) ([]market.Snail, error)
	GetSnail(ctx context.Context, id uint64) (market.Snail, error)
	AddSnail(ctx context.Context, req market.AddRequest) (market.TxOutcome, error)
	BuySnails(ctx context.Context, req market.BuyRequest) (market.TxOutcome, error)
	ContractBalance(ctx context.Context) (market.Balance, error)
	Withdraw(ctx context.Context) (market.TxOutcome, error)
	LookupTransaction(ctx context.Context, txHash string) (market.TxStatus, error)
}

// Logger is the request-logging surface, satisfied by *config.Logger.
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// ChainStatus reports node reachability for the health endpoint, satisfied
// by *eth.Client.
type ChainStatus interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// Server is the HTTP front of the marketplace.
type Server struct {
	engine *gin.Engine
	svc    Marketplace
	chain  ChainStatus
	log    Logger
}

// NewServer builds the router with all marketplace routes mounted.
func NewServer(svc Marketplace, chain ChainStatus, log Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.Default())

	s := &Server{
		engine: engine,
		svc:    svc,
		chain:  chain,
		log:    log,
	}

	engine.Use(s.requestID())
	engine.Use(s.observe())

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", s.handleMetrics)

	engine.GET("/snails", s.handleListSnails)
	engine.GET("/snail/:id", s.handleGetSnail)
	engine.POST("/snail", s.handleAddSnail)
	engine.POST("/buy", s.handleBuy)
	engine.GET("/balance", s.handleBalance)
	engine.POST("/withdraw", s.handleWithdraw)
	engine.GET("/tx/:hash", s.handleLookupTransaction)

	// Mirror the routes under /api for clients that mount the service
	// behind a shared reverse proxy
	apiGroup := engine.Group("/api")
	{
		apiGroup.GET("/snails", s.handleListSnails)
		apiGroup.GET("/snail/:id", s.handleGetSnail)
		apiGroup.POST("/snail", s.handleAddSnail)
		apiGroup.POST("/buy", s.handleBuy)
		apiGroup.GET("/balance", s.handleBalance)
		apiGroup.POST("/withdraw", s.handleWithdraw)
		apiGroup.GET("/tx/:hash", s.handleLookupTransaction)
	}

	return s
}

// Handler returns the http.Handler for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// requestID tags every request with a correlation id, honoring one supplied
// by the client.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// observe records request metrics and writes one log line per request.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		metrics.Global.RecordHTTPRequest(status)

		line := "request %s %s -> %d in %s (id=%s)"
		args := []any{c.Request.Method, c.Request.URL.Path, status, time.Since(start).Round(time.Millisecond), c.GetString("request_id")}
		if status >= http.StatusInternalServerError {
			s.log.Errorf(line, args...)
		} else {
			s.log.Infof(line, args...)
		}
	}
}

// healthCheckTimeout bounds the node probe so a hung node cannot stall the
// health endpoint.
const healthCheckTimeout = 2 * time.Second

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	chainID, err := s.chain.ChainID(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"node":   "unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"chainId": chainID.String(),
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	snap := metrics.Global.GetSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"rpc": gin.H{
			"calls":         snap.RPCCallsTotal,
			"errors":        snap.RPCErrorsTotal,
			"latency_nanos": snap.RPCLatencyNanos,
		},
		"tx": gin.H{
			"submitted": snap.TxSubmitted,
			"confirmed": snap.TxConfirmed,
			"failed":    snap.TxFailed,
		},
		"http": gin.H{
			"requests": snap.HTTPRequests,
			"errors":   snap.HTTPRequestErrors,
		},
	})
}

func (s *Server) handleListSnails(c *gin.Context) {
	snails, err := s.svc.ListSnails(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snails": snails})
}

func (s *Server) handleGetSnail(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		s.renderError(c, mkterr.WithDetails(mkterr.ErrInvalidRequest, map[string]string{
			"field":  "id",
			"reason": "must be a non-negative integer",
		}))
		return
	}

	snail, err := s.svc.GetSnail(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, snail)
}

func (s *Server) handleAddSnail(c *gin.Context) {
	var req market.AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, mkterr.WithDetails(mkterr.ErrInvalidRequest, map[string]string{
			"reason": "malformed JSON body",
		}))
		return
	}

	outcome, err := s.svc.AddSnail(c.Request.Context(), req)
	if err != nil {
		s.renderWriteError(c, err, outcome)
		return
	}
	c.JSON(http.StatusCreated, outcome)
}

func (s *Server) handleBuy(c *gin.Context) {
	var req market.BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, mkterr.WithDetails(mkterr.ErrInvalidRequest, map[string]string{
			"reason": "malformed JSON body",
		}))
		return
	}

	outcome, err := s.svc.BuySnails(c.Request.Context(), req)
	if err != nil {
		s.renderWriteError(c, err, outcome)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleBalance(c *gin.Context) {
	balance, err := s.svc.ContractBalance(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (s *Server) handleWithdraw(c *gin.Context) {
	outcome, err := s.svc.Withdraw(c.Request.Context())
	if err != nil {
		s.renderWriteError(c, err, outcome)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleLookupTransaction(c *gin.Context) {
	status, err := s.svc.LookupTransaction(c.Request.Context(), c.Param("hash"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// errorBody is the stable error envelope.
type errorBody struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
}

// renderError maps a taxonomy error to its HTTP status and envelope.
// Unclassified errors and startup-category codes are masked as a generic
// internal error so nothing about credentials or config leaks to clients.
func (s *Server) renderError(c *gin.Context, err error) {
	status := mkterr.HTTPStatus(err)
	c.JSON(status, gin.H{"error": shapeError(err, status)})
}

// renderWriteError is renderError plus the transaction hash, for writes that
// failed after submission. A timed-out or reverted transaction is still a
// real transaction the client may want to look up.
func (s *Server) renderWriteError(c *gin.Context, err error, outcome market.TxOutcome) {
	status := mkterr.HTTPStatus(err)
	body := gin.H{"error": shapeError(err, status)}
	if outcome.TransactionHash != "" {
		body["transactionHash"] = outcome.TransactionHash
		body["status"] = outcome.Status
	}
	c.JSON(status, body)
}

func shapeError(err error, status int) errorBody {
	var me *mkterr.MarketError
	if !errors.As(err, &me) || status == http.StatusInternalServerError {
		return errorBody{
			Code:    "INTERNAL_ERROR",
			Message: "internal server error",
		}
	}

	return errorBody{
		Code:       me.Code,
		Message:    me.Error(),
		Details:    me.Details,
		Suggestion: me.Suggestion,
	}
}
