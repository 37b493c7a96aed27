// Package http serves deal matching over HTTP with gin.
package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"

	dealmatcher "github.com/Lucky4Angel/deal"
	logutil "github.com/Lucky4Angel/deal/internal/logging"
	"github.com/Lucky4Angel/deal/metrics"
)

// DealMatcher is the subset of *dealmatcher.Matcher the service needs.
type DealMatcher interface {
	Match(ctx context.Context, req dealmatcher.MatchingRequest) (*dealmatcher.MatchResult, error)
	MatchDeal(ctx context.Context, dealID string) (*dealmatcher.MatchResult, error)
}

// ============================================================================
// Options
// ============================================================================

type handlerOptions struct {
	logger         logr.Logger
	collector      *metrics.Collector
	mcpServer      *mcpsdk.Server
	requestTimeout time.Duration
}

// HandlerOption configures the handler
type HandlerOption func(*handlerOptions)

// WithLogger sets the request logger
func WithLogger(logger logr.Logger) HandlerOption {
	return func(o *handlerOptions) {
		o.logger = logger
	}
}

// WithMetrics records request metrics and serves them on /metrics
func WithMetrics(collector *metrics.Collector) HandlerOption {
	return func(o *handlerOptions) {
		o.collector = collector
	}
}

// WithMCPServer serves the MCP server over SSE on /mcp
func WithMCPServer(server *mcpsdk.Server) HandlerOption {
	return func(o *handlerOptions) {
		o.mcpServer = server
	}
}

// WithRequestTimeout bounds each matching attempt (defaults to 60s)
func WithRequestTimeout(d time.Duration) HandlerOption {
	return func(o *handlerOptions) {
		o.requestTimeout = d
	}
}

// ============================================================================
// Handler
// ============================================================================

type handler struct {
	matcher DealMatcher
	opts    handlerOptions
	group   singleflight.Group
}

// NewHandler builds the gin engine serving matching routes.
func NewHandler(matcher DealMatcher, opts ...HandlerOption) *gin.Engine {
	o := handlerOptions{
		logger:         logr.Discard(),
		requestTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	h := &handler{matcher: matcher, opts: o}

	r := gin.New()
	r.Use(gin.Recovery(), h.observe)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	v1.GET("/deals/:dealId/match", h.matchDeal)
	v1.GET("/deals/:dealId/calldata", h.calldata)
	v1.POST("/match", h.match)

	if o.collector != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(o.collector.Registry(), promhttp.HandlerOpts{})))
	}
	if o.mcpServer != nil {
		sse := mcpsdk.NewSSEHandler(func(req *http.Request) *mcpsdk.Server {
			return o.mcpServer
		}, nil)
		r.Any("/mcp", gin.WrapH(sse))
	}

	return r
}

// observe logs and measures every request.
func (h *handler) observe(c *gin.Context) {
	start := time.Now()
	logger := h.opts.logger.WithValues("method", c.Request.Method, "path", c.Request.URL.Path)
	c.Request = c.Request.WithContext(logutil.IntoContext(c.Request.Context(), logger))

	c.Next()

	d := time.Since(start)
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	logger.V(logutil.DEBUG).Info("Request served", "status", c.Writer.Status(), "duration", d)
	if h.opts.collector != nil {
		h.opts.collector.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), d)
	}
}

// attemptContext detaches a matching attempt from the caller's cancellation
// so a coalesced attempt survives the first caller disconnecting.
func (h *handler) attemptContext(c *gin.Context) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(c.Request.Context())
	if h.opts.requestTimeout > 0 {
		return context.WithTimeout(ctx, h.opts.requestTimeout)
	}
	return context.WithCancel(ctx)
}

func (h *handler) resolveAndMatch(c *gin.Context, dealID string) (*dealmatcher.MatchResult, error) {
	key := dealmatcher.NormalizeID(dealID)
	v, err, shared := h.group.Do(key, func() (interface{}, error) {
		ctx, cancel := h.attemptContext(c)
		defer cancel()
		return h.matcher.MatchDeal(ctx, key)
	})
	if shared {
		logutil.FromContext(c.Request.Context(), h.opts.logger).V(logutil.DEBUG).Info("Shared in-flight matching attempt", "dealId", key)
	}
	if err != nil {
		return nil, err
	}
	return v.(*dealmatcher.MatchResult), nil
}

func (h *handler) matchDeal(c *gin.Context) {
	res, err := h.resolveAndMatch(c, c.Param("dealId"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) calldata(c *gin.Context) {
	dealID := dealmatcher.NormalizeID(c.Param("dealId"))
	res, err := h.resolveAndMatch(c, dealID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if !res.Fulfilled {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "not_fulfilled",
			"message": "not enough compute units to fulfil the deal",
			"result":  res,
		})
		return
	}

	data, err := dealmatcher.PackMatchDeal(dealID, res)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deal":      dealID,
		"fulfilled": res.Fulfilled,
		"calldata":  hexutil.Encode(data),
	})
}

func (h *handler) match(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.abortWithError(c, dealmatcher.NewMatchError(dealmatcher.ErrCodeInvalidRequest, "failed to read body", nil))
		return
	}

	req, err := ParseMatchRequest(body)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	ctx, cancel := h.attemptContext(c)
	defer cancel()
	res, err := h.matcher.Match(ctx, req)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ============================================================================
// Errors
// ============================================================================

// StatusForError maps matching errors to HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, dealmatcher.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, dealmatcher.ErrDealNotFound):
		return http.StatusNotFound
	case errors.Is(err, dealmatcher.ErrDealAlreadyMatched):
		return http.StatusConflict
	case errors.Is(err, dealmatcher.ErrInconsistentIndexerState):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (h *handler) abortWithError(c *gin.Context, err error) {
	status := StatusForError(err)
	logger := logutil.FromContext(c.Request.Context(), h.opts.logger)
	if status >= http.StatusInternalServerError {
		logger.Error(err, "Matching request failed", "status", status)
	} else {
		logger.V(logutil.VERBOSE).Info("Matching request rejected", "status", status, "error", err.Error())
	}

	var me *dealmatcher.MatchError
	if errors.As(err, &me) {
		c.AbortWithStatusJSON(status, me)
		return
	}
	c.AbortWithStatusJSON(status, gin.H{
		"code":    "upstream_error",
		"message": err.Error(),
	})
}
