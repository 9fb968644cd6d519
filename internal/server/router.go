package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mivaca/backend/internal/auth"
	"github.com/mivaca/backend/internal/billing"
	"github.com/mivaca/backend/internal/metrics"
	"go.uber.org/zap"
)

const (
	actorContextKey          = "mivaca_actor"
	sessionIDParam           = "id"
	defaultHeartbeatInterval = 25 * time.Second
	unmatchedRoute           = "unmatched"
)

var (
	errMissingBillingService = errors.New("billing service dependency required")
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingRealtime       = errors.New("realtime dispatcher dependency required")
)

// ParticipantTokenManager issues the tokens handed to hosts and diners and
// resolves them back on every authenticated request.
type ParticipantTokenManager interface {
	IssueParticipantToken(ctx context.Context, participant auth.Participant) (string, int64, error)
	ValidateRequest(r *http.Request) (auth.ParticipantClaims, error)
}

type Dependencies struct {
	Billing           *billing.Service
	Tokens            ParticipantTokenManager
	Realtime          *RealtimeDispatcher
	Metrics           *metrics.Collector
	Logger            *zap.Logger
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Billing == nil {
		return nil, errMissingBillingService
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	handler := &httpHandler{
		billing:   deps.Billing,
		tokens:    deps.Tokens,
		realtime:  deps.Realtime,
		metrics:   deps.Metrics,
		logger:    logger,
		heartbeat: heartbeat,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.observeRequest)
	router.Use(corsMiddleware(deps.AllowedOrigins))

	router.GET("/healthz", handler.handleHealth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	api := router.Group("/api")
	api.POST("/sessions", handler.handleCreateSession)

	public := api.Group("/sessions/:" + sessionIDParam)
	public.GET("", handler.handleGetSession)
	public.GET("/summary", handler.handleSummary)
	public.POST("/diners", handler.handleJoinSession)
	public.GET("/diners", handler.handleListDiners)
	public.GET("/payments", handler.handleListPayments)
	public.GET("/stream", handler.handleSessionStream)

	participant := api.Group("/sessions/:" + sessionIDParam)
	participant.Use(handler.authorizeParticipant)
	participant.POST("/items", handler.handleAddLineItem)
	participant.DELETE("/items/:itemId", handler.handleRemoveLineItem)
	participant.POST("/shared-items", handler.handleAddSharedItem)
	participant.DELETE("/groups/:groupId", handler.handleRemoveDistributionGroup)
	participant.POST("/payments", handler.handleRecordPayment)
	participant.POST("/tip-percent", handler.handleSetTipPercent)
	participant.POST("/bill-total", handler.handleCloseBill)
	participant.POST("/merge", handler.handleMergeDiners)
	participant.POST("/payment-qr", handler.handleSetPaymentQRImage)
	participant.DELETE("/payment-qr", handler.handleClearPaymentQRImage)
	participant.POST("/bank-key", handler.handleSetBankKey)
	participant.DELETE("/bank-key", handler.handleClearBankKey)

	return router, nil
}

type httpHandler struct {
	billing   *billing.Service
	tokens    ParticipantTokenManager
	realtime  *RealtimeDispatcher
	metrics   *metrics.Collector
	logger    *zap.Logger
	heartbeat time.Duration
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Last-Event-ID"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			origins = nil
			break
		}
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

// observeRequest logs every request and feeds the request duration histogram.
func (h *httpHandler) observeRequest(c *gin.Context) {
	start := time.Now()
	c.Next()

	elapsed := time.Since(start)
	route := c.FullPath()
	if route == "" {
		route = unmatchedRoute
	}
	status := c.Writer.Status()
	h.metrics.ObserveHTTPRequest(c.Request.Method, route, status, elapsed)

	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("route", route),
		zap.Int("status", status),
		zap.Duration("elapsed", elapsed),
		zap.String("client_ip", c.ClientIP()),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Warn("http request completed", fields...)
		return
	}
	h.logger.Debug("http request completed", fields...)
}

// authorizeParticipant resolves the bearer token into the acting participant.
// Tokens only open the session they were issued for.
func (h *httpHandler) authorizeParticipant(c *gin.Context) {
	claims, err := h.tokens.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredToken), errors.Is(err, auth.ErrMissingToken):
			h.logger.Info("token validation failed", zap.Error(err))
		default:
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if claims.SessionID != c.Param(sessionIDParam) {
		h.logger.Info("token presented for another session",
			zap.String("token_session_id", claims.SessionID),
			zap.String("session_id", c.Param(sessionIDParam)))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "wrong_session"})
		return
	}
	c.Set(actorContextKey, billing.Actor{
		SessionID:     claims.SessionID,
		ParticipantID: claims.ParticipantID(),
		Role:          billing.Role(claims.Role),
	})
	c.Next()
}

func actorFrom(c *gin.Context) (billing.Actor, bool) {
	value, ok := c.Get(actorContextKey)
	if !ok {
		return billing.Actor{}, false
	}
	actor, ok := value.(billing.Actor)
	return actor, ok
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
