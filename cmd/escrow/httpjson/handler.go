package httpjson

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	web "github.com/escrowhq/escrow/http"
	"github.com/escrowhq/escrow/logging"
	"github.com/escrowhq/escrow/models"
	"github.com/escrowhq/escrow/services"
)

type handler struct {
	*gin.Engine

	deps   Dependencies
	logger zerolog.Logger

	// bounds read routes only, writes wait for inclusion
	readTimeout gin.HandlerFunc
}

type Config struct {
	Dependencies

	Addr           string
	AllowedOrigins string
	LogRequests    bool

	Logger zerolog.Logger
}

type Dependencies struct {
	Escrow     EscrowService
	History    HistoryService
	Sale       SaleService
	Staking    StakingService
	Governance GovernanceService
	Metrics    *services.MetricsService
}

// EscrowService defines the purchase lifecycle operations
type EscrowService interface {
	Create(ctx context.Context, seller, price, collateral, tokenAddress string) *models.TransactionResult
	Confirm(ctx context.Context, purchaseID string) *models.TransactionResult
	Release(ctx context.Context, purchaseID string) *models.TransactionResult
	Abort(ctx context.Context, purchaseID string) *models.TransactionResult
	GetDetails(ctx context.Context, purchaseID string) (*models.PurchaseRecord, error)
}

type HistoryService interface {
	GetHistory(ctx context.Context, wallet string) ([]models.TransactionLogEntry, error)
}

type SaleService interface {
	PriceQuote(ctx context.Context, nativeAmount string) (string, error)
	Buy(ctx context.Context, referrer, nativeAmount string, multiplier decimal.Decimal) *models.TransactionResult
	Contribution(ctx context.Context, account string) (*models.ContributionRecord, error)
	ClaimTokens(ctx context.Context) *models.TransactionResult
}

type StakingService interface {
	StakeInfo(ctx context.Context, account string) (*models.StakeInfo, error)
	NewStake(ctx context.Context, amount string, stakeTime uint64) *models.TransactionResult
	ClaimAndWithdraw(ctx context.Context) *models.TransactionResult
	ClaimAndReset(ctx context.Context, stakeTime uint64) *models.TransactionResult
}

type GovernanceService interface {
	VotingPower(ctx context.Context, account string) (string, error)
	MinDelay(ctx context.Context) (uint64, error)
	Delegate(ctx context.Context, delegatee string) *models.TransactionResult
	Propose(ctx context.Context, targets, values, calldatas []string, description string) *models.TransactionResult
	CastVote(ctx context.Context, proposalID string, support uint8) *models.TransactionResult
}

const (
	readRequestTimeout = 30 * time.Second

	// Ledger writes wait for inclusion, so the budget covers several blocks.
	writeTimeout = 5 * time.Minute
)

var (
	ErrParamRequired = errors.New("param required")
	ErrRouteNotFound = errors.New("route not found")
	ErrInternal      = errors.New("internal error")
)

func New(cfg Config) *http.Server {
	return &http.Server{
		Addr:    cfg.Addr,
		Handler: newHandler(cfg, gin.New()),

		// Time to read the request headers/body
		ReadTimeout: 15 * time.Second,

		// Time to write the response
		WriteTimeout: writeTimeout,

		// Time to keep connections alive
		IdleTimeout: 60 * time.Second,

		// Max header bytes (1MB)
		MaxHeaderBytes: 1024 * 1024,
	}
}

func newHandler(cfg Config, router *gin.Engine) *handler {
	h := &handler{
		Engine: router,
		deps:   cfg.Dependencies,
		logger: cfg.Logger.With().Str(logging.FieldModule, "api").Logger(),

		readTimeout: web.Timeout(readRequestTimeout, cfg.Logger),
	}

	logLevel := zerolog.DebugLevel
	if cfg.LogRequests {
		logLevel = zerolog.InfoLevel
	}

	h.Use(
		gin.CustomRecovery(h.recover),
		web.RequestID(),
		web.Zerolog(cfg.Logger, logLevel),
		web.CORS(cfg.AllowedOrigins),
	)

	h.setupAPIRoutes()
	h.setupObservabilityRoutes()

	h.NoRoute(func(c *gin.Context) {
		web.ErrNotFound(c, errors.Wrap(ErrRouteNotFound, c.Request.URL.Path))
	})

	return h
}

func (h *handler) recover(c *gin.Context, recovered any) {
	h.logger.Error().
		Interface("panic", recovered).
		Str("http.path", c.Request.URL.Path).
		Msg("Recovered from panic")

	web.ErrInternalServerError(c, ErrInternal)
	c.Abort()
}

func (h *handler) setupAPIRoutes() {
	v1 := h.Group("/api/v1")

	if h.deps.Escrow != nil {
		h.setupPurchaseRoutes(v1)
	}

	if h.deps.History != nil {
		h.setupHistoryRoutes(v1)
	}

	if h.deps.Sale != nil {
		h.setupSaleRoutes(v1)
	}

	if h.deps.Staking != nil {
		h.setupStakingRoutes(v1)
	}

	if h.deps.Governance != nil {
		h.setupGovernanceRoutes(v1)
	}
}

func (h *handler) setupObservabilityRoutes() {
	h.GET("/health", h.getHealthCheck)

	if h.deps.Metrics != nil {
		h.GET("/metrics", gin.WrapH(h.deps.Metrics.GetHandler()))

		// summary endpoint for debugging
		h.GET("/api/v1/metrics", h.getMetricsSummary)
	}
}

func (h *handler) getHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) getMetricsSummary(c *gin.Context) {
	summary := h.deps.Metrics.GetMetricsSummary()
	c.JSON(http.StatusOK, summary)
}

// bindJSON decodes the request body and responds with 400 on failure.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		web.ErrBadRequest(c, errors.Wrap(err, "invalid request"))
		return false
	}

	return true
}
