package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"MarketFlow/internal/domain/models"
	domrepo "MarketFlow/internal/domain/repository"
	icache "MarketFlow/internal/service/cache"
	"MarketFlow/internal/service/metrics"
	"MarketFlow/internal/service/ratelimit"
	"MarketFlow/internal/usecase"
	xhttp "MarketFlow/pkg/http"
	xlogger "MarketFlow/pkg/logger"
)

// CycleTrigger runs an evaluation on demand.
type CycleTrigger interface {
	Run(ctx context.Context, refreshBaseline bool) (*models.CycleReport, error)
}

// HealthCheck is one named dependency probe for /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// MarketFlowHandler serves position, reports, history and manual cycles.
type MarketFlowHandler struct {
	logger   *xlogger.Logger
	state    domrepo.StateStore
	history  *usecase.HistoryUseCase
	trigger  CycleTrigger
	cache    icache.BytesCache
	cacheTTL time.Duration
	rl       *ratelimit.Limiter
	checks   []HealthCheck
}

func NewMarketFlowHandler(
	logger *xlogger.Logger,
	state domrepo.StateStore,
	history *usecase.HistoryUseCase,
	trigger CycleTrigger,
	rl *ratelimit.Limiter,
	checks ...HealthCheck,
) *MarketFlowHandler {
	metrics.Register()
	return &MarketFlowHandler{
		logger:   logger,
		state:    state,
		history:  history,
		trigger:  trigger,
		cacheTTL: 5 * time.Minute,
		rl:       rl,
		checks:   checks,
	}
}

// SetCache enables response caching for history endpoints.
func (h *MarketFlowHandler) SetCache(c icache.BytesCache, ttl time.Duration) {
	h.cache = c
	if ttl > 0 {
		h.cacheTTL = ttl
	}
}

func (h *MarketFlowHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api/v1")
	g.GET("/position", h.Position)
	g.GET("/reports/latest", h.LatestReport)
	g.GET("/transitions", h.Transitions)
	g.GET("/history", h.History)
	g.GET("/history/ratios", h.Ratios)
	g.POST("/cycles", h.TriggerCycle)
}

func observe(endpoint string) func() {
	start := time.Now()
	return func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }
}

func (h *MarketFlowHandler) fail(c echo.Context, endpoint string, err error) error {
	metrics.APIErrors.WithLabelValues(endpoint).Inc()
	if errors.Is(err, domrepo.ErrNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no data yet").WithError(err))
	}
	h.logger.Error(endpoint+" handler error", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}

func (h *MarketFlowHandler) Position(c echo.Context) error {
	defer observe("position")()
	st, err := h.state.LoadPosition(c.Request().Context())
	if err != nil {
		return h.fail(c, "position", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *MarketFlowHandler) LatestReport(c echo.Context) error {
	defer observe("reports_latest")()
	r, err := h.state.LatestReport(c.Request().Context())
	if err != nil {
		return h.fail(c, "reports_latest", err)
	}
	return xhttp.SuccessResponse(c, r)
}

func (h *MarketFlowHandler) Transitions(c echo.Context) error {
	defer observe("transitions")()
	req := &models.TransitionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.history.Transitions(c.Request().Context(), req.Limit)
	if err != nil {
		return h.fail(c, "transitions", err)
	}
	if rows == nil {
		rows = []models.TransitionRecord{}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *MarketFlowHandler) History(c echo.Context) error {
	defer observe("history")()
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := fmt.Sprintf("history:%s:%d", req.Symbol, req.Limit)
	return h.cached(c, "history", key, func(ctx context.Context) (interface{}, error) {
		return h.history.Series(ctx, req.Symbol, req.Limit)
	})
}

func (h *MarketFlowHandler) Ratios(c echo.Context) error {
	defer observe("ratios")()
	req := &models.RatioHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := fmt.Sprintf("ratios:%d", req.Limit)
	return h.cached(c, "ratios", key, func(ctx context.Context) (interface{}, error) {
		rows, err := h.history.Ratios(ctx, req.Limit)
		if err == nil && len(rows) == 0 {
			err = domrepo.ErrNotFound
		}
		return rows, err
	})
}

// cached serves the encoded envelope from the byte cache when present.
func (h *MarketFlowHandler) cached(c echo.Context, endpoint, key string, load func(context.Context) (interface{}, error)) error {
	ctx := c.Request().Context()
	if h.cache != nil {
		b, ok, err := h.cache.GetBytes(ctx, key)
		switch {
		case err != nil:
			h.logger.Warn(endpoint+" cache_get_error", xlogger.Error(err))
		case ok:
			metrics.CacheResults.WithLabelValues(endpoint, "hit").Inc()
			return c.JSONBlob(http.StatusOK, b)
		default:
			metrics.CacheResults.WithLabelValues(endpoint, "miss").Inc()
		}
	}

	data, err := load(ctx)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	b, err := json.Marshal(xhttp.APIResponse{Status: http.StatusOK, Message: http.StatusText(http.StatusOK), Data: data})
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	if h.cache != nil {
		if err := h.cache.SetBytes(ctx, key, b, h.cacheTTL); err != nil {
			h.logger.Warn(endpoint+" cache_set_error", xlogger.Error(err))
		}
	}
	return c.JSONBlob(http.StatusOK, b)
}

func (h *MarketFlowHandler) TriggerCycle(c echo.Context) error {
	defer observe("cycles")()
	req := &models.TriggerCycleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.rl != nil && !h.rl.Allow(c.RealIP()) {
		metrics.CycleTriggers.WithLabelValues("rate_limited").Inc()
		h.logger.Warn("cycles rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("manual cycles are rate limited"))
	}

	report, err := h.trigger.Run(c.Request().Context(), req.RefreshBaseline)
	var ise *models.InvalidStateTransitionError
	switch {
	case err == nil:
		metrics.CycleTriggers.WithLabelValues("ok").Inc()
		return xhttp.SuccessResponse(c, report)
	case errors.Is(err, usecase.ErrCycleInProgress):
		metrics.CycleTriggers.WithLabelValues("busy").Inc()
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("a cycle is already running"))
	case errors.As(err, &ise):
		metrics.CycleTriggers.WithLabelValues("invalid_state").Inc()
		h.logger.Error("cycles invalid persisted state", xlogger.String("state", string(ise.State)))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("persisted position is invalid").
			WithParam("state", string(ise.State)).WithError(err))
	default:
		metrics.CycleTriggers.WithLabelValues("error").Inc()
		return h.fail(c, "cycles", err)
	}
}

func (h *MarketFlowHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, chk := range h.checks {
		if err := chk.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[chk.Name] = err.Error()
			continue
		}
		results[chk.Name] = "ok"
	}
	return xhttp.DataResponse(c, status, results)
}
