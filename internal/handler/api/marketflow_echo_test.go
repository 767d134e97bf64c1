package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketFlow/internal/domain/models"
	"MarketFlow/internal/repository"
	icache "MarketFlow/internal/service/cache"
	"MarketFlow/internal/service/ratelimit"
	"MarketFlow/internal/usecase"
	pkgcache "MarketFlow/pkg/cache"
	xlogger "MarketFlow/pkg/logger"
)

type stubTrigger struct {
	report  *models.CycleReport
	err     error
	refresh bool
	calls   int
}

func (s *stubTrigger) Run(_ context.Context, refresh bool) (*models.CycleReport, error) {
	s.calls++
	s.refresh = refresh
	return s.report, s.err
}

type fixture struct {
	e       *echo.Echo
	state   *repository.CacheStateStore
	prices  *repository.CachePriceStore
	trigger *stubTrigger
}

func newFixture(t *testing.T, checks ...HealthCheck) *fixture {
	t.Helper()
	mc := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = mc.Close() })

	state := repository.NewCacheStateStore(mc, "QQQ-SPY", time.Hour, 100)
	prices := repository.NewCachePriceStore(mc, "QQQ-SPY", 520)
	trig := &stubTrigger{report: &models.CycleReport{ID: "r1", Current: models.Cash}}

	h := NewMarketFlowHandler(xlogger.Nop(), state, usecase.NewHistoryUseCase(prices, state), trig, ratelimit.New(1, 1), checks...)
	h.SetCache(icache.NewTTLMap(), time.Minute)

	e := echo.New()
	h.RegisterRoutes(e)
	return &fixture{e: e, state: state, prices: prices, trigger: trig}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) int {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if dest != nil {
		require.NoError(t, json.Unmarshal(env.Data, dest))
	}
	return env.Status
}

func TestPosition_DefaultsToCash(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/position", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st models.PositionState
	decode(t, rec, &st)
	assert.Equal(t, models.Cash, st.Position)
}

func TestLatestReport_NotFoundThenFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/reports/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, f.state.SaveReport(context.Background(), &models.CycleReport{ID: "abc", Current: models.Growth}))
	rec = f.do(http.MethodGet, "/api/v1/reports/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var r models.CycleReport
	decode(t, rec, &r)
	assert.Equal(t, "abc", r.ID)
}

func TestTransitions_ListsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.state.Append(ctx,
		models.TransitionRecord{ID: "1", From: models.Cash, To: models.Growth},
		models.TransitionRecord{ID: "2", From: models.Growth, To: models.Cash},
	))

	rec := f.do(http.MethodGet, "/api/v1/transitions?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.TransitionRecord `json:"rows"`
		Total int64                     `json:"total"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Rows, 1)
	assert.Equal(t, "2", list.Rows[0].ID)

	rec = f.do(http.MethodGet, "/api/v1/transitions?limit=9999", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory_ValidatesAndCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.do(http.MethodGet, "/api/v1/history", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(http.MethodGet, "/api/v1/history?symbol=qqq", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(http.MethodGet, "/api/v1/history?symbol=QQQ", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	week := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.prices.StoreSeries(ctx, models.PriceSeries{Symbol: "QQQ", Points: []models.PricePoint{
		{Timestamp: week, Value: 500}, {Timestamp: week.AddDate(0, 0, 7), Value: 510},
	}}))

	rec = f.do(http.MethodGet, "/api/v1/history?symbol=QQQ&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var s models.PriceSeries
	decode(t, rec, &s)
	assert.Equal(t, []float64{500, 510}, s.Values())

	// A later write is not visible until the cached response expires.
	require.NoError(t, f.prices.StoreSeries(ctx, models.PriceSeries{Symbol: "QQQ", Points: []models.PricePoint{
		{Timestamp: week.AddDate(0, 0, 14), Value: 520},
	}}))
	rec = f.do(http.MethodGet, "/api/v1/history?symbol=QQQ&limit=5", "")
	decode(t, rec, &s)
	assert.Len(t, s.Points, 2)
}

func TestTriggerCycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/cycles", `{"refresh_baseline":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.trigger.refresh)
	var r models.CycleReport
	decode(t, rec, &r)
	assert.Equal(t, "r1", r.ID)

	rec = f.do(http.MethodPost, "/api/v1/cycles", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, f.trigger.calls)
}

func TestTriggerCycle_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"busy", usecase.ErrCycleInProgress, http.StatusConflict},
		{"corrupt", &models.InvalidStateTransitionError{State: "margin"}, http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.trigger.err = tt.err
			f.trigger.report = nil
			rec := f.do(http.MethodPost, "/api/v1/cycles", "")
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestTriggerCycle_CorruptStateReportsValue(t *testing.T) {
	f := newFixture(t)
	f.trigger.err = &models.InvalidStateTransitionError{State: "margin"}
	rec := f.do(http.MethodPost, "/api/v1/cycles", "")
	assert.Contains(t, rec.Body.String(), `"state":"margin"`)
}

func TestHealth(t *testing.T) {
	f := newFixture(t,
		HealthCheck{Name: "cache", Check: func(context.Context) error { return nil }},
	)
	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	f = newFixture(t,
		HealthCheck{Name: "cache", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "clickhouse", Check: func(context.Context) error { return errors.New("dial tcp: refused") }},
	)
	rec = f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var results map[string]string
	decode(t, rec, &results)
	assert.Equal(t, "ok", results["cache"])
	assert.Contains(t, results["clickhouse"], "refused")
}
