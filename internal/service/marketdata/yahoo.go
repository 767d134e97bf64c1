package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"MarketFlow/internal/domain/models"
	drepo "MarketFlow/internal/domain/repository"
	xhttp "MarketFlow/pkg/http"
	"MarketFlow/pkg/logger"
)

// Config configures the Yahoo chart client.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	Retries          int
	UserAgent        string
	RatePerSecond    float64
	Burst            int
	BreakerRequests  uint32
	BreakerInterval  time.Duration
	BreakerTimeout   time.Duration
	FailureThreshold uint32
}

// Yahoo implements repository.MarketDataProvider on the public chart endpoint.
type Yahoo struct {
	cfg     Config
	http    *xhttp.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *logger.Logger
	now     func() time.Time
}

// NewYahoo builds the client. Requests are paced by a token bucket and
// guarded by a circuit breaker that opens after consecutive failures.
func NewYahoo(cfg Config, log *logger.Logger) *Yahoo {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if log == nil {
		log = logger.Nop()
	}
	y := &Yahoo{
		cfg: cfg,
		http: xhttp.NewClient(
			xhttp.WithTimeout(cfg.Timeout),
			xhttp.WithRetry(cfg.Retries, time.Second),
			xhttp.WithUserAgent(cfg.UserAgent),
		),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		log:     log.With(logger.String("component", "yahoo")),
		now:     time.Now,
	}
	y.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "yahoo",
		MaxRequests: cfg.BreakerRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// a missing symbol or a caller's cancellation says nothing about supplier health
			return err == nil || errors.Is(err, drepo.ErrNotFound) ||
				errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			y.log.Warn("circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	return y
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol string `json:"symbol"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// History returns up to limit closing prices, oldest first. Bars with a null
// close (halted or partial sessions) are skipped.
func (y *Yahoo) History(ctx context.Context, symbol string, interval drepo.Interval, limit int) (models.PriceSeries, error) {
	if limit <= 0 {
		return models.PriceSeries{}, fmt.Errorf("history %s: limit must be positive", symbol)
	}
	if !drepo.IsValidInterval(interval) {
		interval = drepo.IntervalWeekly
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return models.PriceSeries{}, fmt.Errorf("history %s: %w", symbol, err)
	}
	start := time.Now()
	res, err := y.breaker.Execute(func() (interface{}, error) {
		return y.fetch(ctx, symbol, interval, limit)
	})
	y.log.Debug("history fetched",
		logger.String("symbol", symbol),
		logger.String("interval", string(interval)),
		logger.Duration("latency_ms", time.Since(start)),
		logger.Bool("ok", err == nil))
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return models.PriceSeries{}, fmt.Errorf("history %s: supplier unavailable: %w", symbol, err)
		}
		return models.PriceSeries{}, fmt.Errorf("history %s: %w", symbol, err)
	}
	return res.(models.PriceSeries), nil
}

func (y *Yahoo) fetch(ctx context.Context, symbol string, interval drepo.Interval, limit int) (models.PriceSeries, error) {
	now := y.now().UTC()
	// pad the window for holidays and the partial current bar
	from := now.Add(-interval.Period() * time.Duration(limit+limit/4+2))

	var out chartResponse
	err := y.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    strings.TrimRight(y.cfg.BaseURL, "/") + "/v8/finance/chart/" + url.PathEscape(symbol),
		QueryParams: map[string][]string{
			"interval": {string(interval)},
			"period1":  {strconv.FormatInt(from.Unix(), 10)},
			"period2":  {strconv.FormatInt(now.Unix(), 10)},
			"events":   {"history"},
		},
	}, &out)
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return models.PriceSeries{}, fmt.Errorf("%w: %s", drepo.ErrNotFound, symbol)
		}
		return models.PriceSeries{}, err
	}
	if out.Chart.Error != nil {
		if out.Chart.Error.Code == "Not Found" {
			return models.PriceSeries{}, fmt.Errorf("%w: %s", drepo.ErrNotFound, symbol)
		}
		return models.PriceSeries{}, fmt.Errorf("chart error %s: %s", out.Chart.Error.Code, out.Chart.Error.Description)
	}
	if len(out.Chart.Result) == 0 {
		return models.PriceSeries{}, fmt.Errorf("%w: %s", drepo.ErrNotFound, symbol)
	}
	return toSeries(symbol, out.Chart.Result[0], limit)
}

func toSeries(symbol string, r chartResult, limit int) (models.PriceSeries, error) {
	if len(r.Indicators.Quote) == 0 {
		return models.PriceSeries{}, fmt.Errorf("%w: no quotes for %s", models.ErrInsufficientData, symbol)
	}
	closes := r.Indicators.Quote[0].Close
	if len(closes) != len(r.Timestamp) {
		return models.PriceSeries{}, fmt.Errorf("chart %s: %d timestamps but %d closes", symbol, len(r.Timestamp), len(closes))
	}

	points := make([]models.PricePoint, 0, len(closes))
	for i, c := range closes {
		if c == nil || *c <= 0 {
			continue
		}
		points = append(points, models.PricePoint{
			Timestamp: time.Unix(r.Timestamp[i], 0).UTC(),
			Value:     *c,
		})
	}
	series := models.PriceSeries{Symbol: symbol, Points: points}.Dedupe()
	if n := len(series.Points); n > limit {
		series.Points = series.Points[n-limit:]
	}
	if err := series.Validate(); err != nil {
		return models.PriceSeries{}, err
	}
	return series, nil
}
