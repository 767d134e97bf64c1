package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	drepo "MarketFlow/internal/domain/repository"
)

const chartBody = `{"chart":{"result":[{"meta":{"symbol":"QQQ"},
"timestamp":[1704067200,1704672000,1705276800,1705881600,1706486400,1706486400],
"indicators":{"quote":[{"close":[400.5,405.25,null,410.0,412.75,413.0]}]}}],"error":null}}`

func newTestYahoo(url string) *Yahoo {
	y := NewYahoo(Config{
		BaseURL:          url,
		Timeout:          time.Second,
		RatePerSecond:    1000,
		Burst:            10,
		FailureThreshold: 2,
		BreakerTimeout:   time.Minute,
	}, nil)
	y.now = func() time.Time { return time.Unix(1706000000, 0) }
	return y
}

func TestYahoo_History(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/QQQ", r.URL.Path)
		assert.Equal(t, "1wk", r.URL.Query().Get("interval"))
		assert.Equal(t, "1706000000", r.URL.Query().Get("period2"))
		fmt.Fprint(w, chartBody)
	}))
	defer srv.Close()

	s, err := newTestYahoo(srv.URL).History(context.Background(), "QQQ", drepo.IntervalWeekly, 3)
	require.NoError(t, err)
	assert.Equal(t, "QQQ", s.Symbol)
	// null close skipped, duplicated timestamp dropped, trimmed to the last 3
	assert.Equal(t, []float64{405.25, 410.0, 412.75}, s.Values())
	require.NoError(t, s.Validate())
}

func TestYahoo_EscapesIndexSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/^VIX", r.URL.Path)
		fmt.Fprint(w, chartBody)
	}))
	defer srv.Close()

	_, err := newTestYahoo(srv.URL).History(context.Background(), "^VIX", drepo.IntervalDaily, 10)
	require.NoError(t, err)
}

func TestYahoo_NotFoundDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	}))
	defer srv.Close()

	y := newTestYahoo(srv.URL)
	for i := 0; i < 4; i++ {
		_, err := y.History(context.Background(), "NOPE", drepo.IntervalWeekly, 5)
		require.Error(t, err)
		assert.True(t, errors.Is(err, drepo.ErrNotFound))
	}
	assert.Equal(t, gobreaker.StateClosed, y.breaker.State())
}

func TestYahoo_BreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	y := newTestYahoo(srv.URL)
	for i := 0; i < 2; i++ {
		_, err := y.History(context.Background(), "QQQ", drepo.IntervalWeekly, 5)
		require.Error(t, err)
	}
	_, err := y.History(context.Background(), "QQQ", drepo.IntervalWeekly, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestYahoo_OrdersBarsBeforeDedupe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{"symbol":"QQQ"},
"timestamp":[1704672000,1704067200,1705881600,1705276800,1705276800],
"indicators":{"quote":[{"close":[405.25,400.5,410.0,407.0,408.0]}]}}],"error":null}}`)
	}))
	defer srv.Close()

	s, err := newTestYahoo(srv.URL).History(context.Background(), "QQQ", drepo.IntervalWeekly, 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{400.5, 405.25, 407.0, 410.0}, s.Values())
	require.NoError(t, s.Validate())
}

func TestYahoo_CancelledCallsDoNotTripBreaker(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	y := newTestYahoo(srv.URL)
	for i := 0; i < 4; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := y.History(ctx, "QQQ", drepo.IntervalWeekly, 5)
		cancel()
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, y.breaker.State())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 4; i++ {
		_, err := y.History(cancelled, "QQQ", drepo.IntervalWeekly, 5)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	}
	assert.Equal(t, gobreaker.StateClosed, y.breaker.State())
}
