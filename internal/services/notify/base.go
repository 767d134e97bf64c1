package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	xhttp "MarketFlow/pkg/http"
)

// Options shared by the HTTP notifiers.
type Options struct {
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	return o
}

// httpChannel centralizes client construction and the breaker for one channel.
// The breaker keeps a dead endpoint from stalling every cycle's delivery.
type httpChannel struct {
	name    string
	baseURL string
	client  *xhttp.Client
	breaker *gobreaker.CircuitBreaker
}

func newHTTPChannel(name, baseURL string, o Options) *httpChannel {
	o = o.withDefaults()
	return &httpChannel{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  xhttp.NewClient(xhttp.WithTimeout(o.Timeout), xhttp.WithRetry(o.Retries, o.Backoff)),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: time.Minute,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
	}
}

func (h *httpChannel) do(ctx context.Context, opts *xhttp.RequestOptions, dest interface{}) error {
	_, err := h.breaker.Execute(func() (interface{}, error) {
		return nil, h.client.SendAndParse(ctx, opts, dest)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", h.name, err)
	}
	return nil
}
