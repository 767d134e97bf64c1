package notify

import (
	"context"
	"net/url"

	xhttp "MarketFlow/pkg/http"
)

// Bark pushes to an iOS device through a Bark server:
// GET {url}/{key}/{title}/{body}.
type Bark struct {
	ch  *httpChannel
	key string
}

func NewBark(serverURL, key string, o Options) *Bark {
	return &Bark{ch: newHTTPChannel("bark", serverURL, o), key: key}
}

func (b *Bark) Name() string { return "bark" }

func (b *Bark) Send(ctx context.Context, title, body string) error {
	u := b.ch.baseURL + "/" + url.PathEscape(b.key) + "/" + url.PathEscape(title) + "/" + url.PathEscape(body)
	return b.ch.do(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         u,
		QueryParams: map[string][]string{"group": {"marketflow"}},
	}, nil)
}
