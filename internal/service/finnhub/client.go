package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"MarketFlow/internal/domain/models"
	"MarketFlow/pkg/logger"
)

// Config holds stream settings.
type Config struct {
	APIKey         string
	WebSocketURL   string
	Symbols        []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// Client implements repository.MarketStream backed by the Finnhub trades websocket.
type Client struct {
	cfg    Config
	log    *logger.Logger
	dialer *websocket.Dialer

	mu        sync.RWMutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// New creates a new Finnhub stream.
func New(cfg Config, log *logger.Logger) *Client {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		cfg:    cfg,
		log:    log.With(logger.String("component", "finnhub")),
		dialer: websocket.DefaultDialer,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.cfg.WebSocketURL)
	if err != nil {
		return fmt.Errorf("finnhub url: %w", err)
	}
	if c.cfg.APIKey != "" {
		q := u.Query()
		q.Set("token", c.cfg.APIKey)
		u.RawQuery = q.Encode()
	}

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("connected")
	return nil
}

// Subscribe subscribes to configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	for _, s := range c.cfg.Symbols {
		if err := c.write(map[string]string{"type": "subscribe", "symbol": s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.log.Info("subscribed", logger.Strings("symbols", c.cfg.Symbols))
	return nil
}

func (c *Client) write(v interface{}) error {
	conn := c.current()
	if conn == nil {
		return errors.New("finnhub not connected")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (c *Client) ping() error {
	conn := c.current()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

func (c *Client) current() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
	Msg  string    `json:"msg"`
}

// Read streams quotes until ctx ends or the connection fails. The error
// channel carries at most one error, after which both channels close.
func (c *Client) Read(ctx context.Context) (<-chan *models.Quote, <-chan error) {
	quotes := make(chan *models.Quote, 256)
	errs := make(chan error, 1)
	conn := c.current()

	readCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-readCtx.Done():
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					c.log.Warn("ping failed", logger.Error(err))
				}
			}
		}
	}()

	go func() {
		defer cancel()
		defer close(quotes)
		defer close(errs)
		if conn == nil {
			errs <- errors.New("finnhub not connected")
			return
		}
		go func() {
			<-readCtx.Done()
			if ctx.Err() != nil {
				_ = conn.SetReadDeadline(time.Now())
			}
		}()

		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					c.setConnected(false)
					errs <- fmt.Errorf("finnhub read: %w", err)
				}
				return
			}
			var m fhMessage
			if err := json.Unmarshal(b, &m); err != nil {
				continue
			}
			switch m.Type {
			case "trade":
			case "error":
				c.log.Warn("server error frame", logger.String("msg", m.Msg))
				continue
			default:
				continue
			}
			for _, d := range m.Data {
				q := &models.Quote{Symbol: d.S, Price: d.P, Volume: d.V, Timestamp: time.UnixMilli(d.T).UTC()}
				select {
				case quotes <- q:
				case <-ctx.Done():
					return
				default:
					// consumer is behind; newer trades supersede this one
				}
			}
		}
	}()

	return quotes, errs
}

// Reconnect closes, waits the reconnect delay and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	t := time.NewTimer(c.cfg.ReconnectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
