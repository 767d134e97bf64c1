package cache

import (
	"context"
	"sync"
	"time"

	"MarketFlow/internal/domain/models"
)

type entry struct {
	v   any
	exp time.Time
}

const sweepInterval = time.Minute

// TTLMap is an in-process map whose entries expire on read. Set also drops
// every expired entry at most once per sweepInterval, so keys that are never
// read again do not accumulate.
type TTLMap struct {
	mu        sync.RWMutex
	m         map[string]entry
	now       func() time.Time
	nextSweep time.Time
}

func NewTTLMap() *TTLMap {
	return &TTLMap{m: make(map[string]entry), now: time.Now}
}

// Len reports the number of held entries, expired ones included until swept.
func (c *TTLMap) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func (c *TTLMap) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && c.now().After(e.exp) {
		c.mu.Lock()
		if cur, ok := c.m[key]; ok && cur.exp.Equal(e.exp) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.v, true
}

func (c *TTLMap) Set(key string, v any, ttl time.Duration) {
	now := c.now()
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !now.Before(c.nextSweep) {
		c.sweep(now)
	}
	c.m[key] = entry{v: v, exp: exp}
}

func (c *TTLMap) sweep(now time.Time) {
	for k, e := range c.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.m, k)
		}
	}
	c.nextSweep = now.Add(sweepInterval)
}

// GetBytes implements BytesCache.
func (c *TTLMap) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	if v, ok := c.Get(key); ok {
		if b, ok := v.([]byte); ok {
			return b, true, nil
		}
	}
	return nil, false, nil
}

// SetBytes implements BytesCache.
func (c *TTLMap) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.Set(key, value, ttl)
	return nil
}

// QuoteBook keeps the newest live quote per symbol for a bounded time, so a
// stalled stream stops overriding closing prices once quotes go stale.
type QuoteBook struct {
	ttl time.Duration
	m   *TTLMap
	mu  sync.Mutex
}

func NewQuoteBook(ttl time.Duration) *QuoteBook {
	return &QuoteBook{ttl: ttl, m: NewTTLMap()}
}

// Update stores q unless a newer quote for the symbol is already held.
func (b *QuoteBook) Update(q models.Quote) {
	if q.Symbol == "" || q.Price <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.m.Get(q.Symbol); ok && cur.(models.Quote).Timestamp.After(q.Timestamp) {
		return
	}
	b.m.Set(q.Symbol, q, b.ttl)
}

// Latest returns the newest unexpired quote for symbol.
func (b *QuoteBook) Latest(symbol string) (models.Quote, bool) {
	v, ok := b.m.Get(symbol)
	if !ok {
		return models.Quote{}, false
	}
	return v.(models.Quote), true
}
