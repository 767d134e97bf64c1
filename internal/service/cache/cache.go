package cache

import (
	"context"
	"errors"
	"time"

	pkgcache "MarketFlow/pkg/cache"
)

// BytesCache is a minimal cache API storing raw bytes with TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ServiceCache adapts a pkg/cache Service (redis, memory or layered) to BytesCache.
type ServiceCache struct {
	svc    pkgcache.Service
	prefix string
}

func NewServiceCache(svc pkgcache.Service, prefix string) *ServiceCache {
	return &ServiceCache{svc: svc, prefix: prefix}
}

func (s *ServiceCache) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	var b []byte
	err := s.svc.Get(ctx, pkgcache.Key(s.prefix, key), &b)
	if errors.Is(err, pkgcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *ServiceCache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.svc.Set(ctx, pkgcache.Key(s.prefix, key), value, ttl)
}
