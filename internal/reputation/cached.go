package reputation

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kiranshivaraju/dashactyl/internal/cache"
	"github.com/kiranshivaraju/dashactyl/internal/metrics"
)

// lookupTimeout bounds a shared upstream lookup once it is detached from the
// request that started it.
const lookupTimeout = 15 * time.Second

// ResultCache is the subset of cache.Cache the decorator needs.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cached wraps a Classifier with a shared verdict cache. Concurrent lookups
// for the same address collapse into one upstream request. Failed lookups
// are never cached.
type Cached struct {
	next   Classifier
	cache  ResultCache
	ttl    time.Duration
	sfg    singleflight.Group
	logger *slog.Logger
}

// NewCached constructs a Cached classifier.
func NewCached(next Classifier, c ResultCache, ttl time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, cache: c, ttl: ttl, logger: logger}
}

func (c *Cached) IsRiskyIP(ctx context.Context, ip string) (bool, error) {
	key := cache.ReputationKey(ip)

	if val, found, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("reputation cache read failed", "ip", ip, "error", err)
	} else if found {
		metrics.ProxyChecksTotal.WithLabelValues("cached").Inc()
		return string(val) == "1", nil
	}

	v, err, _ := c.sfg.Do(ip, func() (interface{}, error) {
		// Callers coalesced onto this lookup must not fail when the first one goes away.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		risky, err := c.next.IsRiskyIP(ctx, ip)
		if err != nil {
			metrics.ProxyChecksTotal.WithLabelValues("error").Inc()
			return false, err
		}
		if risky {
			metrics.ProxyChecksTotal.WithLabelValues("risky").Inc()
		} else {
			metrics.ProxyChecksTotal.WithLabelValues("clean").Inc()
		}

		val := []byte("0")
		if risky {
			val = []byte("1")
		}
		if err := c.cache.Set(ctx, key, val, c.ttl); err != nil {
			c.logger.Warn("reputation cache write failed", "ip", ip, "error", err)
		}
		return risky, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

var _ Classifier = (*Cached)(nil)
