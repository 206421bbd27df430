// blacklist.go — TTL+LRU кэш blacklist-статуса адресов.
// Записи управляются извне, hub их только читает.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gaiahub/internal/domain/model"
	"github.com/bigkaa/gaiahub/internal/driver"
)

var (
	blacklistHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_blacklist_cache_hits_total",
		Help: "Общее количество попаданий в кэш blacklist.",
	})
	blacklistMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_blacklist_cache_misses_total",
		Help: "Общее количество промахов кэша blacklist.",
	})
)

// blacklistTTL — время жизни записи кэша blacklist.
const blacklistTTL = 15 * time.Minute

// BlacklistCache — кэш типов блокировки адресов.
type BlacklistCache struct {
	cache  *expirable.LRU[string, int]
	drv    driver.Driver
	logger *slog.Logger
}

// NewBlacklistCache создаёт кэш ёмкостью size записей.
func NewBlacklistCache(drv driver.Driver, size int, logger *slog.Logger) *BlacklistCache {
	return &BlacklistCache{
		cache:  expirable.NewLRU[string, int](size, nil, blacklistTTL),
		drv:    drv,
		logger: logger.With(slog.String("component", "blacklist_cache")),
	}
}

// typ возвращает тип блокировки адреса, read-through к драйверу.
func (c *BlacklistCache) typ(ctx context.Context, addr string) (int, error) {
	if v, ok := c.cache.Get(addr); ok {
		blacklistHitsTotal.Inc()
		return v, nil
	}
	blacklistMissesTotal.Inc()

	t, err := c.drv.ReadBlacklistType(ctx, addr)
	if err != nil {
		return 0, err
	}
	c.cache.Add(addr, t)
	return t, nil
}

// IsBlacklisted сообщает, запрещена ли операция performType для адреса:
// тип 1 блокирует всё, тип 2 — только PUT.
func (c *BlacklistCache) IsBlacklisted(ctx context.Context, addr string, performType model.PerformType) (bool, error) {
	t, err := c.typ(ctx, addr)
	if err != nil {
		return false, err
	}
	switch t {
	case model.BlacklistNone:
		return false, nil
	case model.BlacklistFull:
		return true, nil
	case model.BlacklistWriteOnly:
		return performType == model.PerformPut, nil
	default:
		return false, nil
	}
}
