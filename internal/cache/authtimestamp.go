// Пакет cache — TTL+LRU кэши Gaia Hub поверх hashicorp/golang-lru.
// authtimestamp.go — write-through кэш floor'а отзыва per-address
// с монотонной семантикой чтения/записи.
package cache

import (
	"context"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gaiahub/internal/driver"
)

// Prometheus-метрики кэша revocation timestamp.
var (
	authTimestampHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_auth_timestamp_cache_hits_total",
		Help: "Общее количество попаданий в кэш revocation timestamp.",
	})
	authTimestampMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_auth_timestamp_cache_misses_total",
		Help: "Общее количество промахов кэша revocation timestamp.",
	})
)

const (
	// authTimestampTTL — время жизни записи кэша.
	authTimestampTTL = 15 * time.Minute
	// evictionLogInterval — период логирования счётчика вытеснений.
	evictionLogInterval = 10 * time.Minute

	// Параметры retry транзакции записи floor'а в драйвер:
	// до 2 повторов с джиттером 100–350 мс.
	writeRetries    = 2
	backoffBaseMS   = 100
	backoffJitterMS = 250
)

// AuthTimestampCache — LRU-кэш floor'ов отзыва перед драйвером.
//
// Инвариант: закэшированное значение адреса не убывает в течение
// жизни процесса.
type AuthTimestampCache struct {
	cache     *expirable.LRU[string, int64]
	drv       driver.Driver
	logger    *slog.Logger
	evictions atomic.Uint64
}

// NewAuthTimestampCache создаёт кэш ёмкостью size записей.
func NewAuthTimestampCache(drv driver.Driver, size int, logger *slog.Logger) *AuthTimestampCache {
	c := &AuthTimestampCache{
		drv:    drv,
		logger: logger.With(slog.String("component", "auth_timestamp_cache")),
	}
	c.cache = expirable.NewLRU[string, int64](size, func(string, int64) {
		c.evictions.Add(1)
	}, authTimestampTTL)
	return c
}

// StartEvictionLogger запускает периодическое логирование счётчика
// вытеснений (диагностика ёмкости кэша). Останавливается по ctx.
func (c *AuthTimestampCache) StartEvictionLogger(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(evictionLogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.logger.Info("Статистика кэша revocation timestamp",
					slog.Uint64("evictions", c.evictions.Load()),
					slog.Int("entries", c.cache.Len()),
				)
			}
		}
	}()
}

// GetAuthTimestamp возвращает floor отзыва адреса.
// При промахе — read-through к драйверу; после чтения кэш опрашивается
// повторно и возвращается максимум, чтобы пережить гонку с
// конкурентным SetAuthTimestamp.
func (c *AuthTimestampCache) GetAuthTimestamp(ctx context.Context, addr string) (int64, error) {
	if v, ok := c.cache.Get(addr); ok {
		authTimestampHitsTotal.Inc()
		return v, nil
	}
	authTimestampMissesTotal.Inc()

	ts, err := c.drv.ReadAuthTimestamp(ctx, addr)
	if err != nil {
		return 0, err
	}

	// Гонка с конкурентной записью: берём максимум из драйвера и кэша.
	if v, ok := c.cache.Get(addr); ok && v > ts {
		ts = v
	}
	c.cache.Add(addr, ts)
	return ts, nil
}

// SetAuthTimestamp записывает новый floor отзыва адреса.
// Кэш опрашивается до и после записи в драйвер: более свежее
// закэшированное значение не затирается. Сам драйвер обеспечивает
// max-wins внутри транзакции; транзакция повторяется до 2 раз
// с джиттер-бэкоффом.
func (c *AuthTimestampCache) SetAuthTimestamp(ctx context.Context, addr string, ts int64) error {
	if v, ok := c.cache.Get(addr); ok && v > ts {
		// Устаревший bump: драйвер всё равно его отбросил бы.
		return nil
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = c.drv.WriteAuthTimestamp(ctx, addr, ts)
		if err == nil {
			break
		}
		if attempt >= writeRetries {
			return err
		}
		delay := time.Duration(backoffBaseMS+rand.Intn(backoffJitterMS)) * time.Millisecond
		c.logger.Warn("Повтор транзакции записи revocation timestamp",
			slog.String("address", addr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if v, ok := c.cache.Get(addr); ok && v > ts {
		return nil
	}
	c.cache.Add(addr, ts)
	return nil
}
