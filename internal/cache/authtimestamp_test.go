package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/bigkaa/gaiahub/internal/driver/diskdriver"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuthCache(t *testing.T) (*AuthTimestampCache, *diskdriver.DiskDriver) {
	t.Helper()
	logger := testLogger()
	drv := diskdriver.New(diskdriver.Config{BaseDir: t.TempDir(), PageSize: 10}, logger)
	if err := drv.EnsureInitialized(context.Background()); err != nil {
		t.Fatalf("ошибка инициализации драйвера: %v", err)
	}
	return NewAuthTimestampCache(drv, 100, logger), drv
}

func TestGetAuthTimestamp_Default(t *testing.T) {
	c, _ := newTestAuthCache(t)
	ts, err := c.GetAuthTimestamp(context.Background(), "addr")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if ts != 0 {
		t.Errorf("floor без записи: ожидалось 0, получено %d", ts)
	}
}

func TestSetAuthTimestamp_ReadBack(t *testing.T) {
	c, drv := newTestAuthCache(t)
	ctx := context.Background()

	if err := c.SetAuthTimestamp(ctx, "addr", 1000); err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}

	ts, err := c.GetAuthTimestamp(ctx, "addr")
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if ts != 1000 {
		t.Errorf("floor: ожидалось 1000, получено %d", ts)
	}

	// Значение дошло и до драйвера.
	if drvTS, _ := drv.ReadAuthTimestamp(ctx, "addr"); drvTS != 1000 {
		t.Errorf("floor в драйвере: ожидалось 1000, получено %d", drvTS)
	}
}

func TestSetAuthTimestamp_Monotonic(t *testing.T) {
	// Для любой последовательности set(a, t_i): get(a) >= max(t_i).
	c, _ := newTestAuthCache(t)
	ctx := context.Background()

	values := []int64{500, 100, 900, 300, 700}
	var maxVal int64
	for _, v := range values {
		if err := c.SetAuthTimestamp(ctx, "addr", v); err != nil {
			t.Fatalf("ошибка записи %d: %v", v, err)
		}
		if v > maxVal {
			maxVal = v
		}
	}

	ts, err := c.GetAuthTimestamp(ctx, "addr")
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if ts < maxVal {
		t.Errorf("монотонность нарушена: get=%d < max=%d", ts, maxVal)
	}
}

func TestSetAuthTimestamp_ConcurrentMonotonic(t *testing.T) {
	c, _ := newTestAuthCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			_ = c.SetAuthTimestamp(ctx, "addr", v)
		}(int64(i * 10))
	}
	wg.Wait()

	ts, err := c.GetAuthTimestamp(ctx, "addr")
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if ts < 200 {
		t.Errorf("после конкурентных записей get=%d, ожидалось >= 200", ts)
	}
}

func TestGetAuthTimestamp_PerAddress(t *testing.T) {
	c, _ := newTestAuthCache(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		addr := fmt.Sprintf("addr-%d", i)
		if err := c.SetAuthTimestamp(ctx, addr, int64(100*(i+1))); err != nil {
			t.Fatalf("ошибка записи: %v", err)
		}
	}

	for i := 0; i < 5; i++ {
		addr := fmt.Sprintf("addr-%d", i)
		ts, _ := c.GetAuthTimestamp(ctx, addr)
		if ts != int64(100*(i+1)) {
			t.Errorf("%s: ожидалось %d, получено %d", addr, 100*(i+1), ts)
		}
	}
}
