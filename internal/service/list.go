// list.go — листинг объектов bucket'а (POST /list-files).
// Проверяется только токен; scope-проверка пути не выполняется.
// При archival-ограничении исторические записи скрываются из выдачи.
package service

import (
	"context"

	"github.com/bigkaa/gaiahub/internal/archive"
	"github.com/bigkaa/gaiahub/internal/auth"
	"github.com/bigkaa/gaiahub/internal/domain/model"
	"github.com/bigkaa/gaiahub/internal/driver"
)

// ListRequest — параметры листинга.
type ListRequest struct {
	BucketAddress string
	AuthHeader    string
	// Page — continuation-токен предыдущей страницы
	Page string
	// PageSize — запрошенный размер страницы (0 — максимум)
	PageSize int
	// Stat — вернуть метаданные вместо одних имён
	Stat bool
}

// ListFiles возвращает страницу листинга: *model.ListPage либо
// *model.ListStatPage в зависимости от Stat.
func (h *Hub) ListFiles(ctx context.Context, req *ListRequest) (any, error) {
	access, err := h.authorize(ctx, req.AuthHeader, req.BucketAddress, model.PerformList)
	if err != nil {
		return nil, err
	}
	scopes, err := auth.ParseScopes(access.Scopes)
	if err != nil {
		return nil, err
	}

	// Хвостовой слэш исключает соседний ключ вида <bucket>-auth.
	params := driver.ListParams{
		PathPrefix: req.BucketAddress + "/",
		Page:       req.Page,
		PageSize:   req.PageSize,
	}

	if req.Stat {
		page, err := h.drv.ListFilesStat(ctx, params)
		if err != nil {
			return nil, err
		}
		if scopes.ArchivalRestricted() {
			page.Entries = filterHistoricalStat(page.Entries, page.Page != nil)
		}
		return page, nil
	}

	page, err := h.drv.ListFiles(ctx, params)
	if err != nil {
		return nil, err
	}
	if scopes.ArchivalRestricted() {
		page.Entries = filterHistorical(page.Entries, page.Page != nil)
	}
	return page, nil
}

// filterHistorical убирает исторические имена из страницы.
// Если фильтр опустошил страницу при непустом continuation-токене,
// вставляется null-sentinel, чтобы клиент мог продолжить пагинацию.
func filterHistorical(entries []*string, hasMore bool) []*string {
	filtered := make([]*string, 0, len(entries))
	for _, e := range entries {
		if e != nil && archive.IsHistorical(*e) {
			continue
		}
		filtered = append(filtered, e)
	}
	if len(filtered) == 0 && len(entries) > 0 && hasMore {
		filtered = append(filtered, nil)
	}
	return filtered
}

// filterHistoricalStat — аналогично filterHistorical для stat-листинга.
func filterHistoricalStat(entries []*model.FileStat, hasMore bool) []*model.FileStat {
	filtered := make([]*model.FileStat, 0, len(entries))
	for _, e := range entries {
		if e != nil && archive.IsHistorical(e.Name) {
			continue
		}
		filtered = append(filtered, e)
	}
	if len(filtered) == 0 && len(entries) > 0 && hasMore {
		filtered = append(filtered, nil)
	}
	return filtered
}
