// Пакет service — ядро политики Gaia Hub: проверка токена и scope'ов,
// per-endpoint взаимное исключение, archival-переименования, запись
// через драйвер и постановка backup/file-log задач в очередь.
package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	apierrors "github.com/bigkaa/gaiahub/internal/api/errors"
	"github.com/bigkaa/gaiahub/internal/archive"
	"github.com/bigkaa/gaiahub/internal/auth"
	"github.com/bigkaa/gaiahub/internal/cache"
	"github.com/bigkaa/gaiahub/internal/config"
	"github.com/bigkaa/gaiahub/internal/domain/model"
	"github.com/bigkaa/gaiahub/internal/driver"
	"github.com/bigkaa/gaiahub/internal/lock"
)

// maxContentTypeLen — предел длины заголовка Content-Type.
const maxContentTypeLen = 1024

// defaultContentType — тип по умолчанию для PUT без Content-Type.
const defaultContentType = "application/octet-stream"

// Hub — сервис запросного конвейера hub.
type Hub struct {
	cfg            *config.Config
	drv            driver.Driver
	authTimestamps *cache.AuthTimestampCache
	blacklist      *cache.BlacklistCache
	locks          *lock.EndpointSet
	logger         *slog.Logger

	// challenges — допустимые значения gaiaChallenge
	challenges []string
	// validHubURLs — конфигурация плюс https://<serverName>
	validHubURLs []string
}

// NewHub создаёт сервис ядра hub.
func NewHub(
	cfg *config.Config,
	drv driver.Driver,
	authTimestamps *cache.AuthTimestampCache,
	blacklist *cache.BlacklistCache,
	logger *slog.Logger,
) *Hub {
	return &Hub{
		cfg:            cfg,
		drv:            drv,
		authTimestamps: authTimestamps,
		blacklist:      blacklist,
		locks:          lock.New(),
		logger:         logger.With(slog.String("component", "hub")),
		challenges:     []string{cfg.ChallengeText()},
		validHubURLs:   append(slices.Clone(cfg.ValidHubURLs), "https://"+cfg.ServerName),
	}
}

// ReadURLPrefix — публичный префикс чтения: конфигурация или драйвер.
func (h *Hub) ReadURLPrefix() string {
	if h.cfg.ReadURL != "" {
		return h.cfg.ReadURL
	}
	return h.drv.GetReadURLPrefix()
}

// rewritePublicURL подменяет префикс драйвера на сконфигурированный
// readURL, когда они различаются и URL начинается с префикса драйвера.
func (h *Hub) rewritePublicURL(u string) string {
	drvPrefix := h.drv.GetReadURLPrefix()
	if h.cfg.ReadURL != "" && h.cfg.ReadURL != drvPrefix && strings.HasPrefix(u, drvPrefix) {
		return h.cfg.ReadURL + strings.TrimPrefix(u, drvPrefix)
	}
	return u
}

// authorize — общая цепочка аутентификации мутаций и листингов:
// параллельное чтение floor'а отзыва и blacklist-статуса, проверка
// токена, опциональная проверка blacklist association issuer, whitelist.
func (h *Hub) authorize(ctx context.Context, authHeader, bucketAddress string, performType model.PerformType) (*auth.Access, error) {
	token, err := auth.ParseAuthHeader(authHeader)
	if err != nil {
		return nil, err
	}

	var (
		floor      int64
		floorErr   error
		blocked    bool
		blockedErr error
		wg         sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		floor, floorErr = h.authTimestamps.GetAuthTimestamp(ctx, bucketAddress)
	}()
	go func() {
		defer wg.Done()
		blocked, blockedErr = h.blacklist.IsBlacklisted(ctx, bucketAddress, performType)
	}()
	wg.Wait()

	if floorErr != nil {
		return nil, floorErr
	}
	if blockedErr != nil {
		return nil, blockedErr
	}
	if blocked {
		return nil, apierrors.Validation("address %s is not allowed to use this hub", bucketAddress)
	}

	access, err := auth.Verify(token, bucketAddress, h.challenges, auth.VerifyOptions{
		RequireCorrectHubURL:      h.cfg.RequireCorrectHubURL,
		ValidHubURLs:              h.validHubURLs,
		OldestValidTokenTimestamp: floor,
	})
	if err != nil {
		return nil, err
	}

	// Политика проверки blacklist для association issuer, по умолчанию off.
	if h.cfg.CheckAssociationBlacklist && access.AssociationIssuer != "" {
		assoBlocked, err := h.blacklist.IsBlacklisted(ctx, access.AssociationIssuer, performType)
		if err != nil {
			return nil, err
		}
		if assoBlocked {
			return nil, apierrors.Validation("association issuer %s is not allowed to use this hub", access.AssociationIssuer)
		}
	}

	if err := h.checkWhitelist(access); err != nil {
		return nil, err
	}
	return access, nil
}

// checkWhitelist отклоняет effective signer вне whitelist (если задан).
func (h *Hub) checkWhitelist(access *auth.Access) error {
	if len(h.cfg.Whitelist) == 0 {
		return nil
	}
	if !slices.Contains(h.cfg.Whitelist, access.EffectiveSigner()) {
		return apierrors.Validation("address %s is not authorized to use this hub", access.EffectiveSigner())
	}
	return nil
}

// taskCollector накапливает backup-пути и file-log записи запроса
// для однократной постановки в очередь. Безопасен для конкурентных
// листьев batch-движка.
type taskCollector struct {
	mu   sync.Mutex
	task model.Task
}

func (t *taskCollector) addBackupPath(p string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.task.BackupPaths = append(t.task.BackupPaths, p)
}

func (t *taskCollector) addLog(rec model.FileLogRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.task.FileLogs = append(t.task.FileLogs, rec)
}

func (t *taskCollector) empty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.task.BackupPaths) == 0 && len(t.task.FileLogs) == 0
}

func (t *taskCollector) take() *model.Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	taken := t.task
	t.task = model.Task{}
	return &taken
}

// archiveExisting переименовывает текущий объект пути в историческое
// имя. swallowMissing глотает doesNotExist (первая запись); остальные
// ошибки всплывают. Возвращает историческое имя при успехе.
func (h *Hub) archiveExisting(ctx context.Context, bucketAddress, path, ifMatch, signer string, swallowMissing bool, tasks *taskCollector) (string, error) {
	histName := archive.HistoricalName(path)

	res, err := h.drv.PerformRename(ctx, driver.RenameParams{
		StorageTopLevel: bucketAddress,
		Path:            path,
		NewPath:         histName,
		IfMatchTag:      ifMatch,
		AssoIssAddress:  signer,
	})
	if err != nil {
		if swallowMissing && apierrors.IsKind(err, apierrors.KindDoesNotExist) {
			return "", nil
		}
		return "", err
	}

	now := time.Now().UTC()
	oldKey := bucketAddress + "/" + path
	newKey := bucketAddress + "/" + histName
	tasks.addLog(model.FileLogRecord{
		Path:           oldKey,
		AssoIssAddress: signer,
		Action:         model.ActionDelete,
		Size:           res.Size,
		SizeChange:     -res.Size,
		CreateDT:       now,
	})
	tasks.addLog(model.FileLogRecord{
		Path:           newKey,
		AssoIssAddress: signer,
		Action:         model.ActionCreate,
		Size:           res.Size,
		SizeChange:     res.Size,
		CreateDT:       now,
	})
	tasks.addBackupPath(newKey)
	return histName, nil
}
