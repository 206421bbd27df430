// Пакет diskdriver — реализация контракта driver.Driver на локальном
// диске. Объекты лежат файлами под data-директорией, метаданные
// (etag, contentType, монотонный generation) — в JSON-сайдкарах,
// revocation/blacklist записи — в JSON-файлах служебного пространства
// имён, очередь задач — append-only JSONL-журнал.
// Используется для разработки и в тестах ядра hub.
package diskdriver

import (
	"context"
	"crypto/md5" //nolint:gosec // etag протокола определён как md5 тела
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	apierrors "github.com/bigkaa/gaiahub/internal/api/errors"
	"github.com/bigkaa/gaiahub/internal/domain/model"
	"github.com/bigkaa/gaiahub/internal/driver"
)

// Config — параметры дискового драйвера.
type Config struct {
	// BaseDir — корневая директория данных
	BaseDir string
	// PageSize — максимальный размер страницы листинга
	PageSize int
	// ReadURLPrefix — базовый URL чтения; пусто — file:// от BaseDir
	ReadURLPrefix string
}

// attrRecord — сайдкар метаданных объекта.
type attrRecord struct {
	ETag         string `json:"etag"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"`
	Generation   int64  `json:"generation"`
}

// authTimestampRecord — запись floor'а отзыва.
type authTimestampRecord struct {
	Timestamp  int64     `json:"timestamp"`
	CreateDate time.Time `json:"createDate"`
	UpdateDate time.Time `json:"updateDate"`
}

// blacklistRecord — запись блокировки адреса.
type blacklistRecord struct {
	Type int `json:"type"`
}

// taskRecord — строка журнала задач.
type taskRecord struct {
	BackupPaths []string              `json:"backupPaths"`
	FileLogs    []model.FileLogRecord `json:"fileLogs"`
	EnqueuedAt  time.Time             `json:"enqueuedAt"`
}

// DiskDriver — дисковая реализация driver.Driver.
// Условные операции сериализуются внутренним мьютексом, что даёт
// линеаризуемый compare-and-set в пределах процесса.
type DiskDriver struct {
	cfg    Config
	logger *slog.Logger

	// mu сериализует stat+write последовательности условных операций
	mu sync.Mutex
}

// Проверка соответствия контракту на этапе компиляции.
var _ driver.Driver = (*DiskDriver)(nil)

// New создаёт дисковый драйвер.
func New(cfg Config, logger *slog.Logger) *DiskDriver {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &DiskDriver{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "disk_driver")),
	}
}

// --- Вспомогательные пути ---

func (d *DiskDriver) objectPath(key string) string {
	return filepath.Join(d.cfg.BaseDir, "objects", filepath.FromSlash(key))
}

func (d *DiskDriver) attrPath(key string) string {
	return filepath.Join(d.cfg.BaseDir, "attrs", filepath.FromSlash(key)+".json")
}

func (d *DiskDriver) metaPath(parts ...string) string {
	return filepath.Join(append([]string{d.cfg.BaseDir, "meta"}, parts...)...)
}

// EnsureInitialized создаёт служебные директории.
func (d *DiskDriver) EnsureInitialized(_ context.Context) error {
	for _, dir := range []string{
		filepath.Join(d.cfg.BaseDir, "objects"),
		filepath.Join(d.cfg.BaseDir, "attrs"),
		d.metaPath("revocation"),
		d.metaPath("blacklist"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("создание директории %s: %w", dir, err)
		}
	}
	return nil
}

// GetReadURLPrefix возвращает базовый URL чтения.
func (d *DiskDriver) GetReadURLPrefix() string {
	if d.cfg.ReadURLPrefix != "" {
		return d.cfg.ReadURLPrefix
	}
	abs, err := filepath.Abs(d.cfg.BaseDir)
	if err != nil {
		abs = d.cfg.BaseDir
	}
	return "file://" + filepath.ToSlash(abs) + "/objects/"
}

// readAttr читает сайдкар ключа; (nil, nil) — объекта нет.
func (d *DiskDriver) readAttr(key string) (*attrRecord, error) {
	data, err := os.ReadFile(d.attrPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.Server("failed to read object metadata")
	}
	rec := &attrRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, apierrors.Server("corrupt object metadata")
	}
	return rec, nil
}

// writeAttr атомарно записывает сайдкар (temp + rename).
func (d *DiskDriver) writeAttr(key string, rec *attrRecord) error {
	p := d.attrPath(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return apierrors.Server("failed to prepare metadata directory")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return apierrors.Server("failed to encode object metadata")
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apierrors.Server("failed to write object metadata")
	}
	if err := os.Rename(tmp, p); err != nil {
		return apierrors.Server("failed to commit object metadata")
	}
	return nil
}

// checkPreconditions — общая проверка If-Match/If-None-Match против
// текущего состояния ключа.
func checkPreconditions(existing *attrRecord, ifMatch, ifNoneMatch string) error {
	if ifMatch != "" && ifMatch != "*" {
		if existing == nil {
			return apierrors.PreconditionFailed("", "the object does not exist")
		}
		if existing.ETag != ifMatch {
			return apierrors.PreconditionFailed(existing.ETag, "the provided etag does not match the resource")
		}
	}
	if ifNoneMatch == "*" && existing != nil {
		return apierrors.PreconditionFailed(existing.ETag, "the resource already exists")
	}
	return nil
}

// PerformStat возвращает метаданные объекта.
func (d *DiskDriver) PerformStat(_ context.Context, p driver.StatParams) (*model.ObjectMetadata, error) {
	key := p.StorageTopLevel + "/" + p.Path
	rec, err := d.readAttr(key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &model.ObjectMetadata{Exists: false}, nil
	}
	return &model.ObjectMetadata{
		Exists:           true,
		ETag:             rec.ETag,
		ContentType:      rec.ContentType,
		ContentLength:    rec.Size,
		LastModifiedDate: rec.LastModified,
		Generation:       rec.Generation,
	}, nil
}

// PerformWrite выполняет условную запись: stat, проверка прекондиций,
// потоковая запись во временный файл с подсчётом MD5, атомарный commit,
// инкремент generation.
func (d *DiskDriver) PerformWrite(ctx context.Context, p driver.WriteParams) (*driver.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, apierrors.Server("request cancelled")
	}
	key := p.StorageTopLevel + "/" + p.Path

	d.mu.Lock()
	defer d.mu.Unlock()

	existing, err := d.readAttr(key)
	if err != nil {
		return nil, err
	}
	if err := checkPreconditions(existing, p.IfMatchTag, p.IfNoneMatchTag); err != nil {
		return nil, err
	}

	objPath := d.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return nil, apierrors.Server("failed to prepare object directory")
	}

	// Потоковая запись: тело не материализуется целиком.
	tmp := objPath + ".upload"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, apierrors.Server("failed to create object file")
	}
	hasher := md5.New() //nolint:gosec // etag протокола
	size, copyErr := io.Copy(io.MultiWriter(f, hasher), p.Content)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(tmp)
		var he *apierrors.HubError
		if errors.As(copyErr, &he) {
			return nil, he
		}
		return nil, apierrors.Server("failed to stream object body")
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return nil, apierrors.Server("failed to finalize object file")
	}

	if err := os.Rename(tmp, objPath); err != nil {
		_ = os.Remove(tmp)
		return nil, apierrors.Server("failed to commit object file")
	}

	var generation int64 = 1
	var oldSize int64
	if existing != nil {
		generation = existing.Generation + 1
		oldSize = existing.Size
	}

	rec := &attrRecord{
		ETag:         `"` + hex.EncodeToString(hasher.Sum(nil)) + `"`,
		ContentType:  p.ContentType,
		Size:         size,
		LastModified: time.Now().Unix(),
		Generation:   generation,
	}
	if err := d.writeAttr(key, rec); err != nil {
		return nil, err
	}

	return &driver.WriteResult{
		PublicURL:  d.GetReadURLPrefix() + key,
		ETag:       rec.ETag,
		Size:       size,
		SizeChange: size - oldSize,
		Created:    existing == nil,
	}, nil
}

// PerformDelete выполняет условное удаление.
func (d *DiskDriver) PerformDelete(_ context.Context, p driver.DeleteParams) (*driver.DeleteResult, error) {
	key := p.StorageTopLevel + "/" + p.Path

	d.mu.Lock()
	defer d.mu.Unlock()

	existing, err := d.readAttr(key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apierrors.DoesNotExist("the object does not exist")
	}
	if err := checkPreconditions(existing, p.IfMatchTag, ""); err != nil {
		return nil, err
	}

	if err := os.Remove(d.objectPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, apierrors.Server("failed to delete object")
	}
	if err := os.Remove(d.attrPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, apierrors.Server("failed to delete object metadata")
	}

	return &driver.DeleteResult{Size: existing.Size}, nil
}

// PerformRename выполняет условное перемещение Path → NewPath.
// Generation нового ключа продолжает его собственную историю.
func (d *DiskDriver) PerformRename(_ context.Context, p driver.RenameParams) (*driver.RenameResult, error) {
	oldKey := p.StorageTopLevel + "/" + p.Path
	newKey := p.StorageTopLevel + "/" + p.NewPath

	d.mu.Lock()
	defer d.mu.Unlock()

	existing, err := d.readAttr(oldKey)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apierrors.DoesNotExist("the object does not exist")
	}
	if err := checkPreconditions(existing, p.IfMatchTag, ""); err != nil {
		return nil, err
	}

	destAttr, err := d.readAttr(newKey)
	if err != nil {
		return nil, err
	}
	var destGeneration int64 = 1
	if destAttr != nil {
		destGeneration = destAttr.Generation + 1
	}

	newObjPath := d.objectPath(newKey)
	if err := os.MkdirAll(filepath.Dir(newObjPath), 0o755); err != nil {
		return nil, apierrors.Server("failed to prepare object directory")
	}
	if err := os.Rename(d.objectPath(oldKey), newObjPath); err != nil {
		return nil, apierrors.Server("failed to move object")
	}

	moved := *existing
	moved.Generation = destGeneration
	moved.LastModified = time.Now().Unix()
	if err := d.writeAttr(newKey, &moved); err != nil {
		return nil, err
	}
	if err := os.Remove(d.attrPath(oldKey)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, apierrors.Server("failed to delete old object metadata")
	}

	return &driver.RenameResult{Size: existing.Size}, nil
}

// listKeys возвращает отсортированные ключи с данным префиксом.
func (d *DiskDriver) listKeys(prefix string) ([]string, error) {
	root := filepath.Join(d.cfg.BaseDir, "attrs")
	var keys []string
	err := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), ".json")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, apierrors.Server("failed to list objects")
	}
	sort.Strings(keys)
	return keys, nil
}

// clampPageSize ограничивает размер страницы диапазоном [1, максимум].
func (d *DiskDriver) clampPageSize(requested int) int {
	if requested <= 0 || requested > d.cfg.PageSize {
		return d.cfg.PageSize
	}
	return requested
}

// page вырезает страницу и возвращает continuation-токен.
func page(keys []string, pageToken string, pageSize int) ([]string, *string, error) {
	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return nil, nil, apierrors.InvalidInput("invalid page token")
		}
		offset = n
	}
	if offset >= len(keys) {
		return nil, nil, nil
	}
	end := min(offset+pageSize, len(keys))
	var next *string
	if end < len(keys) {
		token := strconv.Itoa(end)
		next = &token
	}
	return keys[offset:end], next, nil
}

// ListFiles возвращает страницу имён без префикса PathPrefix.
func (d *DiskDriver) ListFiles(_ context.Context, p driver.ListParams) (*model.ListPage, error) {
	keys, err := d.listKeys(p.PathPrefix)
	if err != nil {
		return nil, err
	}
	pageKeys, next, err := page(keys, p.Page, d.clampPageSize(p.PageSize))
	if err != nil {
		return nil, err
	}

	entries := make([]*string, 0, len(pageKeys))
	for _, k := range pageKeys {
		name := strings.TrimPrefix(k, p.PathPrefix)
		entries = append(entries, &name)
	}
	return &model.ListPage{Entries: entries, Page: next}, nil
}

// ListFilesStat возвращает страницу имён с метаданными.
func (d *DiskDriver) ListFilesStat(_ context.Context, p driver.ListParams) (*model.ListStatPage, error) {
	keys, err := d.listKeys(p.PathPrefix)
	if err != nil {
		return nil, err
	}
	pageKeys, next, err := page(keys, p.Page, d.clampPageSize(p.PageSize))
	if err != nil {
		return nil, err
	}

	entries := make([]*model.FileStat, 0, len(pageKeys))
	for _, k := range pageKeys {
		rec, err := d.readAttr(k)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		entries = append(entries, &model.FileStat{
			Name: strings.TrimPrefix(k, p.PathPrefix),
			ObjectMetadata: model.ObjectMetadata{
				Exists:           true,
				ETag:             rec.ETag,
				ContentType:      rec.ContentType,
				ContentLength:    rec.Size,
				LastModifiedDate: rec.LastModified,
				Generation:       rec.Generation,
			},
		})
	}
	return &model.ListStatPage{Entries: entries, Page: next}, nil
}

// ReadAuthTimestamp читает floor отзыва адреса (0 — записи нет).
func (d *DiskDriver) ReadAuthTimestamp(_ context.Context, bucketAddress string) (int64, error) {
	data, err := os.ReadFile(d.metaPath("revocation", bucketAddress+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, apierrors.Server("failed to read revocation record")
	}
	rec := &authTimestampRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return 0, apierrors.Server("corrupt revocation record")
	}
	return rec.Timestamp, nil
}

// WriteAuthTimestamp — монотонный upsert floor'а: запись только если
// новое значение больше существующего, createDate сохраняется.
func (d *DiskDriver) WriteAuthTimestamp(_ context.Context, bucketAddress string, timestamp int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.metaPath("revocation", bucketAddress+".json")
	now := time.Now().UTC()
	rec := &authTimestampRecord{Timestamp: timestamp, CreateDate: now, UpdateDate: now}

	if data, err := os.ReadFile(p); err == nil {
		existing := &authTimestampRecord{}
		if err := json.Unmarshal(data, existing); err == nil {
			if timestamp <= existing.Timestamp {
				return nil
			}
			rec.CreateDate = existing.CreateDate
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return apierrors.Server("failed to encode revocation record")
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apierrors.Server("failed to write revocation record")
	}
	if err := os.Rename(tmp, p); err != nil {
		return apierrors.Server("failed to commit revocation record")
	}
	return nil
}

// ReadBlacklistType читает тип блокировки адреса (0 — записи нет).
func (d *DiskDriver) ReadBlacklistType(_ context.Context, address string) (int, error) {
	data, err := os.ReadFile(d.metaPath("blacklist", address+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return model.BlacklistNone, nil
	}
	if err != nil {
		return 0, apierrors.Server("failed to read blacklist record")
	}
	rec := &blacklistRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return 0, apierrors.Server("corrupt blacklist record")
	}
	return rec.Type, nil
}

// AddTaskToQueue дописывает задачу в JSONL-журнал. Best-effort:
// ошибка логируется, запрос не прерывается.
func (d *DiskDriver) AddTaskToQueue(_ context.Context, task *model.Task) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec := taskRecord{
		BackupPaths: task.BackupPaths,
		FileLogs:    task.FileLogs,
		EnqueuedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		d.logger.Error("Ошибка кодирования задачи очереди", slog.String("error", err.Error()))
		return
	}

	f, err := os.OpenFile(d.metaPath("tasks.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		d.logger.Error("Ошибка открытия журнала задач", slog.String("error", err.Error()))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		d.logger.Error("Ошибка записи в журнал задач", slog.String("error", err.Error()))
	}
}
