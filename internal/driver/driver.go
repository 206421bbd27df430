// Пакет driver — контракт хранилища Gaia Hub: blob-store с условными
// записями по generation, key/value-хранилище revocation/blacklist
// записей и постановка задач в фоновую очередь.
//
// Ошибки драйвера транслируются в таксономию hub:
// 404 → DoesNotExist, 412 → PreconditionFailed, остальное → ServerError.
package driver

import (
	"context"
	"io"

	"github.com/bigkaa/gaiahub/internal/domain/model"
)

// ListParams — параметры листинга.
type ListParams struct {
	// PathPrefix — префикс ключей, например "<bucket>/"
	PathPrefix string
	// Page — continuation-токен предыдущей страницы (пусто — сначала)
	Page string
	// PageSize — запрошенный размер страницы; драйвер ограничивает
	// его диапазоном [1, сконфигурированный максимум], 0 — максимум
	PageSize int
}

// StatParams — параметры чтения метаданных объекта.
type StatParams struct {
	StorageTopLevel string
	Path            string
}

// WriteParams — параметры условной записи.
type WriteParams struct {
	StorageTopLevel string
	Path            string
	// Content — поток тела; драйвер не материализует его целиком
	Content io.Reader
	// ContentType записываемого объекта
	ContentType string
	// ContentLength — заявленный размер (-1 — неизвестен)
	ContentLength int64
	// IfMatchTag — требуемый текущий etag ("*" — проверка не выполняется,
	// существование объекта тоже не проверяется)
	IfMatchTag string
	// IfNoneMatchTag — "*" означает «только создание»
	IfNoneMatchTag string
	// AssoIssAddress — effective signer для журналирования
	AssoIssAddress string
}

// WriteResult — результат успешной записи.
type WriteResult struct {
	PublicURL string
	ETag      string
	// Size — размер записанного объекта
	Size int64
	// SizeChange — изменение занятого места (size - старый size)
	SizeChange int64
	// Created — объект создан, а не перезаписан
	Created bool
}

// DeleteParams — параметры условного удаления.
type DeleteParams struct {
	StorageTopLevel string
	Path            string
	IfMatchTag      string
	AssoIssAddress  string
}

// DeleteResult — результат удаления.
type DeleteResult struct {
	// Size — размер удалённого объекта
	Size int64
}

// RenameParams — параметры условного переименования.
type RenameParams struct {
	StorageTopLevel string
	Path            string
	NewPath         string
	IfMatchTag      string
	AssoIssAddress  string
}

// RenameResult — результат переименования.
type RenameResult struct {
	// Size — размер перемещённого объекта
	Size int64
}

// Driver — контракт хранилища, потребляемый ядром hub.
type Driver interface {
	// EnsureInitialized — одноразовая инициализация; ошибка фатальна.
	EnsureInitialized(ctx context.Context) error

	// ListFiles возвращает страницу имён (без префикса PathPrefix).
	ListFiles(ctx context.Context, p ListParams) (*model.ListPage, error)
	// ListFilesStat возвращает страницу имён с метаданными.
	ListFilesStat(ctx context.Context, p ListParams) (*model.ListStatPage, error)

	// PerformStat возвращает метаданные объекта; для отсутствующего
	// ключа — {Exists: false} без ошибки.
	PerformStat(ctx context.Context, p StatParams) (*model.ObjectMetadata, error)

	// PerformWrite — условная запись с привязкой к generation:
	// конкурирующий писатель со старым generation получает
	// PreconditionFailed.
	PerformWrite(ctx context.Context, p WriteParams) (*WriteResult, error)

	// PerformDelete — условное удаление; отсутствующий ключ — DoesNotExist.
	PerformDelete(ctx context.Context, p DeleteParams) (*DeleteResult, error)

	// PerformRename — условное перемещение Path → NewPath.
	PerformRename(ctx context.Context, p RenameParams) (*RenameResult, error)

	// ReadAuthTimestamp читает floor отзыва адреса (0 — записи нет).
	ReadAuthTimestamp(ctx context.Context, bucketAddress string) (int64, error)
	// WriteAuthTimestamp выполняет монотонный upsert floor'а
	// (max-wins внутри транзакции драйвера).
	WriteAuthTimestamp(ctx context.Context, bucketAddress string, timestamp int64) error

	// ReadBlacklistType читает тип блокировки адреса (0 — не заблокирован).
	ReadBlacklistType(ctx context.Context, address string) (int, error)

	// AddTaskToQueue ставит задачу в фоновую очередь. Best-effort:
	// никогда не возвращает ошибку и не прерывает запрос.
	AddTaskToQueue(ctx context.Context, task *model.Task)

	// GetReadURLPrefix — базовый URL, из которого синтезируется publicURL.
	GetReadURLPrefix() string
}
