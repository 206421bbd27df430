// Пакет s3driver — производственная реализация контракта driver.Driver:
// blob-операции на S3-совместимом хранилище (AWS SDK v2), записи
// revocation/blacklist в Redis, очередь задач в Kafka.
//
// Прекондиция generation реализована compare-and-set по ETag:
// PutObject c If-Match наблюдаемого etag (If-None-Match: * для
// создания) и CopyObject c CopySourceIfMatch. Конкурирующий писатель,
// наблюдавший старую версию, получает 412 от S3.
package s3driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	apierrors "github.com/bigkaa/gaiahub/internal/api/errors"
	"github.com/bigkaa/gaiahub/internal/domain/model"
	"github.com/bigkaa/gaiahub/internal/driver"
)

// Config — параметры S3-драйвера.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PageSize — максимальный размер страницы листинга
	PageSize int
	// ReadURLPrefix — базовый URL чтения; пусто — стандартный URL бакета
	ReadURLPrefix string
	// CacheControl — заголовок Cache-Control записываемых объектов
	CacheControl string

	// RedisAddr — адрес Redis для revocation/blacklist записей
	RedisAddr string
	RedisDB   int

	// KafkaBrokers — брокеры очереди задач; пусто — очередь отключена
	KafkaBrokers []string
	KafkaTopic   string
}

// S3Driver — S3+Redis+Kafka реализация driver.Driver.
type S3Driver struct {
	cfg    Config
	logger *slog.Logger

	client *s3.Client
	kv     *kvStore
	queue  *taskQueue
}

// Проверка соответствия контракту на этапе компиляции.
var _ driver.Driver = (*S3Driver)(nil)

// New создаёт S3-драйвер. Клиенты поднимаются в EnsureInitialized.
func New(cfg Config, logger *slog.Logger) *S3Driver {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &S3Driver{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "s3_driver")),
	}
}

// EnsureInitialized поднимает клиентов S3, Redis и Kafka и проверяет
// доступность бакета. Ошибка фатальна для процесса.
func (d *S3Driver) EnsureInitialized(ctx context.Context) error {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(d.cfg.Region),
	}
	if d.cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(d.cfg.AccessKey, d.cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("загрузка AWS-конфигурации: %w", err)
	}

	d.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if d.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(d.cfg.Endpoint)
			// MinIO и совместимые хранилища требуют path-style адресацию
			o.UsePathStyle = true
		}
	})

	if _, err := d.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(d.cfg.Bucket)}); err != nil {
		return fmt.Errorf("проверка доступности бакета %s: %w", d.cfg.Bucket, err)
	}

	d.kv, err = newKVStore(ctx, d.cfg.RedisAddr, d.cfg.RedisDB)
	if err != nil {
		return fmt.Errorf("подключение к Redis: %w", err)
	}

	d.queue = newTaskQueue(d.cfg.KafkaBrokers, d.cfg.KafkaTopic, d.logger)

	d.logger.Info("S3-драйвер инициализирован",
		slog.String("bucket", d.cfg.Bucket),
		slog.String("region", d.cfg.Region),
		slog.Bool("queue_enabled", d.queue.enabled()),
	)
	return nil
}

// GetReadURLPrefix возвращает базовый URL чтения.
func (d *S3Driver) GetReadURLPrefix() string {
	if d.cfg.ReadURLPrefix != "" {
		return d.cfg.ReadURLPrefix
	}
	if d.cfg.Endpoint != "" {
		return strings.TrimRight(d.cfg.Endpoint, "/") + "/" + d.cfg.Bucket + "/"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", d.cfg.Bucket, d.cfg.Region)
}

// --- Трансляция ошибок S3 в таксономию hub ---

func isAPIError(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	return isAPIError(err, "NotFound", "NoSuchKey")
}

func isPreconditionFailed(err error) bool {
	return isAPIError(err, "PreconditionFailed")
}

// hubError извлекает *HubError из цепочки (например, payloadTooLarge
// от метрируемого reader'а, обёрнутую SDK).
func hubError(err error) (*apierrors.HubError, bool) {
	var he *apierrors.HubError
	ok := errors.As(err, &he)
	return he, ok
}

// PerformStat возвращает метаданные объекта.
func (d *S3Driver) PerformStat(ctx context.Context, p driver.StatParams) (*model.ObjectMetadata, error) {
	key := p.StorageTopLevel + "/" + p.Path
	return d.stat(ctx, key)
}

func (d *S3Driver) stat(ctx context.Context, key string) (*model.ObjectMetadata, error) {
	out, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return &model.ObjectMetadata{Exists: false}, nil
		}
		return nil, apierrors.Server("failed to stat object")
	}

	meta := &model.ObjectMetadata{
		Exists:        true,
		ETag:          aws.ToString(out.ETag),
		ContentType:   aws.ToString(out.ContentType),
		ContentLength: aws.ToInt64(out.ContentLength),
	}
	if out.LastModified != nil {
		meta.LastModifiedDate = out.LastModified.Unix()
		// S3 не отдаёт счётчик версий; generation выводится из времени
		// модификации, CAS обеспечивается ETag-прекондициями.
		meta.Generation = out.LastModified.UnixNano()
	}
	return meta, nil
}

// PerformWrite выполняет условную запись: stat, проверка прекондиций,
// PutObject с ETag-CAS, повторный stat для итоговых метаданных.
func (d *S3Driver) PerformWrite(ctx context.Context, p driver.WriteParams) (*driver.WriteResult, error) {
	key := p.StorageTopLevel + "/" + p.Path

	existing, err := d.stat(ctx, key)
	if err != nil {
		return nil, err
	}

	if p.IfMatchTag != "" && p.IfMatchTag != "*" {
		if !existing.Exists {
			return nil, apierrors.PreconditionFailed("", "the object does not exist")
		}
		if existing.ETag != p.IfMatchTag {
			return nil, apierrors.PreconditionFailed(existing.ETag, "the provided etag does not match the resource")
		}
	}
	if p.IfNoneMatchTag == "*" && existing.Exists {
		return nil, apierrors.PreconditionFailed(existing.ETag, "the resource already exists")
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(d.cfg.Bucket),
		Key:         aws.String(key),
		Body:        p.Content,
		ContentType: aws.String(p.ContentType),
	}
	if d.cfg.CacheControl != "" {
		input.CacheControl = aws.String(d.cfg.CacheControl)
	}
	if p.ContentLength >= 0 {
		input.ContentLength = aws.Int64(p.ContentLength)
	}
	// Привязка к наблюдаемой версии: создание — If-None-Match: *,
	// перезапись — If-Match наблюдаемого etag.
	if existing.Exists {
		input.IfMatch = aws.String(existing.ETag)
	} else {
		input.IfNoneMatch = aws.String("*")
	}

	out, err := d.client.PutObject(ctx, input)
	if err != nil {
		if he, ok := hubError(err); ok {
			return nil, he
		}
		if isPreconditionFailed(err) {
			return nil, apierrors.PreconditionFailed(existing.ETag, "the object was modified concurrently")
		}
		return nil, apierrors.Server("failed to write object")
	}

	// Итоговый размер — повторным stat'ом (заявленный может отсутствовать).
	written, err := d.stat(ctx, key)
	if err != nil {
		return nil, err
	}
	var oldSize int64
	if existing.Exists {
		oldSize = existing.ContentLength
	}

	return &driver.WriteResult{
		PublicURL:  d.GetReadURLPrefix() + key,
		ETag:       aws.ToString(out.ETag),
		Size:       written.ContentLength,
		SizeChange: written.ContentLength - oldSize,
		Created:    !existing.Exists,
	}, nil
}

// PerformDelete выполняет условное удаление.
// S3 general-purpose бакеты не поддерживают условный DeleteObject:
// прекондиция проверяется по stat'у, гонки внутри одного процесса закрывает
// per-endpoint mutex hub'а; между процессами удаление не защищено.
func (d *S3Driver) PerformDelete(ctx context.Context, p driver.DeleteParams) (*driver.DeleteResult, error) {
	key := p.StorageTopLevel + "/" + p.Path

	existing, err := d.stat(ctx, key)
	if err != nil {
		return nil, err
	}
	if !existing.Exists {
		return nil, apierrors.DoesNotExist("the object does not exist")
	}
	if p.IfMatchTag != "" && p.IfMatchTag != "*" && existing.ETag != p.IfMatchTag {
		return nil, apierrors.PreconditionFailed(existing.ETag, "the provided etag does not match the resource")
	}

	if _, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, apierrors.Server("failed to delete object")
	}

	return &driver.DeleteResult{Size: existing.ContentLength}, nil
}

// PerformRename выполняет условное перемещение: CopyObject с
// CopySourceIfMatch наблюдаемого etag, затем удаление исходного ключа.
func (d *S3Driver) PerformRename(ctx context.Context, p driver.RenameParams) (*driver.RenameResult, error) {
	oldKey := p.StorageTopLevel + "/" + p.Path
	newKey := p.StorageTopLevel + "/" + p.NewPath

	existing, err := d.stat(ctx, oldKey)
	if err != nil {
		return nil, err
	}
	if !existing.Exists {
		return nil, apierrors.DoesNotExist("the object does not exist")
	}
	if p.IfMatchTag != "" && p.IfMatchTag != "*" && existing.ETag != p.IfMatchTag {
		return nil, apierrors.PreconditionFailed(existing.ETag, "the provided etag does not match the resource")
	}

	if _, err := d.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(d.cfg.Bucket),
		Key:               aws.String(newKey),
		CopySource:        aws.String(url.PathEscape(d.cfg.Bucket + "/" + oldKey)),
		CopySourceIfMatch: aws.String(existing.ETag),
	}); err != nil {
		if isPreconditionFailed(err) {
			return nil, apierrors.PreconditionFailed(existing.ETag, "the object was modified concurrently")
		}
		return nil, apierrors.Server("failed to copy object")
	}

	if _, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(oldKey),
	}); err != nil {
		return nil, apierrors.Server("failed to delete source object after copy")
	}

	return &driver.RenameResult{Size: existing.ContentLength}, nil
}

// clampPageSize ограничивает размер страницы диапазоном [1, максимум].
func (d *S3Driver) clampPageSize(requested int) int32 {
	if requested <= 0 || requested > d.cfg.PageSize {
		return int32(d.cfg.PageSize)
	}
	return int32(requested)
}

// ListFiles возвращает страницу имён без префикса PathPrefix.
// Continuation-токен S3 используется как page-токен напрямую.
func (d *S3Driver) ListFiles(ctx context.Context, p driver.ListParams) (*model.ListPage, error) {
	out, err := d.listObjects(ctx, p)
	if err != nil {
		return nil, err
	}

	entries := make([]*string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		name := strings.TrimPrefix(aws.ToString(obj.Key), p.PathPrefix)
		entries = append(entries, &name)
	}
	return &model.ListPage{Entries: entries, Page: out.NextContinuationToken}, nil
}

// ListFilesStat возвращает страницу имён с метаданными листинга.
func (d *S3Driver) ListFilesStat(ctx context.Context, p driver.ListParams) (*model.ListStatPage, error) {
	out, err := d.listObjects(ctx, p)
	if err != nil {
		return nil, err
	}

	entries := make([]*model.FileStat, 0, len(out.Contents))
	for _, obj := range out.Contents {
		stat := &model.FileStat{
			Name: strings.TrimPrefix(aws.ToString(obj.Key), p.PathPrefix),
			ObjectMetadata: model.ObjectMetadata{
				Exists:        true,
				ETag:          aws.ToString(obj.ETag),
				ContentLength: aws.ToInt64(obj.Size),
			},
		}
		if obj.LastModified != nil {
			stat.LastModifiedDate = obj.LastModified.Unix()
			stat.Generation = obj.LastModified.UnixNano()
		}
		entries = append(entries, stat)
	}
	return &model.ListStatPage{Entries: entries, Page: out.NextContinuationToken}, nil
}

func (d *S3Driver) listObjects(ctx context.Context, p driver.ListParams) (*s3.ListObjectsV2Output, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(d.cfg.Bucket),
		Prefix:  aws.String(p.PathPrefix),
		MaxKeys: aws.Int32(d.clampPageSize(p.PageSize)),
	}
	if p.Page != "" {
		input.ContinuationToken = aws.String(p.Page)
	}

	out, err := d.client.ListObjectsV2(ctx, input)
	if err != nil {
		if isAPIError(err, "InvalidArgument") {
			return nil, apierrors.InvalidInput("invalid page token")
		}
		return nil, apierrors.Server("failed to list objects")
	}
	return out, nil
}

// ReadAuthTimestamp читает floor отзыва адреса из Redis.
func (d *S3Driver) ReadAuthTimestamp(ctx context.Context, bucketAddress string) (int64, error) {
	return d.kv.readAuthTimestamp(ctx, bucketAddress)
}

// WriteAuthTimestamp — монотонный upsert floor'а в Redis-транзакции.
func (d *S3Driver) WriteAuthTimestamp(ctx context.Context, bucketAddress string, timestamp int64) error {
	return d.kv.writeAuthTimestamp(ctx, bucketAddress, timestamp)
}

// ReadBlacklistType читает тип блокировки адреса из Redis.
func (d *S3Driver) ReadBlacklistType(ctx context.Context, address string) (int, error) {
	return d.kv.readBlacklistType(ctx, address)
}

// AddTaskToQueue публикует задачу в Kafka. Best-effort.
func (d *S3Driver) AddTaskToQueue(ctx context.Context, task *model.Task) {
	d.queue.publish(ctx, task)
}
