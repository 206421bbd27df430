// Пакет config — загрузка и валидация конфигурации Gaia Hub
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Доступные драйверы хранилища.
const (
	DriverS3   = "s3"
	DriverDisk = "disk"
)

// Config содержит все параметры конфигурации Gaia Hub.
type Config struct {
	// Порт HTTP-сервера (переменная PORT, по умолчанию 8088)
	Port int
	// Имя сервера — входит в challenge text и в список валидных hub URL
	ServerName string
	// Максимальный размер страницы листинга
	PageSize int
	// Значение заголовка Cache-Control для записанных объектов
	CacheControl string
	// Публичный префикс URL чтения; переопределяет префикс драйвера
	ReadURL string
	// Максимальный размер загружаемого файла в мегабайтах
	MaxFileUploadSizeMB int64
	// Ёмкость LRU-кэша revocation timestamp
	AuthTimestampCacheSize int
	// Ёмкость LRU-кэша blacklist
	BlacklistCacheSize int
	// Whitelist адресов; пустой список — запись разрешена всем
	Whitelist []string
	// Дополнительные валидные hub URL (помимо https://<ServerName>)
	ValidHubURLs []string
	// Требовать совпадение hubUrl в токене с валидными URL
	RequireCorrectHubURL bool
	// Проверять blacklist для association issuer (политика, по умолчанию off)
	CheckAssociationBlacklist bool

	// Драйвер хранилища: s3 или disk
	Driver string

	// --- Драйвер s3 ---
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	// Адрес Redis для revocation/blacklist записей
	RedisAddr string
	RedisDB   int
	// Брокеры и топик Kafka для очереди backup/file-log задач
	KafkaBrokers []string
	KafkaTopic   string

	// --- Драйвер disk ---
	DiskDataDir string

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Путь к TLS сертификату (опционально; пусто — plain HTTP)
	TLSCert string
	// Путь к TLS приватному ключу
	TLSKey string
}

// MaxFileUploadSizeBytes возвращает лимит загрузки в байтах.
func (c *Config) MaxFileUploadSizeBytes() int64 {
	return c.MaxFileUploadSizeMB * 1024 * 1024
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// PORT — порт HTTP-сервера (по умолчанию 8088)
	port, err := getEnvInt("PORT", 8088)
	if err != nil {
		return nil, fmt.Errorf("PORT: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("PORT: значение %d вне допустимого диапазона", port)
	}
	cfg.Port = port

	// GAIA_SERVER_NAME — обязательный, входит в challenge text
	cfg.ServerName, err = getEnvRequired("GAIA_SERVER_NAME")
	if err != nil {
		return nil, err
	}

	// GAIA_PAGE_SIZE — максимальный размер страницы листинга (по умолчанию 100)
	cfg.PageSize, err = getEnvInt("GAIA_PAGE_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("GAIA_PAGE_SIZE: %w", err)
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("GAIA_PAGE_SIZE: значение должно быть положительным")
	}

	// GAIA_CACHE_CONTROL — заголовок Cache-Control для записей (опционально)
	cfg.CacheControl = getEnvDefault("GAIA_CACHE_CONTROL", "")

	// GAIA_READ_URL — публичный префикс URL чтения (опционально)
	cfg.ReadURL = getEnvDefault("GAIA_READ_URL", "")

	// GAIA_MAX_FILE_UPLOAD_SIZE_MB — лимит загрузки в мегабайтах (по умолчанию 20)
	cfg.MaxFileUploadSizeMB, err = getEnvInt64("GAIA_MAX_FILE_UPLOAD_SIZE_MB", 20)
	if err != nil {
		return nil, fmt.Errorf("GAIA_MAX_FILE_UPLOAD_SIZE_MB: %w", err)
	}
	if cfg.MaxFileUploadSizeMB <= 0 {
		return nil, fmt.Errorf("GAIA_MAX_FILE_UPLOAD_SIZE_MB: значение должно быть положительным")
	}

	// GAIA_AUTH_TIMESTAMP_CACHE_SIZE — ёмкость кэша revocation (по умолчанию 50000)
	cfg.AuthTimestampCacheSize, err = getEnvInt("GAIA_AUTH_TIMESTAMP_CACHE_SIZE", 50000)
	if err != nil {
		return nil, fmt.Errorf("GAIA_AUTH_TIMESTAMP_CACHE_SIZE: %w", err)
	}

	// GAIA_BLACKLIST_CACHE_SIZE — ёмкость кэша blacklist (по умолчанию 50000)
	cfg.BlacklistCacheSize, err = getEnvInt("GAIA_BLACKLIST_CACHE_SIZE", 50000)
	if err != nil {
		return nil, fmt.Errorf("GAIA_BLACKLIST_CACHE_SIZE: %w", err)
	}

	// GAIA_WHITELIST — список адресов через запятую (опционально)
	cfg.Whitelist = splitCSV(getEnvDefault("GAIA_WHITELIST", ""))

	// GAIA_VALID_HUB_URLS — дополнительные валидные hub URL через запятую
	cfg.ValidHubURLs = splitCSV(getEnvDefault("GAIA_VALID_HUB_URLS", ""))

	// GAIA_REQUIRE_CORRECT_HUB_URL — проверять hubUrl в токене (по умолчанию false)
	cfg.RequireCorrectHubURL, err = getEnvBool("GAIA_REQUIRE_CORRECT_HUB_URL", false)
	if err != nil {
		return nil, fmt.Errorf("GAIA_REQUIRE_CORRECT_HUB_URL: %w", err)
	}

	// GAIA_CHECK_ASSOCIATION_BLACKLIST — проверять blacklist для association
	// issuer (по умолчанию false)
	cfg.CheckAssociationBlacklist, err = getEnvBool("GAIA_CHECK_ASSOCIATION_BLACKLIST", false)
	if err != nil {
		return nil, fmt.Errorf("GAIA_CHECK_ASSOCIATION_BLACKLIST: %w", err)
	}

	// GAIA_DRIVER — драйвер хранилища (по умолчанию s3)
	cfg.Driver = getEnvDefault("GAIA_DRIVER", DriverS3)
	if cfg.Driver != DriverS3 && cfg.Driver != DriverDisk {
		return nil, fmt.Errorf("GAIA_DRIVER: недопустимое значение %q, допустимые: s3, disk", cfg.Driver)
	}

	switch cfg.Driver {
	case DriverS3:
		// GAIA_S3_BUCKET — обязательный для драйвера s3
		cfg.S3Bucket, err = getEnvRequired("GAIA_S3_BUCKET")
		if err != nil {
			return nil, err
		}
		// GAIA_S3_REGION — обязательный для драйвера s3
		cfg.S3Region, err = getEnvRequired("GAIA_S3_REGION")
		if err != nil {
			return nil, err
		}
		// GAIA_S3_ENDPOINT — кастомный endpoint, например MinIO (опционально)
		cfg.S3Endpoint = getEnvDefault("GAIA_S3_ENDPOINT", "")
		cfg.S3AccessKey = getEnvDefault("GAIA_S3_ACCESS_KEY", "")
		cfg.S3SecretKey = getEnvDefault("GAIA_S3_SECRET_KEY", "")

		// GAIA_REDIS_ADDR — обязательный для драйвера s3
		cfg.RedisAddr, err = getEnvRequired("GAIA_REDIS_ADDR")
		if err != nil {
			return nil, err
		}
		cfg.RedisDB, err = getEnvInt("GAIA_REDIS_DB", 0)
		if err != nil {
			return nil, fmt.Errorf("GAIA_REDIS_DB: %w", err)
		}

		// GAIA_KAFKA_BROKERS — брокеры очереди задач (опционально;
		// пусто — очередь отключена, задачи только логируются)
		cfg.KafkaBrokers = splitCSV(getEnvDefault("GAIA_KAFKA_BROKERS", ""))
		cfg.KafkaTopic = getEnvDefault("GAIA_KAFKA_TOPIC", "gaia-hub-tasks")

	case DriverDisk:
		// GAIA_DISK_DATA_DIR — обязательный для драйвера disk
		cfg.DiskDataDir, err = getEnvRequired("GAIA_DISK_DATA_DIR")
		if err != nil {
			return nil, err
		}
	}

	// GAIA_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("GAIA_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("GAIA_LOG_LEVEL: %w", err)
	}

	// GAIA_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("GAIA_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("GAIA_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// GAIA_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 10s)
	cfg.ShutdownTimeout, err = getEnvDuration("GAIA_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GAIA_SHUTDOWN_TIMEOUT: %w", err)
	}

	// GAIA_TLS_CERT / GAIA_TLS_KEY — TLS (опционально)
	cfg.TLSCert = getEnvDefault("GAIA_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("GAIA_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("GAIA_TLS_CERT и GAIA_TLS_KEY должны быть заданы вместе")
	}

	return cfg, nil
}

// ChallengeText возвращает канонический challenge text hub:
// JSON-массив ["gaiahub","0",serverName,"blockstack_storage_please_sign"].
func (c *Config) ChallengeText() string {
	return fmt.Sprintf(`["gaiahub","0","%s","blockstack_storage_please_sign"]`, c.ServerName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h)", val)
	}
	return d, nil
}

// splitCSV разбивает строку по запятым, отбрасывая пустые элементы.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
