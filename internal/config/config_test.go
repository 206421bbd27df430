package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

// setRequiredEnv задаёт минимальный набор обязательных переменных
// для дискового драйвера.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GAIA_SERVER_NAME", "hub.example.com")
	t.Setenv("GAIA_DRIVER", "disk")
	t.Setenv("GAIA_DISK_DATA_DIR", t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Port != 8088 {
		t.Errorf("порт по умолчанию: ожидалось 8088, получено %d", cfg.Port)
	}
	if cfg.PageSize != 100 {
		t.Errorf("pageSize по умолчанию: %d", cfg.PageSize)
	}
	if cfg.MaxFileUploadSizeMB != 20 {
		t.Errorf("лимит загрузки по умолчанию: %d", cfg.MaxFileUploadSizeMB)
	}
	if cfg.MaxFileUploadSizeBytes() != 20*1024*1024 {
		t.Errorf("лимит в байтах: %d", cfg.MaxFileUploadSizeBytes())
	}
	if cfg.AuthTimestampCacheSize != 50000 || cfg.BlacklistCacheSize != 50000 {
		t.Errorf("ёмкости кэшей: %d/%d", cfg.AuthTimestampCacheSize, cfg.BlacklistCacheSize)
	}
	if cfg.RequireCorrectHubURL {
		t.Error("RequireCorrectHubURL по умолчанию выключен")
	}
	if cfg.LogLevel != slog.LevelInfo || cfg.LogFormat != "json" {
		t.Errorf("логирование по умолчанию: %v/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout: %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_MissingServerName(t *testing.T) {
	t.Setenv("GAIA_DRIVER", "disk")
	t.Setenv("GAIA_DISK_DATA_DIR", t.TempDir())

	if _, err := Load(); err == nil {
		t.Fatal("отсутствие GAIA_SERVER_NAME должно быть ошибкой")
	}
}

func TestLoad_S3RequiresSettings(t *testing.T) {
	t.Setenv("GAIA_SERVER_NAME", "hub.example.com")
	t.Setenv("GAIA_DRIVER", "s3")

	// Без бакета — ошибка.
	if _, err := Load(); err == nil {
		t.Fatal("драйвер s3 без GAIA_S3_BUCKET должен быть ошибкой")
	}

	t.Setenv("GAIA_S3_BUCKET", "hub-data")
	t.Setenv("GAIA_S3_REGION", "us-east-1")
	t.Setenv("GAIA_REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if cfg.KafkaTopic != "gaia-hub-tasks" {
		t.Errorf("топик по умолчанию: %s", cfg.KafkaTopic)
	}
}

func TestLoad_InvalidDriver(t *testing.T) {
	t.Setenv("GAIA_SERVER_NAME", "hub.example.com")
	t.Setenv("GAIA_DRIVER", "gcs")

	if _, err := Load(); err == nil {
		t.Fatal("неизвестный драйвер должен быть ошибкой")
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "99999")

	if _, err := Load(); err == nil {
		t.Fatal("порт вне диапазона должен быть ошибкой")
	}
}

func TestLoad_CSVLists(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GAIA_WHITELIST", "1Addr, 2Addr ,,3Addr")
	t.Setenv("GAIA_VALID_HUB_URLS", "https://a.example.com,https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(cfg.Whitelist) != 3 || cfg.Whitelist[1] != "2Addr" {
		t.Errorf("whitelist: %v", cfg.Whitelist)
	}
	if len(cfg.ValidHubURLs) != 2 {
		t.Errorf("validHubUrls: %v", cfg.ValidHubURLs)
	}
}

func TestLoad_TLSPairRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GAIA_TLS_CERT", "/tmp/cert.pem")

	if _, err := Load(); err == nil {
		t.Fatal("TLS-сертификат без ключа должен быть ошибкой")
	}
}

func TestChallengeText(t *testing.T) {
	cfg := &Config{ServerName: "hub.example.com"}
	want := `["gaiahub","0","hub.example.com","blockstack_storage_please_sign"]`
	if got := cfg.ChallengeText(); got != want {
		t.Errorf("challenge text:\nожидалось %s\nполучено  %s", want, got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := parseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLogLevel(%q): err=%v", tt.in, err)
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, ожидалось %v", tt.in, got, tt.want)
		}
	}
}

func TestSplitCSV(t *testing.T) {
	if got := splitCSV(""); got != nil {
		t.Errorf("пустая строка: %v", got)
	}
	if got := splitCSV("a,,b"); len(got) != 2 || !strings.HasPrefix(got[1], "b") {
		t.Errorf("пустые элементы должны отбрасываться: %v", got)
	}
}
