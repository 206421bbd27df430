// Точка входа Gaia Hub — шлюза объектного хранилища с авторизацией
// по подписанным capability-токенам.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bigkaa/gaiahub/internal/api/handlers"
	"github.com/bigkaa/gaiahub/internal/cache"
	"github.com/bigkaa/gaiahub/internal/config"
	"github.com/bigkaa/gaiahub/internal/driver"
	"github.com/bigkaa/gaiahub/internal/driver/diskdriver"
	"github.com/bigkaa/gaiahub/internal/driver/s3driver"
	"github.com/bigkaa/gaiahub/internal/server"
	"github.com/bigkaa/gaiahub/internal/service"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Gaia Hub запускается",
		slog.String("server_name", cfg.ServerName),
		slog.String("version", config.Version),
		slog.String("driver", cfg.Driver),
		slog.Int("port", cfg.Port),
	)

	ctx := context.Background()

	// --- Инициализация компонентов ---

	// 1. Драйвер хранилища
	var drv driver.Driver
	switch cfg.Driver {
	case config.DriverS3:
		drv = s3driver.New(s3driver.Config{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PageSize:      cfg.PageSize,
			ReadURLPrefix: cfg.ReadURL,
			CacheControl:  cfg.CacheControl,
			RedisAddr:     cfg.RedisAddr,
			RedisDB:       cfg.RedisDB,
			KafkaBrokers:  cfg.KafkaBrokers,
			KafkaTopic:    cfg.KafkaTopic,
		}, logger)
	case config.DriverDisk:
		drv = diskdriver.New(diskdriver.Config{
			BaseDir:       cfg.DiskDataDir,
			PageSize:      cfg.PageSize,
			ReadURLPrefix: cfg.ReadURL,
		}, logger)
	}

	// Одноразовая инициализация драйвера; отказ фатален.
	if err := drv.EnsureInitialized(ctx); err != nil {
		logger.Error("Ошибка инициализации драйвера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Кэши revocation и blacklist
	authTimestamps := cache.NewAuthTimestampCache(drv, cfg.AuthTimestampCacheSize, logger)
	authTimestamps.StartEvictionLogger(ctx)
	blacklist := cache.NewBlacklistCache(drv, cfg.BlacklistCacheSize, logger)

	// 3. Сервис ядра hub
	hub := service.NewHub(cfg, drv, authTimestamps, blacklist, logger)

	// 4. HTTP обработчики и сервер
	health := handlers.NewHealthHandler()
	health.SetReady(true)
	handler := handlers.New(hub, cfg, health)

	srv := server.New(cfg, logger, handler)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
