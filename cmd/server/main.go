package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/chunk-activity-tracker/internal/activity"
	"github.com/annel0/chunk-activity-tracker/internal/api"
	"github.com/annel0/chunk-activity-tracker/internal/auth"
	"github.com/annel0/chunk-activity-tracker/internal/config"
	"github.com/annel0/chunk-activity-tracker/internal/ingest"
	"github.com/annel0/chunk-activity-tracker/internal/logging"
	"github.com/annel0/chunk-activity-tracker/internal/metrics"
	"github.com/annel0/chunk-activity-tracker/internal/observability"
	"github.com/annel0/chunk-activity-tracker/internal/storage"
	"github.com/annel0/chunk-activity-tracker/internal/terrain"
	"github.com/annel0/chunk-activity-tracker/internal/tracker"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Путь к YAML конфигурации (по умолчанию ENV ACTIVITY_CONFIG)")
	flag.Parse()

	// ACTIVITY_* переменные можно положить в .env рядом с бинарником
	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	// Инициализируем систему логирования
	if cfg.Logging.ToFile {
		if err := logging.InitDefaultLogger("server"); err != nil {
			log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
		}
		defer logging.CloseDefaultLogger()
	}
	logging.GetLoggerManager().EnableFileOutput(cfg.Logging.ToFile)
	defer logging.GetLoggerManager().CloseAll()
	logging.SetDefaultLevel(logging.ParseLevel(cfg.Logging.Level))

	logging.Info("🧭 Запуск Chunk Activity Tracker %s...", version)
	if envErr != nil {
		logging.Debug("Файл .env не загружен: %v", envErr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === ТРАССИРОВКА ===
	shutdownTelemetry, err := observability.InitTelemetry(ctx, observability.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
	})
	if err != nil {
		log.Fatalf("❌ Ошибка инициализации OpenTelemetry: %v", err)
	}

	// === ХРАНИЛИЩЕ ===
	backend, err := storage.Open(storage.Options{
		Kind:      storage.Kind(strings.ToLower(cfg.Storage.Backend)),
		WorldDir:  cfg.Storage.WorldDir,
		BadgerDir: cfg.Storage.BadgerDir,
		Redis: &storage.RedisConfig{
			Addr:      cfg.Storage.Redis.Addr,
			Password:  cfg.Storage.Redis.Password,
			DB:        cfg.Storage.Redis.DB,
			KeyPrefix: cfg.Storage.Redis.KeyPrefix,
		},
	})
	if err != nil {
		log.Fatalf("❌ Ошибка открытия хранилища: %v", err)
	}
	logging.Info("💾 Хранилище активности: %s", backend.Name())

	// === ТРЕКЕР ===
	storeHeightmaps := cfg.Tracker.StoreHeightmaps
	registry := activity.NewRegistry(activity.Options{
		Backend:         backend,
		Heightmaps:      terrain.NewNoiseProvider(cfg.Tracker.TerrainSeed),
		StoreHeightmaps: func() bool { return storeHeightmaps },
		Metrics:         metrics.NewStoreMetrics(prometheus.DefaultRegisterer),
	})

	tr := tracker.New(registry, tracker.Options{
		AutosaveInterval: cfg.Tracker.GetAutosaveInterval(),
	})
	go tr.Run(ctx)

	// === ПРИЁМ СОБЫТИЙ ===
	events := ingest.NewHandler(tr, logging.GetIngestLogger())

	var subscriber *ingest.NATSSubscriber
	if cfg.NATS.URL != "" {
		subscriber, err = ingest.NewNATSSubscriber(ingest.NATSConfig{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.GetSubjectPrefix(),
		}, events)
		if err != nil {
			log.Fatalf("❌ Ошибка подключения к NATS: %v", err)
		}
		if err := subscriber.Start(); err != nil {
			log.Fatalf("❌ Ошибка подписки NATS: %v", err)
		}
	} else {
		logging.Info("NATS не настроен, события принимаются только по HTTP")
	}

	// === REST API ===
	admin, err := adminAuth(cfg.Server)
	if err != nil {
		log.Fatalf("❌ Ошибка настройки авторизации: %v", err)
	}

	restPort := cfg.Server.GetRESTPort()
	restServer := api.NewRestServer(api.Config{
		Port:          fmt.Sprintf(":%d", restPort),
		Tracker:       tr,
		Events:        events,
		Admin:         admin,
		WebhookSecret: cfg.Server.WebhookSecret,
	})
	go func() {
		if err := restServer.Start(); err != nil {
			logging.Error("❌ Ошибка REST API: %v", err)
		}
	}()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost:%d", restPort)
	logging.Info("   ❤️  Health check: http://localhost:%d/health", restPort)
	if subscriber != nil {
		logging.Info("   📨 NATS: %s (%s)", cfg.NATS.URL, subscriber.Subject("*"))
	}

	// Канал для получения сигналов ОС
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logging.Info("📡 Получен сигнал %v, завершение работы...", sig)

	// === GRACEFUL SHUTDOWN ===
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()

	if err := restServer.Stop(stopCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	if subscriber != nil {
		logging.Info("📨 NATS: %v", subscriber.GetMetrics())
		if err := subscriber.Close(); err != nil {
			logging.Error("❌ Ошибка закрытия NATS: %v", err)
		}
	}

	// Сохранение мира перед остановкой, затем очистка
	if err := tr.OnWorldSave(); err != nil {
		logging.Error("❌ Не все измерения сохранены: %v", err)
	}
	tr.OnServerStopped()

	if err := backend.Close(); err != nil {
		logging.Error("❌ Ошибка закрытия хранилища: %v", err)
	}
	if err := shutdownTelemetry(stopCtx); err != nil {
		logging.Error("❌ Ошибка остановки OpenTelemetry: %v", err)
	}

	logging.Info("👋 Сервер успешно остановлен")
}

// adminAuth собирает доступ к административным эндпоинтам из конфигурации
func adminAuth(cfg config.ServerConfig) (api.AdminAuth, error) {
	admin := api.AdminAuth{KeyHash: cfg.AdminKeyHash}

	if secret := cfg.GetAdminSecret(); secret != "" {
		issuer, err := auth.NewTokenIssuer(secret)
		if err != nil {
			return api.AdminAuth{}, err
		}
		admin.Tokens = issuer
	}
	return admin, nil
}
