package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервиса.
// Пустые поля заменяются значениями по умолчанию в геттерах.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Server    ServerConfig    `yaml:"server"`
	NATS      NATSConfig      `yaml:"nats"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type StorageConfig struct {
	WorldDir  string      `yaml:"world_dir"`
	Backend   string      `yaml:"backend"` // file | badger | redis | memory
	BadgerDir string      `yaml:"badger_dir"`
	Redis     RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type TrackerConfig struct {
	// Снимать карту высот при создании записи чанка. Заметно увеличивает размер файлов.
	StoreHeightmaps  bool  `yaml:"store_heightmaps"`
	AutosaveInterval int   `yaml:"autosave_interval_seconds"`
	TerrainSeed      int64 `yaml:"terrain_seed"`
}

type ServerConfig struct {
	RESTPort int `yaml:"rest_port"`

	// Доступ к административным эндпоинтам: JWT (HS256, секрет в base64)
	// и/или ключ в заголовке X-Admin-Key (в конфиге bcrypt-хеш).
	// Если не задано ни то, ни другое, административные эндпоинты открыты.
	AdminSecret  string `yaml:"admin_secret"`
	AdminKeyHash string `yaml:"admin_key_hash"`

	// HMAC-SHA256 подпись событий, принимаемых по HTTP; пусто - без проверки
	WebhookSecret string `yaml:"webhook_secret"`
}

type NATSConfig struct {
	URL           string `yaml:"url"` // пусто - приём событий выключен
	SubjectPrefix string `yaml:"subject_prefix"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	ToFile bool   `yaml:"to_file"`
}

// Default конфигурация без файла
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			WorldDir: "world",
			Backend:  "file",
		},
		Tracker: TrackerConfig{
			AutosaveInterval: 300,
		},
		NATS: NATSConfig{
			SubjectPrefix: "activity",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "chunk-activity-tracker",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "ACTIVITY_REST_PORT", 8090)
}

// GetAdminSecret секрет JWT с приоритетом: config -> env ACTIVITY_ADMIN_SECRET
func (s *ServerConfig) GetAdminSecret() string {
	if s.AdminSecret != "" {
		return s.AdminSecret
	}
	return os.Getenv("ACTIVITY_ADMIN_SECRET")
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

// GetAutosaveInterval период фонового сохранения
func (t *TrackerConfig) GetAutosaveInterval() time.Duration {
	if t.AutosaveInterval <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(t.AutosaveInterval) * time.Second
}

// GetSubjectPrefix префикс NATS-субъектов
func (n *NATSConfig) GetSubjectPrefix() string {
	if n.SubjectPrefix == "" {
		return "activity"
	}
	return n.SubjectPrefix
}

// Validate проверяет значения, которые нельзя молча заменить дефолтами
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Backend) {
	case "", "file", "badger", "memory":
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr обязателен для backend=redis")
		}
	default:
		return fmt.Errorf("неизвестный storage.backend: %q", c.Storage.Backend)
	}

	if c.Tracker.AutosaveInterval < 0 {
		return fmt.Errorf("tracker.autosave_interval_seconds не может быть отрицательным: %d", c.Tracker.AutosaveInterval)
	}
	if c.Server.RESTPort < 0 || c.Server.RESTPort > 65535 {
		return fmt.Errorf("server.rest_port вне диапазона: %d", c.Server.RESTPort)
	}
	return nil
}

// Load читает YAML файл конфигурации поверх Default().
// Если path == "", пытается прочитать из ENV ACTIVITY_CONFIG или возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("ACTIVITY_CONFIG")
		if path == "" {
			return cfg, nil // конфиг не задан - использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
