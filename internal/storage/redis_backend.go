package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/annel0/chunk-activity-tracker/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string // Адрес Redis сервера
	Password  string // Пароль (пустой если не требуется)
	DB        int    // Номер базы данных
	KeyPrefix string // Префикс для ключей
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		KeyPrefix: "chunk_activity:",
	}
}

// RedisBackend хранит снимки измерений в Redis без TTL
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisBackend подключается к Redis и проверяет соединение
func NewRedisBackend(config *RedisConfig) (*RedisBackend, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetStorageLogger().Info("🔴 Connected to Redis at %s", config.Addr)
	return &RedisBackend{
		client:    client,
		keyPrefix: config.KeyPrefix,
	}, nil
}

// Name возвращает "redis"
func (rb *RedisBackend) Name() string {
	return string(KindRedis)
}

func (rb *RedisBackend) key(dimension string) string {
	return rb.keyPrefix + SanitizeDimension(dimension)
}

// Read загружает снимок измерения
func (rb *RedisBackend) Read(ctx context.Context, dimension string) ([]byte, error) {
	data, err := rb.client.Get(ctx, rb.key(dimension)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity snapshot: %w", err)
	}
	return data, nil
}

// Write заменяет снимок измерения одной командой SET
func (rb *RedisBackend) Write(ctx context.Context, dimension string, data []byte) error {
	if err := rb.client.Set(ctx, rb.key(dimension), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set activity snapshot: %w", err)
	}
	return nil
}

// Close закрывает клиент Redis
func (rb *RedisBackend) Close() error {
	return rb.client.Close()
}
