package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound возвращается, когда для измерения ещё нет сохранённых данных.
// Это ожидаемая ситуация при первом запуске, а не сбой.
var ErrNotFound = errors.New("activity data not found")

// Backend хранит сжатый снимок активности одного измерения как непрозрачный блоб.
// Формат блоба определяет пакет activity; бэкенд отвечает только за доставку байтов.
type Backend interface {
	// Read загружает снимок измерения.
	// Параметры:
	//   ctx - контекст операции
	//   dimension - идентификатор измерения
	// Возвращает:
	//   []byte - сохранённые данные
	//   error - ErrNotFound, если данных нет, или ошибка ввода-вывода
	Read(ctx context.Context, dimension string) ([]byte, error)

	// Write атомарно заменяет снимок измерения.
	// Частично записанные данные никогда не становятся видимыми для Read.
	Write(ctx context.Context, dimension string, data []byte) error

	// Name короткое имя бэкенда для логов и метрик
	Name() string

	// Close освобождает ресурсы бэкенда
	Close() error
}

// Kind тип бэкенда из конфигурации
type Kind string

const (
	KindFile   Kind = "file"
	KindBadger Kind = "badger"
	KindRedis  Kind = "redis"
	KindMemory Kind = "memory"
)

// Options параметры выбора и открытия бэкенда
type Options struct {
	Kind      Kind
	WorldDir  string // корень сохранения мира для файлового бэкенда
	BadgerDir string // каталог BadgerDB; по умолчанию <WorldDir>/chunk_activity_db
	Redis     *RedisConfig
}

// Open создаёт бэкенд по опциям
func Open(opts Options) (Backend, error) {
	switch opts.Kind {
	case "", KindFile:
		return NewFileBackend(DirResolver(opts.WorldDir)), nil
	case KindBadger:
		dir := opts.BadgerDir
		if dir == "" {
			resolved, err := DirResolver(opts.WorldDir).ResolvePath("chunk_activity_db")
			if err != nil {
				return nil, fmt.Errorf("каталог BadgerDB: %w", err)
			}
			dir = resolved
		}
		return NewBadgerBackend(dir)
	case KindRedis:
		return NewRedisBackend(opts.Redis)
	case KindMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("неизвестный тип хранилища: %q", opts.Kind)
	}
}

// SanitizeDimension превращает идентификатор измерения в безопасное имя файла/ключа.
// Пространство имён отбрасывается ("minecraft:the_nether" -> "the_nether"),
// символы вне [A-Za-z0-9_.-] заменяются на '_'. Регистр сохраняется.
// Результат служит каноническим ключом измерения: идентификаторы с одинаковым
// результатом указывают на одни и те же данные.
func SanitizeDimension(dimension string) string {
	if i := strings.LastIndexByte(dimension, ':'); i >= 0 {
		dimension = dimension[i+1:]
	}

	var b strings.Builder
	b.Grow(len(dimension))
	for _, r := range dimension {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	name := b.String()
	if name == "" || strings.Trim(name, ".") == "" {
		return "_"
	}
	return name
}
