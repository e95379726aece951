package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"
)

// BadgerBackend хранит снимки измерений в BadgerDB под ключами "activity:<dim>"
type BadgerBackend struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerBackend открывает (или создаёт) BadgerDB в каталоге dbPath
func NewBadgerBackend(dbPath string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerBackend{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

// Name возвращает "badger"
func (bb *BadgerBackend) Name() string {
	return string(KindBadger)
}

func badgerKey(dimension string) []byte {
	return []byte("activity:" + SanitizeDimension(dimension))
}

// Read загружает снимок измерения
func (bb *BadgerBackend) Read(ctx context.Context, dimension string) ([]byte, error) {
	bb.mutex.RLock()
	defer bb.mutex.RUnlock()

	if !bb.isReady {
		return nil, fmt.Errorf("хранилище не готово")
	}

	var data []byte
	err := bb.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(dimension))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return data, nil
}

// Write заменяет снимок измерения в одной транзакции
func (bb *BadgerBackend) Write(ctx context.Context, dimension string, data []byte) error {
	bb.mutex.RLock()
	defer bb.mutex.RUnlock()

	if !bb.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	err := bb.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(dimension), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// Close закрывает BadgerDB
func (bb *BadgerBackend) Close() error {
	bb.mutex.Lock()
	defer bb.mutex.Unlock()

	if !bb.isReady {
		return nil
	}

	bb.isReady = false
	return bb.db.Close()
}
