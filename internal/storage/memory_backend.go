package storage

import (
	"context"
	"sync"
)

// MemoryBackend хранит снимки в памяти.
// Используется для тестов и локальной разработки.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend создаёт пустой бэкенд в памяти
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string][]byte),
	}
}

// Name возвращает "memory"
func (mb *MemoryBackend) Name() string {
	return string(KindMemory)
}

// Read возвращает копию сохранённых данных
func (mb *MemoryBackend) Read(ctx context.Context, dimension string) ([]byte, error) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	data, ok := mb.data[SanitizeDimension(dimension)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Write сохраняет копию данных
func (mb *MemoryBackend) Write(ctx context.Context, dimension string, data []byte) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.data[SanitizeDimension(dimension)] = append([]byte(nil), data...)
	return nil
}

// Close ничего не делает
func (mb *MemoryBackend) Close() error {
	return nil
}
