package activity

import (
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/annel0/chunk-activity-tracker/internal/storage"
)

// Registry хранилища активности по измерениям на время работы сервера.
// Создаётся явно и передаётся владельцу жизненного цикла; глобального состояния нет.
// Ключ реестра совпадает с ключом бэкенда (storage.SanitizeDimension), поэтому
// разные написания одного измерения получают одно хранилище.
type Registry struct {
	opts Options

	mu     sync.RWMutex
	stores map[string]*Store // по каноническому имени
	loads  singleflight.Group
}

// NewRegistry создаёт пустой реестр
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:   opts.withDefaults(),
		stores: make(map[string]*Store),
	}
}

// StoreFor возвращает хранилище измерения, загружая его при первом обращении.
// Первая загрузка сразу сохраняет хранилище, чтобы файл измерения появился на диске.
// Одновременные первые обращения к одному измерению получают один и тот же экземпляр.
func (r *Registry) StoreFor(dimension string) *Store {
	key := storage.SanitizeDimension(dimension)
	if s, ok := r.lookup(key); ok {
		return s
	}

	v, _, _ := r.loads.Do(key, func() (interface{}, error) {
		if s, ok := r.lookup(key); ok {
			return s, nil
		}

		s := LoadStore(dimension, r.opts)
		// Ошибка уже залогирована в Save; хранилище в памяти остаётся рабочим
		_ = s.Save()

		r.mu.Lock()
		r.stores[key] = s
		r.mu.Unlock()
		return s, nil
	})
	return v.(*Store)
}

// Lookup возвращает уже загруженное хранилище без загрузки
func (r *Registry) Lookup(dimension string) (*Store, bool) {
	return r.lookup(storage.SanitizeDimension(dimension))
}

func (r *Registry) lookup(key string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stores[key]
	return s, ok
}

// Dimensions список загруженных измерений, отсортированный по имени.
// Для каждого хранилища возвращается идентификатор, с которым оно было загружено.
func (r *Registry) Dimensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.stores))
	for _, s := range r.stores {
		result = append(result, s.Dimension())
	}
	sort.Strings(result)
	return result
}

// SaveAll сохраняет все загруженные измерения; ошибки объединяются
func (r *Registry) SaveAll() error {
	r.mu.RLock()
	stores := make([]*Store, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, s)
	}
	r.mu.RUnlock()

	var errs []error
	for _, s := range stores {
		if err := s.Save(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClearAll выгружает все хранилища. Ничего не сохраняет: для сохранности
// данных сначала нужно вызвать SaveAll.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	n := len(r.stores)
	r.stores = make(map[string]*Store)
	r.mu.Unlock()

	r.opts.Logger.Info("Остановка сервера, очистка хранилищ активности (%d измерений)", n)
}
