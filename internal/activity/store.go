package activity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/annel0/chunk-activity-tracker/internal/logging"
	"github.com/annel0/chunk-activity-tracker/internal/metrics"
	"github.com/annel0/chunk-activity-tracker/internal/storage"
)

var tracer = otel.Tracer("github.com/annel0/chunk-activity-tracker/internal/activity")

// HeightmapProvider снимает карту высот чанка в момент создания записи
type HeightmapProvider interface {
	// Heightmap возвращает упакованные высоты чанка или false, если снимок недоступен
	Heightmap(dimension string, pos ChunkPos) ([]int64, bool)
}

// Options общие настройки хранилищ измерений
type Options struct {
	// Backend куда сохраняются сжатые снимки; nil - память процесса
	Backend storage.Backend

	// Heightmaps источник снимков высот для новых записей
	Heightmaps HeightmapProvider

	// StoreHeightmaps читается при каждом создании записи; nil - выключено
	StoreHeightmaps func() bool

	Metrics *metrics.StoreMetrics
	Logger  *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.Backend == nil {
		o.Backend = storage.NewMemoryBackend()
	}
	if o.Logger == nil {
		o.Logger = logging.GetActivityLogger()
	}
	return o
}

// Store таблица записей активности одного измерения.
// Безопасна для одновременного использования из тикового потока,
// обработчика событий и потока сохранения.
type Store struct {
	dimension string
	opts      Options

	mu     sync.RWMutex
	chunks map[int64]*Record

	saveMu sync.Mutex
}

// NewStore создаёт пустое хранилище измерения
func NewStore(dimension string, opts Options) *Store {
	return newStore(dimension, make(map[int64]*Record), opts.withDefaults())
}

func newStore(dimension string, chunks map[int64]*Record, opts Options) *Store {
	s := &Store{
		dimension: dimension,
		opts:      opts,
		chunks:    chunks,
	}
	opts.Metrics.SetTrackedChunks(dimension, len(chunks))
	return s
}

// Dimension идентификатор измерения
func (s *Store) Dimension() string {
	return s.dimension
}

// Len количество чанков с записями
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// GetRecord возвращает запись чанка без побочных эффектов
func (s *Store) GetRecord(pos ChunkPos) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.chunks[pos.Pack()]
	return r, ok
}

// GetOrCreateRecord возвращает запись чанка, создавая её при отсутствии.
// Создание атомарно: при гонке за один ключ создаётся ровно одна запись.
// Снимок высот снимается, только если опция включена и provider != nil.
func (s *Store) GetOrCreateRecord(pos ChunkPos, provider HeightmapProvider) *Record {
	key := pos.Pack()

	s.mu.RLock()
	r, ok := s.chunks[key]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Проверяем еще раз на случай race condition
	if r, ok := s.chunks[key]; ok {
		return r
	}

	var heightmap []int64
	if provider != nil && s.storeHeightmaps() {
		if hm, ok := provider.Heightmap(s.dimension, pos); ok {
			heightmap = hm
		}
	}

	r = NewRecord(heightmap)
	s.chunks[key] = r
	s.opts.Metrics.SetTrackedChunks(s.dimension, len(s.chunks))
	return r
}

func (s *Store) storeHeightmaps() bool {
	return s.opts.StoreHeightmaps != nil && s.opts.StoreHeightmaps()
}

// RecordPresence добавляет посетителю одну секунду в чанке
func (s *Store) RecordPresence(pos ChunkPos, visitor uuid.UUID) uint64 {
	total := s.GetOrCreateRecord(pos, s.opts.Heightmaps).AddPresence(visitor)
	s.opts.Metrics.PresenceRecorded(s.dimension)
	return total
}

// RecordBlockPlacement учитывает поставленный посетителем блок
func (s *Store) RecordBlockPlacement(pos ChunkPos, visitor uuid.UUID) uint32 {
	total := s.GetOrCreateRecord(pos, s.opts.Heightmaps).AddBlockPlaced(visitor)
	s.opts.Metrics.BlockPlaced(s.dimension)
	return total
}

// VisitorTime время посетителя в чанке; 0, если записи нет
func (s *Store) VisitorTime(pos ChunkPos, visitor uuid.UUID) uint64 {
	r, ok := s.GetRecord(pos)
	if !ok {
		return 0
	}
	return r.VisitorTime(visitor)
}

// TotalTime суммарное время всех посетителей в чанке
func (s *Store) TotalTime(pos ChunkPos) uint64 {
	r, ok := s.GetRecord(pos)
	if !ok {
		return 0
	}
	return r.TotalTime()
}

// snapshot копия карты указателей, чтобы не держать блокировку таблицы во время кодирования
func (s *Store) snapshot() map[int64]*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]*Record, len(s.chunks))
	for k, r := range s.chunks {
		result[k] = r
	}
	return result
}

// Chunks возвращает координаты всех чанков с записями
func (s *Store) Chunks() []ChunkPos {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ChunkPos, 0, len(s.chunks))
	for k := range s.chunks {
		result = append(result, UnpackChunkPos(k))
	}
	return result
}

// Save кодирует таблицу, сжимает gzip и атомарно заменяет данные измерения в бэкенде.
// При ошибке таблица в памяти не меняется, ошибка возвращается вызывающему.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	ctx, span := tracer.Start(context.Background(), "activity.Save")
	defer span.End()

	start := time.Now()
	chunks := s.snapshot()
	span.SetAttributes(
		attribute.String("dimension", s.dimension),
		attribute.Int("chunks", len(chunks)),
	)

	err := s.write(ctx, chunks)
	took := time.Since(start)
	s.opts.Metrics.SaveFinished(s.dimension, took, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.opts.Logger.Error("❌ Ошибка сохранения активности измерения %s: %v", s.dimension, err)
		return err
	}

	s.opts.Logger.Info("💾 Сохранено %d чанков измерения %s за %d мс",
		len(chunks), s.dimension, took.Milliseconds())
	return nil
}

func (s *Store) write(ctx context.Context, chunks map[int64]*Record) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := EncodeTable(gz, s.dimension, chunks); err != nil {
		return fmt.Errorf("%w: %w", ErrCompression, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrCompression, err)
	}

	if err := s.opts.Backend.Write(ctx, s.dimension, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// LoadStore загружает хранилище измерения.
// Отсутствие данных - штатный первый запуск. Повреждённые данные логируются,
// и возвращается пустое хранилище: прежняя статистика измерения теряется.
func LoadStore(dimension string, opts Options) *Store {
	opts = opts.withDefaults()

	_, span := tracer.Start(context.Background(), "activity.Load")
	defer span.End()
	span.SetAttributes(attribute.String("dimension", dimension))

	start := time.Now()
	table, err := readTable(opts.Backend, dimension)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		opts.Logger.Info("Сохранённой активности для %s нет, создаётся пустое хранилище", dimension)
		return newStore(dimension, make(map[int64]*Record), opts)
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		opts.Metrics.LoadFailed(dimension)
		opts.Logger.Error("❌ Ошибка загрузки активности измерения %s, начинаем с пустого хранилища: %v", dimension, err)
		return newStore(dimension, make(map[int64]*Record), opts)
	}

	if table.Dimension != dimension {
		opts.Logger.Warn("Данные измерения %s сохранены под именем %s", dimension, table.Dimension)
	}

	opts.Logger.Info("📂 Загружено %d чанков измерения %s за %d мс",
		len(table.Records), dimension, time.Since(start).Milliseconds())
	span.SetAttributes(attribute.Int("chunks", len(table.Records)))
	return newStore(dimension, table.Records, opts)
}

// readTable читает, распаковывает и декодирует снимок измерения.
// Ошибки классифицируются: storage.ErrNotFound, ErrIO, ErrCompression, ErrMalformedRecord.
func readTable(backend storage.Backend, dimension string) (*Table, error) {
	data, err := backend.Read(context.Background(), dimension)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompression, err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompression, err)
	}

	return DecodeTable(raw)
}
