package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/chunk-activity-tracker/internal/activity"
	"github.com/annel0/chunk-activity-tracker/internal/logging"
)

// DefaultAutosaveInterval период фонового сохранения
const DefaultAutosaveInterval = 5 * time.Minute

// Presence положение подключённого посетителя в момент тика
type Presence struct {
	Dimension string
	Visitor   uuid.UUID

	// Координаты блока, в котором стоит посетитель
	X, Y, Z int
}

// Chunk чанк, в котором находится посетитель
func (p Presence) Chunk() activity.ChunkPos {
	return activity.ChunkPosFromBlock(p.X, p.Z)
}

// Options настройки трекера
type Options struct {
	Clock            Clock
	AutosaveInterval time.Duration
	Logger           *logging.Logger
}

// Tracker внешний интерфейс учёта активности: операции для соседних
// модулей и точки входа для драйвера жизненного цикла сервера
type Tracker struct {
	registry *activity.Registry
	limiter  *TickLimiter
	autosave time.Duration
	logger   *logging.Logger
}

// New создаёт трекер поверх реестра хранилищ
func New(registry *activity.Registry, opts Options) *Tracker {
	if opts.AutosaveInterval <= 0 {
		opts.AutosaveInterval = DefaultAutosaveInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetActivityLogger()
	}

	return &Tracker{
		registry: registry,
		limiter:  NewTickLimiter(opts.Clock),
		autosave: opts.AutosaveInterval,
		logger:   opts.Logger,
	}
}

// Registry реестр хранилищ трекера
func (t *Tracker) Registry() *activity.Registry {
	return t.registry
}

// RecordPresence добавляет посетителю секунду в чанке без ограничения частоты
func (t *Tracker) RecordPresence(dimension string, visitor uuid.UUID, pos activity.ChunkPos) uint64 {
	return t.registry.StoreFor(dimension).RecordPresence(pos, visitor)
}

// RecordBlockPlacement учитывает поставленный блок
func (t *Tracker) RecordBlockPlacement(dimension string, visitor uuid.UUID, pos activity.ChunkPos) uint32 {
	return t.registry.StoreFor(dimension).RecordBlockPlacement(pos, visitor)
}

// GetVisitorTime секунды посетителя в чанке
func (t *Tracker) GetVisitorTime(dimension string, pos activity.ChunkPos, visitor uuid.UUID) uint64 {
	return t.registry.StoreFor(dimension).VisitorTime(pos, visitor)
}

// GetTotalTime сумма секунд всех посетителей в чанке
func (t *Tracker) GetTotalTime(dimension string, pos activity.ChunkPos) uint64 {
	return t.registry.StoreFor(dimension).TotalTime(pos)
}

// SecondsInCurrentChunk секунды посетителя в чанке, где он сейчас стоит
func (t *Tracker) SecondsInCurrentChunk(p Presence) uint64 {
	if p.Dimension == "" {
		return 0
	}
	return t.GetVisitorTime(p.Dimension, p.Chunk(), p.Visitor)
}

// SaveAll сохраняет все загруженные измерения
func (t *Tracker) SaveAll() error {
	return t.registry.SaveAll()
}

// ClearAll выгружает все измерения без сохранения
func (t *Tracker) ClearAll() {
	t.registry.ClearAll()
}

// OnServerTick вызывается на каждом тике сервера со списком подключённых посетителей.
// Не чаще раза в секунду каждому посетителю добавляется секунда в текущем чанке.
// Возвращает true, если тик был принят лимитером.
func (t *Tracker) OnServerTick(players []Presence) bool {
	if !t.limiter.Ready() {
		return false
	}

	for _, p := range players {
		// Посетитель вне измерения (ещё загружается)
		if p.Dimension == "" {
			continue
		}
		t.RecordPresence(p.Dimension, p.Visitor, p.Chunk())
	}
	return true
}

// OnBlockPlaced вызывается, когда посетитель ставит блок
func (t *Tracker) OnBlockPlaced(p Presence) {
	if p.Dimension == "" {
		return
	}
	t.RecordBlockPlacement(p.Dimension, p.Visitor, p.Chunk())
}

// OnWorldSave вызывается при сохранении мира сервером
func (t *Tracker) OnWorldSave() error {
	return t.SaveAll()
}

// OnServerStopped вызывается после остановки сервера
func (t *Tracker) OnServerStopped() {
	t.ClearAll()
}

// Run периодически сохраняет все измерения до отмены ctx.
// Финальное сохранение при остановке выполняет владелец трекера.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.autosave)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.SaveAll(); err != nil {
				t.logger.Warn("Автосохранение завершилось с ошибками: %v", err)
			}
		}
	}
}
