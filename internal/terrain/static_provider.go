package terrain

import (
	"sync"

	"github.com/annel0/chunk-activity-tracker/internal/activity"
)

// StaticProvider отдаёт заранее переданные карты высот.
// Заполняется внешним источником (или тестами); для неизвестных чанков снимка нет.
type StaticProvider struct {
	mu    sync.RWMutex
	known map[activity.ChunkKey][]int64
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		known: make(map[activity.ChunkKey][]int64),
	}
}

// Set запоминает копию упакованной карты высот чанка
func (sp *StaticProvider) Set(dimension string, pos activity.ChunkPos, words []int64) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sp.known[activity.ChunkKey{Dimension: dimension, Pos: pos}] = append([]int64(nil), words...)
}

// Heightmap реализует activity.HeightmapProvider
func (sp *StaticProvider) Heightmap(dimension string, pos activity.ChunkPos) ([]int64, bool) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	words, ok := sp.known[activity.ChunkKey{Dimension: dimension, Pos: pos}]
	if !ok {
		return nil, false
	}
	return append([]int64{}, words...), true
}
