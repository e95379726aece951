package activity

import (
	"math"
	"sync"

	"github.com/google/uuid"
)

// Record статистика активности посетителей в одном чанке.
//
// Счётчики только растут. Снимок высот (heightmap) фиксируется при создании
// записи и больше не меняется; nil означает "снимка нет", что отличается от
// пустого массива и по-разному кодируется на диске.
type Record struct {
	mu           sync.RWMutex
	visitTime    map[uuid.UUID]uint64
	blocksPlaced map[uuid.UUID]uint32

	heightmap []int64
}

// NewRecord создаёт пустую запись; heightmap может быть nil
func NewRecord(heightmap []int64) *Record {
	r := &Record{
		visitTime:    make(map[uuid.UUID]uint64),
		blocksPlaced: make(map[uuid.UUID]uint32),
	}
	if heightmap != nil {
		r.heightmap = append(make([]int64, 0, len(heightmap)), heightmap...)
	}
	return r
}

// newRecordFromMaps используется декодером; карты передаются во владение записи
func newRecordFromMaps(visitTime map[uuid.UUID]uint64, blocks map[uuid.UUID]uint32, heightmap []int64) *Record {
	return &Record{
		visitTime:    visitTime,
		blocksPlaced: blocks,
		heightmap:    heightmap,
	}
}

// AddPresence увеличивает время посетителя в чанке на одну секунду
func (r *Record) AddPresence(visitor uuid.UUID) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.visitTime[visitor]++
	return r.visitTime[visitor]
}

// AddBlockPlaced увеличивает счётчик поставленных блоков посетителя
func (r *Record) AddBlockPlaced(visitor uuid.UUID) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.blocksPlaced[visitor] < math.MaxUint32 {
		r.blocksPlaced[visitor]++
	}
	return r.blocksPlaced[visitor]
}

// VisitorTime возвращает накопленное время посетителя (секунды)
func (r *Record) VisitorTime(visitor uuid.UUID) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.visitTime[visitor]
}

// BlocksPlaced возвращает число блоков, поставленных посетителем
func (r *Record) BlocksPlaced(visitor uuid.UUID) uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.blocksPlaced[visitor]
}

// TotalTime сумма времени всех посетителей
func (r *Record) TotalTime() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total uint64
	for _, t := range r.visitTime {
		total += t
	}
	return total
}

// VisitorTimes возвращает копию карты времени
func (r *Record) VisitorTimes() map[uuid.UUID]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[uuid.UUID]uint64, len(r.visitTime))
	for k, v := range r.visitTime {
		result[k] = v
	}
	return result
}

// BlockCounts возвращает копию карты поставленных блоков
func (r *Record) BlockCounts() map[uuid.UUID]uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[uuid.UUID]uint32, len(r.blocksPlaced))
	for k, v := range r.blocksPlaced {
		result[k] = v
	}
	return result
}

// HasHeightmap сообщает, был ли снят снимок высот
func (r *Record) HasHeightmap() bool {
	return r.heightmap != nil
}

// Heightmap возвращает копию снимка высот или nil
func (r *Record) Heightmap() []int64 {
	if r.heightmap == nil {
		return nil
	}
	return append(make([]int64, 0, len(r.heightmap)), r.heightmap...)
}
