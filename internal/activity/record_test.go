package activity

import (
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCounters(t *testing.T) {
	r := NewRecord(nil)
	a, b := uuid.New(), uuid.New()

	assert.Equal(t, uint64(0), r.VisitorTime(a))
	assert.Equal(t, uint64(0), r.TotalTime())

	r.AddPresence(a)
	r.AddPresence(a)
	r.AddPresence(b)
	assert.Equal(t, uint64(2), r.VisitorTime(a))
	assert.Equal(t, uint64(1), r.VisitorTime(b))
	assert.Equal(t, uint64(3), r.TotalTime())

	assert.Equal(t, uint32(1), r.AddBlockPlaced(b))
	assert.Equal(t, uint32(0), r.BlocksPlaced(a))
	assert.Equal(t, uint32(1), r.BlocksPlaced(b))
}

func TestRecordBlocksPlacedSaturates(t *testing.T) {
	v := uuid.New()
	r := newRecordFromMaps(
		map[uuid.UUID]uint64{},
		map[uuid.UUID]uint32{v: math.MaxUint32 - 1},
		nil,
	)

	assert.Equal(t, uint32(math.MaxUint32), r.AddBlockPlaced(v))
	assert.Equal(t, uint32(math.MaxUint32), r.AddBlockPlaced(v))
}

func TestRecordHeightmapIsCopied(t *testing.T) {
	hm := []int64{1, 2, 3}
	r := NewRecord(hm)
	hm[0] = 42

	require.True(t, r.HasHeightmap())
	got := r.Heightmap()
	assert.Equal(t, []int64{1, 2, 3}, got)

	got[1] = 42
	assert.Equal(t, []int64{1, 2, 3}, r.Heightmap())

	assert.False(t, NewRecord(nil).HasHeightmap())
	assert.Nil(t, NewRecord(nil).Heightmap())
	assert.True(t, NewRecord([]int64{}).HasHeightmap())
}

func TestRecordConcurrentIncrements(t *testing.T) {
	r := NewRecord(nil)
	v := uuid.New()

	const workers, perWorker = 16, 500
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				r.AddPresence(v)
				r.AddBlockPlaced(v)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(workers*perWorker), r.VisitorTime(v))
	assert.Equal(t, uint32(workers*perWorker), r.BlocksPlaced(v))
}
