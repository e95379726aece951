package activity

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/chunk-activity-tracker/internal/logging"
	"github.com/annel0/chunk-activity-tracker/internal/metrics"
	"github.com/annel0/chunk-activity-tracker/internal/storage"
)

const overworld = "minecraft:overworld"

type countingProvider struct {
	calls atomic.Int32
	words []int64
}

func (p *countingProvider) Heightmap(dimension string, pos ChunkPos) ([]int64, bool) {
	p.calls.Add(1)
	return p.words, true
}

type failingBackend struct {
	storage.Backend
	writeErr error
}

func (fb *failingBackend) Write(ctx context.Context, dimension string, data []byte) error {
	return fb.writeErr
}

func testOptions(backend storage.Backend) Options {
	return Options{
		Backend: backend,
		Metrics: metrics.NewStoreMetrics(prometheus.NewRegistry()),
		Logger:  logging.NewConsoleLogger("activity-test"),
	}
}

func gzipped(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(raw)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestGetRecordHasNoSideEffects(t *testing.T) {
	s := NewStore(overworld, testOptions(nil))

	_, ok := s.GetRecord(ChunkPos{1, 2})
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, uint64(0), s.VisitorTime(ChunkPos{1, 2}, uuid.New()))
	assert.Equal(t, uint64(0), s.TotalTime(ChunkPos{1, 2}))
	assert.Equal(t, 0, s.Len())
}

func TestGetOrCreateRecordConcurrent(t *testing.T) {
	s := NewStore(overworld, testOptions(nil))
	pos := ChunkPos{X: -7, Z: 12}

	const workers = 64
	results := make([]*Record, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.GetOrCreateRecord(pos, nil)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.Equal(t, 1, s.Len())
}

func TestConcurrentPresenceAcrossChunks(t *testing.T) {
	s := NewStore(overworld, testOptions(nil))
	v := uuid.New()
	positions := []ChunkPos{{0, 0}, {0, 1}, {-1, 0}, {5, -5}}

	const perChunk = 200
	var wg sync.WaitGroup
	for _, pos := range positions {
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(pos ChunkPos) {
				defer wg.Done()
				for i := 0; i < perChunk; i++ {
					s.RecordPresence(pos, v)
				}
			}(pos)
		}
	}
	wg.Wait()

	for _, pos := range positions {
		assert.Equal(t, uint64(4*perChunk), s.VisitorTime(pos, v), "chunk %s", pos)
	}
	assert.Equal(t, len(positions), s.Len())
}

func TestRecordBlockPlacementCreatesRecord(t *testing.T) {
	s := NewStore(overworld, testOptions(nil))
	v := uuid.New()

	assert.Equal(t, uint32(1), s.RecordBlockPlacement(ChunkPos{3, 3}, v))
	r, ok := s.GetRecord(ChunkPos{3, 3})
	require.True(t, ok)
	assert.Equal(t, uint32(1), r.BlocksPlaced(v))
	assert.Equal(t, uint64(0), r.TotalTime())
}

func TestHeightmapCapturedOnlyWhenEnabled(t *testing.T) {
	provider := &countingProvider{words: []int64{1, 2}}
	enabled := false

	opts := testOptions(nil)
	opts.Heightmaps = provider
	opts.StoreHeightmaps = func() bool { return enabled }
	s := NewStore(overworld, opts)

	s.RecordPresence(ChunkPos{0, 0}, uuid.New())
	r, _ := s.GetRecord(ChunkPos{0, 0})
	assert.False(t, r.HasHeightmap())
	assert.Equal(t, int32(0), provider.calls.Load())

	enabled = true
	s.RecordPresence(ChunkPos{1, 0}, uuid.New())
	s.RecordPresence(ChunkPos{1, 0}, uuid.New())
	r, _ = s.GetRecord(ChunkPos{1, 0})
	assert.Equal(t, []int64{1, 2}, r.Heightmap())
	assert.Equal(t, int32(1), provider.calls.Load())

	// Существующая запись не получает снимок задним числом
	r, _ = s.GetRecord(ChunkPos{0, 0})
	assert.False(t, r.HasHeightmap())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	backend := storage.NewFileBackend(storage.DirResolver(t.TempDir()))
	a, b := uuid.New(), uuid.New()

	s := NewStore(overworld, testOptions(backend))
	for i := 0; i < 5; i++ {
		s.RecordPresence(ChunkPos{10, -3}, a)
	}
	s.RecordPresence(ChunkPos{10, -3}, b)
	s.RecordBlockPlacement(ChunkPos{-100, 200}, b)
	s.GetOrCreateRecord(ChunkPos{1, 1}, &countingProvider{words: []int64{}})

	require.NoError(t, s.Save())

	loaded := LoadStore(overworld, testOptions(backend))
	assert.Equal(t, overworld, loaded.Dimension())
	assert.Equal(t, 3, loaded.Len())
	assert.Equal(t, uint64(5), loaded.VisitorTime(ChunkPos{10, -3}, a))
	assert.Equal(t, uint64(6), loaded.TotalTime(ChunkPos{10, -3}))

	r, ok := loaded.GetRecord(ChunkPos{-100, 200})
	require.True(t, ok)
	assert.Equal(t, uint32(1), r.BlocksPlaced(b))
	assert.False(t, r.HasHeightmap())
	assert.ElementsMatch(t, s.Chunks(), loaded.Chunks())
}

func TestLoadMissingDataGivesEmptyStore(t *testing.T) {
	s := LoadStore("minecraft:the_end", testOptions(storage.NewMemoryBackend()))
	assert.Equal(t, "minecraft:the_end", s.Dimension())
	assert.Equal(t, 0, s.Len())
}

func TestLoadCorruptDataGivesEmptyStore(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()

	require.NoError(t, backend.Write(ctx, "not_gzip", []byte("definitely not gzip")))
	_, err := readTable(backend, "not_gzip")
	assert.ErrorIs(t, err, ErrCompression)
	assert.Equal(t, 0, LoadStore("not_gzip", testOptions(backend)).Len())

	require.NoError(t, backend.Write(ctx, "bad_table", gzipped(t, []byte{0, 0, 0, 1, 0, 0})))
	_, err = readTable(backend, "bad_table")
	assert.ErrorIs(t, err, ErrMalformedRecord)
	assert.Equal(t, 0, LoadStore("bad_table", testOptions(backend)).Len())
}

func TestLoadTruncatedDataGivesEmptyStore(t *testing.T) {
	backend := storage.NewMemoryBackend()

	records := make(map[int64]*Record)
	for i := int32(0); i < 64; i++ {
		r := NewRecord(nil)
		r.AddPresence(uuid.New())
		records[ChunkPos{i, -i}.Pack()] = r
	}
	var raw bytes.Buffer
	require.NoError(t, EncodeTable(&raw, overworld, records))

	full := gzipped(t, raw.Bytes())
	require.Greater(t, len(full), 64)
	truncated := full[:len(full)/2]
	require.NoError(t, backend.Write(context.Background(), overworld, truncated))

	_, err := readTable(backend, overworld)
	assert.ErrorIs(t, err, ErrCompression)

	s := LoadStore(overworld, testOptions(backend))
	assert.Equal(t, overworld, s.Dimension())
	assert.Equal(t, 0, s.Len())
}

func TestLoadUsesRequestedDimension(t *testing.T) {
	backend := storage.NewMemoryBackend()

	var raw bytes.Buffer
	require.NoError(t, EncodeTable(&raw, "somewhere_else", map[int64]*Record{0: NewRecord(nil)}))
	require.NoError(t, backend.Write(context.Background(), "minecraft:the_nether", gzipped(t, raw.Bytes())))

	s := LoadStore("minecraft:the_nether", testOptions(backend))
	assert.Equal(t, "minecraft:the_nether", s.Dimension())
	assert.Equal(t, 1, s.Len())
}

func TestSaveErrorIsReturnedAndStateKept(t *testing.T) {
	diskFull := errors.New("no space left on device")
	s := NewStore(overworld, testOptions(&failingBackend{Backend: storage.NewMemoryBackend(), writeErr: diskFull}))
	v := uuid.New()
	s.RecordPresence(ChunkPos{0, 0}, v)

	err := s.Save()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, diskFull)
	assert.Equal(t, uint64(1), s.VisitorTime(ChunkPos{0, 0}, v))
}
