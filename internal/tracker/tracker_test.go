package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/chunk-activity-tracker/internal/activity"
	"github.com/annel0/chunk-activity-tracker/internal/logging"
	"github.com/annel0/chunk-activity-tracker/internal/storage"
)

// fakeClock ручные часы для лимитера
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTracker(backend storage.Backend, clock *fakeClock) *Tracker {
	logger := logging.NewConsoleLogger("tracker-test")
	reg := activity.NewRegistry(activity.Options{Backend: backend, Logger: logger})
	return New(reg, Options{Clock: clock.Now, Logger: logger})
}

func TestTickLimiterThreshold(t *testing.T) {
	clock := newFakeClock()
	l := NewTickLimiter(clock.Now)
	assert.Equal(t, time.Second, l.Threshold())

	assert.False(t, l.Ready())
	clock.Advance(999 * time.Millisecond)
	assert.False(t, l.Ready())
	clock.Advance(time.Millisecond)
	assert.True(t, l.Ready())
	assert.False(t, l.Ready())
}

func TestTickLimiterResetsToNow(t *testing.T) {
	clock := newFakeClock()
	l := NewTickLimiter(clock.Now)

	// Принятый тик через 1.5 с: следующий возможен только через секунду от него
	clock.Advance(1500 * time.Millisecond)
	require.True(t, l.Ready())

	clock.Advance(600 * time.Millisecond)
	assert.False(t, l.Ready())
	clock.Advance(400 * time.Millisecond)
	assert.True(t, l.Ready())
}

func TestTickLimiterAt50Ticks(t *testing.T) {
	clock := newFakeClock()
	l := NewTickLimiter(clock.Now)
	assert.Equal(t, time.Second, l.Threshold())

	// Сервер тикает 50 раз в секунду: порог всё равно одна секунда
	accepted := 0
	for i := 0; i < 100; i++ {
		clock.Advance(20 * time.Millisecond)
		if l.Ready() {
			accepted++
		}
	}
	assert.Equal(t, 2, accepted)
}

func TestOnServerTickAtGameRate(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(storage.NewMemoryBackend(), clock)
	v := uuid.New()
	players := []Presence{{Dimension: "overworld", Visitor: v, X: 5, Z: 5}}

	// 10 секунд по 20 тиков
	for i := 0; i < 200; i++ {
		clock.Advance(50 * time.Millisecond)
		tr.OnServerTick(players)
	}

	assert.Equal(t, uint64(10), tr.GetVisitorTime("overworld", activity.ChunkPos{}, v))
}

func TestOnServerTickSkipsVisitorsWithoutDimension(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(storage.NewMemoryBackend(), clock)

	clock.Advance(time.Second)
	require.True(t, tr.OnServerTick([]Presence{{Visitor: uuid.New()}}))
	assert.Empty(t, tr.Registry().Dimensions())
}

func TestPresenceUsesBlockChunk(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(storage.NewMemoryBackend(), clock)
	v := uuid.New()
	p := Presence{Dimension: "overworld", Visitor: v, X: -1, Y: 70, Z: 33}

	clock.Advance(time.Second)
	tr.OnServerTick([]Presence{p})

	assert.Equal(t, activity.ChunkPos{X: -1, Z: 2}, p.Chunk())
	assert.Equal(t, uint64(1), tr.SecondsInCurrentChunk(p))
	assert.Equal(t, uint64(1), tr.GetTotalTime("overworld", activity.ChunkPos{X: -1, Z: 2}))
	assert.Equal(t, uint64(0), tr.SecondsInCurrentChunk(Presence{Visitor: v}))
}

func TestEndToEndScenario(t *testing.T) {
	backend := storage.NewFileBackend(storage.DirResolver(t.TempDir()))
	clock := newFakeClock()
	tr := newTestTracker(backend, clock)
	v1 := uuid.New()
	origin := activity.ChunkPos{}
	players := []Presence{{Dimension: "overworld", Visitor: v1}}

	// 21 вызов с интервалом в секунду; первый приходит в момент старта лимитера
	for i := 0; i < 21; i++ {
		if i > 0 {
			clock.Advance(time.Second)
		}
		tr.OnServerTick(players)
	}
	assert.Equal(t, uint64(20), tr.GetVisitorTime("overworld", origin, v1))

	for i := 0; i < 3; i++ {
		tr.OnBlockPlaced(players[0])
	}
	require.NoError(t, tr.OnWorldSave())
	tr.OnServerStopped()

	fresh := activity.NewRegistry(activity.Options{Backend: backend, Logger: logging.NewConsoleLogger("tracker-test")})
	s := fresh.StoreFor("overworld")
	r, ok := s.GetRecord(origin)
	require.True(t, ok)
	assert.Equal(t, uint64(20), r.VisitorTime(v1))
	assert.Equal(t, uint32(3), r.BlocksPlaced(v1))
}

func TestRunAutosaves(t *testing.T) {
	backend := storage.NewMemoryBackend()
	logger := logging.NewConsoleLogger("tracker-test")
	reg := activity.NewRegistry(activity.Options{Backend: backend, Logger: logger})
	tr := New(reg, Options{AutosaveInterval: 10 * time.Millisecond, Logger: logger})

	v := uuid.New()
	tr.RecordPresence("overworld", v, activity.ChunkPos{X: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		saved := activity.LoadStore("overworld", activity.Options{Backend: backend, Logger: logger})
		return saved.VisitorTime(activity.ChunkPos{X: 1}, v) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}
