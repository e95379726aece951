package tracker

import (
	"sync"
	"time"
)

const (
	// TicksPerAcceptedCall сколько тиков должно пройти между принятыми вызовами
	TicksPerAcceptedCall = 20

	// TickDuration номинальная длительность тика (20 тиков в секунду).
	// Счётчики активности ведутся в секундах, поэтому порог не зависит
	// от фактической частоты тиков сервера.
	TickDuration = 50 * time.Millisecond

	// AcceptInterval порог между принятыми вызовами, ровно одна секунда
	AcceptInterval = TicksPerAcceptedCall * TickDuration
)

// Clock источник текущего времени; подменяется в тестах
type Clock func() time.Time

// TickLimiter пропускает не чаще одного вызова за TicksPerAcceptedCall тиков.
//
// После принятого вызова точка отсчёта сбрасывается на текущий момент,
// а не на момент порога: остаток не переносится, и при нерегулярных тиках
// реальные интервалы немного длиннее секунды.
type TickLimiter struct {
	mu        sync.Mutex
	clock     Clock
	threshold time.Duration
	last      time.Time
}

// NewTickLimiter создаёт лимитер; отсчёт начинается с момента создания
func NewTickLimiter(clock Clock) *TickLimiter {
	if clock == nil {
		clock = time.Now
	}

	return &TickLimiter{
		clock:     clock,
		threshold: AcceptInterval,
		last:      clock(),
	}
}

// Ready сообщает, пора ли выполнять вызов, и если да, сбрасывает отсчёт
func (l *TickLimiter) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if now.Sub(l.last) < l.threshold {
		return false
	}

	l.last = now
	return true
}

// Threshold интервал между принятыми вызовами
func (l *TickLimiter) Threshold() time.Duration {
	return l.threshold
}
