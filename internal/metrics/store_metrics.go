package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics Prometheus-метрики хранилища активности.
// Все методы безопасны для nil-получателя: без метрик хранилище работает так же.
type StoreMetrics struct {
	presenceTicks *prometheus.CounterVec
	blocksPlaced  *prometheus.CounterVec
	trackedChunks *prometheus.GaugeVec
	saveDuration  *prometheus.HistogramVec
	saveErrors    *prometheus.CounterVec
	loadFailures  *prometheus.CounterVec
}

// NewStoreMetrics создаёт метрики и регистрирует их в reg.
// Если reg == nil, используется глобальный регистр Prometheus.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &StoreMetrics{
		presenceTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunk_activity",
			Name:      "presence_ticks_total",
			Help:      "Принятые секунды присутствия посетителей в чанках.",
		}, []string{"dimension"}),
		blocksPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunk_activity",
			Name:      "blocks_placed_total",
			Help:      "Учтённые установки блоков.",
		}, []string{"dimension"}),
		trackedChunks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chunk_activity",
			Name:      "tracked_chunks",
			Help:      "Количество чанков с записями активности.",
		}, []string{"dimension"}),
		saveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chunk_activity",
			Name:      "save_duration_seconds",
			Help:      "Длительность сохранения измерения (кодирование, сжатие, запись).",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"dimension"}),
		saveErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunk_activity",
			Name:      "save_errors_total",
			Help:      "Неудачные сохранения измерений.",
		}, []string{"dimension"}),
		loadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunk_activity",
			Name:      "load_failures_total",
			Help:      "Загрузки, закончившиеся пустым хранилищем из-за повреждённых данных.",
		}, []string{"dimension"}),
	}

	reg.MustRegister(m.presenceTicks, m.blocksPlaced, m.trackedChunks,
		m.saveDuration, m.saveErrors, m.loadFailures)
	return m
}

func (m *StoreMetrics) PresenceRecorded(dimension string) {
	if m == nil {
		return
	}
	m.presenceTicks.WithLabelValues(dimension).Inc()
}

func (m *StoreMetrics) BlockPlaced(dimension string) {
	if m == nil {
		return
	}
	m.blocksPlaced.WithLabelValues(dimension).Inc()
}

func (m *StoreMetrics) SetTrackedChunks(dimension string, n int) {
	if m == nil {
		return
	}
	m.trackedChunks.WithLabelValues(dimension).Set(float64(n))
}

// SaveFinished фиксирует длительность и результат сохранения
func (m *StoreMetrics) SaveFinished(dimension string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.saveDuration.WithLabelValues(dimension).Observe(took.Seconds())
	if err != nil {
		m.saveErrors.WithLabelValues(dimension).Inc()
	}
}

func (m *StoreMetrics) LoadFailed(dimension string) {
	if m == nil {
		return
	}
	m.loadFailures.WithLabelValues(dimension).Inc()
}
