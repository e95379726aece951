package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStoreMetricsCounters(t *testing.T) {
	m := NewStoreMetrics(prometheus.NewRegistry())

	m.PresenceRecorded("overworld")
	m.PresenceRecorded("overworld")
	m.BlockPlaced("the_nether")
	m.SetTrackedChunks("overworld", 7)
	m.SaveFinished("overworld", 10*time.Millisecond, nil)
	m.SaveFinished("overworld", 10*time.Millisecond, errors.New("disk full"))
	m.LoadFailed("the_end")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.presenceTicks.WithLabelValues("overworld")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.blocksPlaced.WithLabelValues("the_nether")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.trackedChunks.WithLabelValues("overworld")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.saveErrors.WithLabelValues("overworld")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loadFailures.WithLabelValues("the_end")))
}

func TestNilStoreMetricsIsSafe(t *testing.T) {
	var m *StoreMetrics
	assert.NotPanics(t, func() {
		m.PresenceRecorded("overworld")
		m.BlockPlaced("overworld")
		m.SetTrackedChunks("overworld", 1)
		m.SaveFinished("overworld", time.Second, nil)
		m.LoadFailed("overworld")
	})
}
