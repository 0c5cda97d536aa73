package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestP95LoadTime(t *testing.T) {
	pm := NewPaginationMetrics()
	assert.Equal(t, int64(0), pm.P95LoadTime(), "no samples yet")

	for i := 1; i <= 100; i++ {
		pm.RecordLoad("server-fetch", time.Duration(i)*time.Millisecond, false)
	}

	assert.Equal(t, int64(95), pm.P95LoadTime())
	assert.Equal(t, int64(95), pm.GetStats()["p95_load_time_ms"])
	assert.Contains(t, pm.Report(), "p95_load=95ms")
}

func TestP95LoadTimeSingleSample(t *testing.T) {
	pm := NewPaginationMetrics()
	pm.RecordLoad("client-reveal", 7*time.Millisecond, false)
	assert.Equal(t, int64(7), pm.P95LoadTime())
}

func TestResetClearsTimingWindow(t *testing.T) {
	pm := NewPaginationMetrics()
	pm.RecordLoad("server-fetch", 50*time.Millisecond, false)
	pm.Reset()
	assert.Equal(t, int64(0), pm.P95LoadTime())
	assert.Equal(t, float64(0), pm.AvgLoadTime())
}
