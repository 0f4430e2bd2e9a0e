package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsInitialization(t *testing.T) {
	assert.NotNil(t, ArenaUsedBytes)
	assert.NotNil(t, ArenaCapacityBytes)
	assert.NotNil(t, ArenaAllocFailuresTotal)
	assert.NotNil(t, ArenaClearsTotal)
	assert.NotNil(t, ArrowAllocatedBytes)
	assert.NotNil(t, PoolLiveSlots)
	assert.NotNil(t, PoolCapacitySlots)
	assert.NotNil(t, PoolAllocationsTotal)
	assert.NotNil(t, PoolFreesTotal)
	assert.NotNil(t, PoolSweepsTotal)
	assert.NotNil(t, PoolFatalTotal)
	assert.NotNil(t, LogEntriesTotal)
	assert.NotNil(t, LogErrorsTotal)
}

func TestArenaGauges(t *testing.T) {
	ArenaCapacityBytes.WithLabelValues("metrics-test").Set(4096)
	ArenaUsedBytes.WithLabelValues("metrics-test").Set(128)

	assert.Equal(t, 4096.0, testutil.ToFloat64(ArenaCapacityBytes.WithLabelValues("metrics-test")))
	assert.Equal(t, 128.0, testutil.ToFloat64(ArenaUsedBytes.WithLabelValues("metrics-test")))
}

func TestPoolFreePaths(t *testing.T) {
	for _, path := range []string{"free", "sweep", "clear"} {
		PoolFreesTotal.WithLabelValues("metrics-test/pool", path).Inc()
	}
	PoolFreesTotal.WithLabelValues("metrics-test/pool", "sweep").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(PoolFreesTotal.WithLabelValues("metrics-test/pool", "free")))
	assert.Equal(t, 2.0, testutil.ToFloat64(PoolFreesTotal.WithLabelValues("metrics-test/pool", "sweep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(PoolFreesTotal.WithLabelValues("metrics-test/pool", "clear")))
}

func TestMetricNamesArePrefixed(t *testing.T) {
	expected := `
# HELP slotarena_pool_sweeps_total Number of sweep passes run against a pool
# TYPE slotarena_pool_sweeps_total counter
slotarena_pool_sweeps_total{pool="prefix-test"} 1
`
	PoolSweepsTotal.WithLabelValues("prefix-test").Inc()
	err := testutil.CollectAndCompare(PoolSweepsTotal, strings.NewReader(expected), "slotarena_pool_sweeps_total")
	require.NoError(t, err)
}
