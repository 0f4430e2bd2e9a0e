package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolLiveSlots tracks allocated slots per pool
	PoolLiveSlots = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slotarena_pool_live_slots",
			Help: "Slots currently allocated in a pool",
		},
		[]string{"pool"},
	)

	// PoolCapacitySlots tracks the fixed slot budget per pool
	PoolCapacitySlots = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slotarena_pool_capacity_slots",
			Help: "Maximum number of slots in a pool",
		},
		[]string{"pool"},
	)

	// PoolAllocationsTotal counts successful slot allocations
	PoolAllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotarena_pool_allocations_total",
			Help: "Total slots handed out by a pool",
		},
		[]string{"pool"},
	)

	// PoolFreesTotal counts slots returned to the free list
	PoolFreesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotarena_pool_frees_total",
			Help: "Total slots returned to a pool free list",
		},
		[]string{"pool", "path"}, // path: "free", "sweep", "clear"
	)

	// PoolSweepsTotal counts sweep passes
	PoolSweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotarena_pool_sweeps_total",
			Help: "Number of sweep passes run against a pool",
		},
		[]string{"pool"},
	)

	// PoolFatalTotal counts contract violations reported by pools
	PoolFatalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotarena_pool_fatal_total",
			Help: "Fatal contract violations detected by a pool",
		},
		[]string{"pool", "kind"},
	)
)
