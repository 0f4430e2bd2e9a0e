package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ArenaUsedBytes tracks the cursor position of each arena
	ArenaUsedBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slotarena_arena_used_bytes",
			Help: "Bytes handed out by an arena since its last clear",
		},
		[]string{"arena"},
	)

	// ArenaCapacityBytes tracks the fixed capacity of each arena
	ArenaCapacityBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slotarena_arena_capacity_bytes",
			Help: "Total capacity of an arena buffer",
		},
		[]string{"arena"},
	)

	// ArenaAllocFailuresTotal counts soft allocation failures
	ArenaAllocFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotarena_arena_alloc_failures_total",
			Help: "Arena allocations that returned nil",
		},
		[]string{"arena", "reason"}, // reason: "capacity", "released"
	)

	// ArenaClearsTotal counts bulk resets
	ArenaClearsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotarena_arena_clears_total",
			Help: "Number of times an arena cursor was rewound",
		},
		[]string{"arena"},
	)
)

// ArrowAllocatedBytes tracks bytes held by Arrow buffers carved from an arena
var ArrowAllocatedBytes = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "slotarena_arrow_allocated_bytes",
		Help: "Bytes handed to Arrow by an arena-backed allocator and not yet freed",
	},
	[]string{"arena"},
)
