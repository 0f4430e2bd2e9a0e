// Package metrics holds the Prometheus collectors for arenas, pools and the
// logging layer. Collectors register with the default registry on import.
//
// Arena series are labelled by arena name and pool series by
// "<arena>/<type tag>". Names are not made unique, so two live arenas with
// the same name overwrite each other's gauges; hosts that want separate
// series give their arenas distinct names.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LogEntriesTotal counts log entries by level
	LogEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotarena_log_entries_total",
			Help: "Total number of log entries by level",
		},
		[]string{"level"},
	)

	// LogErrorsTotal counts error-level log entries specifically
	LogErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slotarena_log_errors_total",
			Help: "Total number of error log entries",
		},
	)
)
