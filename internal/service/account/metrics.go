package account

import "github.com/prometheus/client_golang/prometheus"

var (
	takeoversTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "spectcast",
		Subsystem: "identity",
		Name:      "takeovers_total",
		Help:      "Temporary accounts reclaimed by a new registration",
	})
	renamesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "spectcast",
		Subsystem: "identity",
		Name:      "renames_total",
		Help:      "Completed username renames",
	})
	renameOrphansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "spectcast",
		Subsystem: "identity",
		Name:      "rename_orphans_total",
		Help:      "Renames that left a duplicate old record pending reconciliation",
	})
)

func init() {
	prometheus.MustRegister(takeoversTotal, renamesTotal, renameOrphansTotal)
}
