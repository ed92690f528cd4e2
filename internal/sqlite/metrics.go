package sqlite

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// metrics holds the backend's Prometheus counters.
type metrics struct {
	cascadeDeleted  *prometheus.CounterVec
	migrationSteps  *prometheus.CounterVec
	alertsCreated   *prometheus.CounterVec
	orphansRemoved  *prometheus.CounterVec
	numbersReserved *prometheus.CounterVec
	recreations     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		cascadeDeleted: registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: "vetlab",
			Name:      "cascade_deleted_rows_total",
			Help:      "Rows removed by cascading deletes, by table.",
		}, "table"),
		migrationSteps: registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: "vetlab",
			Name:      "migration_steps_total",
			Help:      "Schema migration steps run on attach, by outcome.",
		}, "outcome"),
		alertsCreated: registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: "vetlab",
			Name:      "alerts_created_total",
			Help:      "Alerts written to the ledger, by action type.",
		}, "action"),
		orphansRemoved: registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: "vetlab",
			Name:      "orphans_removed_total",
			Help:      "Orphaned rows removed by cleanup, by table.",
		}, "table"),
		numbersReserved: registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: "vetlab",
			Name:      "numbers_reserved_total",
			Help:      "Procedure numbers reserved, by domain suffix.",
		}, "suffix"),
		recreations: registerCounter(reg, prometheus.CounterOpts{
			Namespace: "vetlab",
			Name:      "store_recreations_total",
			Help:      "Stores discarded and recreated after a failed integrity probe.",
		}),
	}
}

// registerCounterVec registers a counter vector, reusing the collector
// already registered under the same name.
func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func registerCounter(reg prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) observeStep(step types.MigrationStep) {
	outcome := "skipped"
	switch {
	case step.Error != "":
		outcome = "failed"
	case step.Applied || step.Rows > 0:
		outcome = "applied"
	}
	m.migrationSteps.WithLabelValues(outcome).Inc()
}

// observeTxn records the counters of a committed write.
func (m *metrics) observeTxn(w *txn) {
	removed := m.cascadeDeleted
	if w.orphanPass {
		removed = m.orphansRemoved
	}
	for table, n := range w.result.Removed {
		removed.WithLabelValues(table).Add(float64(n))
	}
	for _, action := range w.alertActions {
		m.alertsCreated.WithLabelValues(action).Inc()
	}
	for _, suffix := range w.reserved {
		m.numbersReserved.WithLabelValues(suffix).Inc()
	}
}
