// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes the fixed set of counters and gauges the engine
// reports per schema (§7). It's the one component with no teacher or pack
// precedent to ground on; client_golang is the de facto standard
// instrumentation library for a Go service of this shape and is named here
// rather than grounded (see the design ledger's entry for this package).
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the four named series §7 requires. Every series is
// labelled by schema name so a single process instrumenting several
// schemas reports them independently.
type Metrics struct {
	ItemCount           *prometheus.CounterVec
	LastItems           *prometheus.GaugeVec
	SchemaVersion       *prometheus.GaugeVec
	LoadPackagesCreated *prometheus.CounterVec
}

// New constructs the metric series and registers them against reg.
// Registration is idempotent: a process that constructs more than one
// engine instance against the same registry (tests, in particular) will
// see AlreadyRegisteredError on the second call, and New returns the
// already-registered collectors instead of failing, mirroring the
// "registering twice is fine" tolerance this codebase's Python counterpart
// built in for its duplicate-registration guard.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ItemCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "normalize_item_count",
			Help: "Number of items normalized, per schema.",
		}, []string{"schema"}),
		LastItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "normalize_last_items",
			Help: "Number of items normalized in the most recent run, per schema.",
		}, []string{"schema"}),
		SchemaVersion: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "normalize_schema_version",
			Help: "Version of the schema currently committed, per schema.",
		}, []string{"schema"}),
		LoadPackagesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "normalize_load_packages_created_count",
			Help: "Number of load packages created, per schema.",
		}, []string{"schema"}),
	}

	m.ItemCount = registerCounterVec(reg, m.ItemCount)
	m.LastItems = registerGaugeVec(reg, m.LastItems)
	m.SchemaVersion = registerGaugeVec(reg, m.SchemaVersion)
	m.LoadPackagesCreated = registerCounterVec(reg, m.LoadPackagesCreated)

	return m
}

func registerCounterVec(reg prometheus.Registerer, v *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(v); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		panic(err)
	}
	return v
}

func registerGaugeVec(reg prometheus.Registerer, v *prometheus.GaugeVec) *prometheus.GaugeVec {
	if err := reg.Register(v); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.GaugeVec)
		}
		panic(err)
	}
	return v
}

// ObserveSchemaVersion sets the current schema version gauge for schemaName.
// The coordinator calls it after saving the merged schema to the schema
// store and before the load package commits, so a cancelled or failed
// commit can leave it set; it is a gauge, not a counter, so that does not
// break counter monotonicity.
func (m *Metrics) ObserveSchemaVersion(schemaName string, schemaVersion int) {
	m.SchemaVersion.WithLabelValues(schemaName).Set(float64(schemaVersion))
}

// ObserveItems records itemCount against schema's running total and "most
// recent run" gauge. Callers must only invoke this after the load package
// carrying those items has committed successfully, so a retried or cancelled
// run never double-counts or counts items that were never durably written.
func (m *Metrics) ObserveItems(schemaName string, itemCount int) {
	m.ItemCount.WithLabelValues(schemaName).Add(float64(itemCount))
	m.LastItems.WithLabelValues(schemaName).Set(float64(itemCount))
}

// ObservePackageCreated increments the load-packages-created counter for
// schema.
func (m *Metrics) ObservePackageCreated(schemaName string) {
	m.LoadPackagesCreated.WithLabelValues(schemaName).Inc()
}
