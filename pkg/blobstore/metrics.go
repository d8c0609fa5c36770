package blobstore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label values used by [Metrics].
const (
	opGet = "get"
	opHas = "has"

	resultHitMemory    = "hit_memory"
	resultHitPersisted = "hit_persisted"
	resultMiss         = "miss"

	saveWritten = "written"
	saveSkipped = "skipped"
	saveFailed  = "failed"

	loadLoaded  = "loaded"
	loadAbsent  = "absent"
	loadCorrupt = "corrupt"
)

// Metrics counts store activity as Prometheus collectors.
//
// One Metrics may be shared by several stores in a process. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Lookups       *prometheus.CounterVec
	Saves         *prometheus.CounterVec
	Loads         *prometheus.CounterVec
	SnapshotBytes prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors.
// Panics if registration fails (for example a duplicate registration).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blobstore_lookups_total",
			Help: "Has/Get calls by operation and outcome",
		}, []string{"op", "result"}),

		Saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blobstore_saves_total",
			Help: "Save calls by outcome (written, skipped on lock contention, failed)",
		}, []string{"result"}),

		Loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blobstore_loads_total",
			Help: "Snapshot loads at construction by outcome",
		}, []string{"result"}),

		SnapshotBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blobstore_snapshot_blob_bytes",
			Help: "Size of the last BLOB written by this process",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Lookups, m.Saves, m.Loads, m.SnapshotBytes)
	}

	return m
}

func (m *Metrics) observeLookup(op string, tier Tier) {
	if m == nil {
		return
	}

	result := resultMiss

	switch tier {
	case TierMemory:
		result = resultHitMemory
	case TierPersisted:
		result = resultHitPersisted
	}

	m.Lookups.WithLabelValues(op, result).Inc()
}

func (m *Metrics) observeSave(result string) {
	if m == nil {
		return
	}

	m.Saves.WithLabelValues(result).Inc()
}

func (m *Metrics) observeLoad(result string) {
	if m == nil {
		return
	}

	m.Loads.WithLabelValues(result).Inc()
}

func (m *Metrics) setSnapshotBytes(n int) {
	if m == nil {
		return
	}

	m.SnapshotBytes.Set(float64(n))
}
