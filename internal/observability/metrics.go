package observability

import "sync"

// Metrics provides counter, gauge, and histogram recording primitives.
type Metrics interface {
	IncCounter(name string, value float64, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

var defaultMetrics Metrics = noopMetrics{}

// SetMetrics overrides the global metrics implementation used by the system.
func SetMetrics(metrics Metrics) {
	if metrics == nil {
		defaultMetrics = noopMetrics{}
		return
	}
	defaultMetrics = metrics
}

// Telemetry returns the current global metrics collector.
func Telemetry() Metrics {
	return defaultMetrics
}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, float64, map[string]string)       {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}
func (noopMetrics) SetGauge(string, float64, map[string]string)         {}

// ReconcileSnapshot captures engine-focused runtime counters.
type ReconcileSnapshot struct {
	Passes          int            `json:"passes"`
	Mutations       map[string]int `json:"mutations"`
	OrphansRemoved  int            `json:"orphans_removed"`
	ProjectFailures int            `json:"project_failures"`
}

// ReconcileMetrics accumulates engine metrics in-memory for periodic export.
type ReconcileMetrics struct {
	mu       sync.Mutex
	snapshot ReconcileSnapshot
}

// NewReconcileMetrics constructs a metrics accumulator with empty maps.
func NewReconcileMetrics() *ReconcileMetrics {
	metrics := new(ReconcileMetrics)
	metrics.snapshot = ReconcileSnapshot{
		Passes:          0,
		Mutations:       make(map[string]int),
		OrphansRemoved:  0,
		ProjectFailures: 0,
	}
	return metrics
}

// RecordPass counts one completed reconciliation pass.
func (m *ReconcileMetrics) RecordPass() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.Passes++
}

// RecordMutation counts one cart mutation by action name.
func (m *ReconcileMetrics) RecordMutation(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.Mutations[action]++
}

// RecordOrphansRemoved accumulates orphan fee line removals.
func (m *ReconcileMetrics) RecordOrphansRemoved(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.OrphansRemoved += count
}

// RecordProjectFailure counts a project skipped due to an error.
func (m *ReconcileMetrics) RecordProjectFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.ProjectFailures++
}

// Snapshot copies the current engine metrics state for reporting.
func (m *ReconcileMetrics) Snapshot() ReconcileSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := ReconcileSnapshot{
		Passes:          m.snapshot.Passes,
		Mutations:       make(map[string]int, len(m.snapshot.Mutations)),
		OrphansRemoved:  m.snapshot.OrphansRemoved,
		ProjectFailures: m.snapshot.ProjectFailures,
	}
	for k, v := range m.snapshot.Mutations {
		out.Mutations[k] = v
	}
	return out
}
