package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics counts what the engine wrote. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	EntriesAppended  prometheus.Counter
	JournalsCreated  prometheus.Counter
	ManifestFailures prometheus.Counter
	RulesLearned     *prometheus.CounterVec
	RuleLoads        prometheus.Counter
	AppendDuration   prometheus.Histogram
}

// New registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EntriesAppended: f.NewCounter(prometheus.CounterOpts{
			Name: "quickledger_entries_appended_total",
			Help: "Total number of ledger entries appended to journals",
		}),
		JournalsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "quickledger_journals_created_total",
			Help: "Total number of monthly journal files created",
		}),
		ManifestFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "quickledger_manifest_failures_total",
			Help: "Total number of failed manifest include updates",
		}),
		RulesLearned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quickledger_rules_learned_total",
			Help: "Learned rules written, by outcome (created or updated)",
		}, []string{"outcome"}),
		RuleLoads: f.NewCounter(prometheus.CounterOpts{
			Name: "quickledger_rule_loads_total",
			Help: "Rule set loads from the store (cache misses)",
		}),
		AppendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "quickledger_append_duration_seconds",
			Help:    "Duration of journal appends including the manifest update",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

func (m *Metrics) IncrementAppended() {
	if m != nil {
		m.EntriesAppended.Inc()
	}
}

func (m *Metrics) IncrementJournalsCreated() {
	if m != nil {
		m.JournalsCreated.Inc()
	}
}

func (m *Metrics) IncrementManifestFailures() {
	if m != nil {
		m.ManifestFailures.Inc()
	}
}

func (m *Metrics) IncrementLearned(outcome string) {
	if m != nil {
		m.RulesLearned.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementRuleLoads() {
	if m != nil {
		m.RuleLoads.Inc()
	}
}

// ObserveAppend records the duration of an append. Call with time.Now() at the
// start of the operation.
func (m *Metrics) ObserveAppend(start time.Time) {
	if m != nil {
		m.AppendDuration.Observe(time.Since(start).Seconds())
	}
}

// Snapshot is a point-in-time read of the counters.
type Snapshot struct {
	EntriesAppended  float64
	JournalsCreated  float64
	ManifestFailures float64
	RulesCreated     float64
	RulesUpdated     float64
	RuleLoads        float64
	Appends          uint64
	AppendSeconds    float64
}

// Snapshot reads the current values back out of the collectors.
func (m *Metrics) Snapshot() Snapshot {
	var s Snapshot
	if m == nil {
		return s
	}
	s.EntriesAppended = counterValue(m.EntriesAppended)
	s.JournalsCreated = counterValue(m.JournalsCreated)
	s.ManifestFailures = counterValue(m.ManifestFailures)
	s.RulesCreated = counterValue(m.RulesLearned.WithLabelValues("created"))
	s.RulesUpdated = counterValue(m.RulesLearned.WithLabelValues("updated"))
	s.RuleLoads = counterValue(m.RuleLoads)

	var pb dto.Metric
	if err := m.AppendDuration.Write(&pb); err == nil && pb.Histogram != nil {
		s.Appends = pb.Histogram.GetSampleCount()
		s.AppendSeconds = pb.Histogram.GetSampleSum()
	}
	return s
}

func counterValue(c prometheus.Counter) float64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil || pb.Counter == nil {
		return 0
	}
	return pb.Counter.GetValue()
}
