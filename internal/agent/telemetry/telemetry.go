package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammad-safakhou/lumina/config"
)

// Telemetry records pipeline activity. A nil *Telemetry is valid and records nothing.
type Telemetry struct {
	config  config.TelemetryConfig
	logger  *log.Logger
	metrics *Metrics

	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	stageDuration *prometheus.HistogramVec
	fallbacks     *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
}

// Metrics holds in-process counters mirrored from the prometheus collectors.
type Metrics struct {
	mu sync.RWMutex

	TotalRuns             int64
	SuccessfulRuns        int64
	FailedRuns            int64
	AverageProcessingTime time.Duration

	StageExecutions   map[string]int64
	StageAverageTimes map[string]time.Duration
	Fallbacks         map[string]int64
	ProviderCalls     map[string]int64
}

// Snapshot is a copy of Metrics safe to hand out.
type Snapshot struct {
	TotalRuns             int64                    `json:"totalRuns"`
	SuccessfulRuns        int64                    `json:"successfulRuns"`
	FailedRuns            int64                    `json:"failedRuns"`
	AverageProcessingTime time.Duration            `json:"averageProcessingTimeNs"`
	StageExecutions       map[string]int64         `json:"stageExecutions"`
	StageAverageTimes     map[string]time.Duration `json:"stageAverageTimesNs"`
	Fallbacks             map[string]int64         `json:"fallbacks"`
	ProviderCalls         map[string]int64         `json:"providerCalls"`
}

// NewTelemetry creates a telemetry instance and registers its collectors on reg.
// A nil registerer keeps the collectors unregistered.
func NewTelemetry(cfg config.TelemetryConfig, reg prometheus.Registerer) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			StageExecutions:   make(map[string]int64),
			StageAverageTimes: make(map[string]time.Duration),
			Fallbacks:         make(map[string]int64),
			ProviderCalls:     make(map[string]int64),
		},
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lumina",
			Subsystem: "draft",
			Name:      "runs_total",
			Help:      "Draft pipeline runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lumina",
			Subsystem: "draft",
			Name:      "run_duration_seconds",
			Help:      "End to end draft pipeline latency.",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 80, 160, 320},
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lumina",
			Subsystem: "draft",
			Name:      "stage_duration_seconds",
			Help:      "Latency of each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lumina",
			Subsystem: "draft",
			Name:      "fallbacks_total",
			Help:      "Stage fallbacks taken after a provider failure.",
		}, []string{"stage"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lumina",
			Subsystem: "draft",
			Name:      "provider_calls_total",
			Help:      "Generation and search calls issued by the pipeline.",
		}, []string{"kind", "outcome"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{t.runs, t.runDuration, t.stageDuration, t.fallbacks, t.providerCalls} {
			if err := reg.Register(c); err != nil {
				t.logger.Printf("register collector: %v", err)
			}
		}
	}
	return t
}

// RecordRun records one finished pipeline run.
func (t *Telemetry) RecordRun(mode string, success bool, d time.Duration) {
	if t == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	t.runs.WithLabelValues(mode, outcome).Inc()
	t.runDuration.Observe(d.Seconds())

	m := t.metrics
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalRuns++
	if success {
		m.SuccessfulRuns++
	} else {
		m.FailedRuns++
	}
	m.AverageProcessingTime = rollingAverage(m.AverageProcessingTime, d, m.TotalRuns)
}

// RecordStage records the duration of a completed stage.
func (t *Telemetry) RecordStage(stage string, d time.Duration) {
	if t == nil {
		return
	}
	t.stageDuration.WithLabelValues(stage).Observe(d.Seconds())

	m := t.metrics
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StageExecutions[stage]++
	m.StageAverageTimes[stage] = rollingAverage(m.StageAverageTimes[stage], d, m.StageExecutions[stage])
}

// RecordFallback counts a stage falling back to its default value.
func (t *Telemetry) RecordFallback(stage string) {
	if t == nil {
		return
	}
	t.fallbacks.WithLabelValues(stage).Inc()

	t.metrics.mu.Lock()
	t.metrics.Fallbacks[stage]++
	t.metrics.mu.Unlock()
}

// RecordProviderCall counts one generation or search call.
func (t *Telemetry) RecordProviderCall(kind string, err error) {
	if t == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	t.providerCalls.WithLabelValues(kind, outcome).Inc()

	t.metrics.mu.Lock()
	t.metrics.ProviderCalls[kind+":"+outcome]++
	t.metrics.mu.Unlock()
}

// GetMetrics returns a copy of the current counters.
func (t *Telemetry) GetMetrics() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	m := t.metrics
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		TotalRuns:             m.TotalRuns,
		SuccessfulRuns:        m.SuccessfulRuns,
		FailedRuns:            m.FailedRuns,
		AverageProcessingTime: m.AverageProcessingTime,
		StageExecutions:       copyMap(m.StageExecutions),
		StageAverageTimes:     copyMap(m.StageAverageTimes),
		Fallbacks:             copyMap(m.Fallbacks),
		ProviderCalls:         copyMap(m.ProviderCalls),
	}
}

func rollingAverage(avg, d time.Duration, n int64) time.Duration {
	if n <= 1 {
		return d
	}
	return avg + (d-avg)/time.Duration(n)
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
