package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Step pipeline metrics (internal/master.RunTimeStep's five phases)
	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swarmstep_step_duration_seconds",
			Help:    "Duration of a full RunTimeStep, by master",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"master"},
	)

	phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swarmstep_phase_duration_seconds",
			Help:    "Duration of a single step phase, by master and phase name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"master", "phase"},
	)

	stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmstep_steps_total",
			Help: "Total number of time steps completed, by master",
		},
		[]string{"master"},
	)

	// Barrier / control plane metrics
	barrierWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swarmstep_barrier_wait_duration_seconds",
			Help:    "Time a master spent waiting at a Synchronize barrier",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"master", "phase"},
	)

	controlOpcodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmstep_control_opcodes_total",
			Help: "Total number of control opcodes processed, by opcode and master",
		},
		[]string{"master", "opcode"},
	)

	// Attribute window (public/critical RMA) metrics
	windowFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmstep_window_fetches_total",
			Help: "Total number of remote public-attribute fetches, by master and status",
		},
		[]string{"master", "status"},
	)

	windowFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swarmstep_window_fetch_duration_seconds",
			Help:    "Duration of a remote public-attribute fetch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"master"},
	)

	windowCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmstep_window_cache_hits_total",
			Help: "Total number of public-attribute cache lookups, by master and hit/miss",
		},
		[]string{"master", "result"},
	)

	circuitBreakerOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarmstep_circuit_breaker_open",
			Help: "1 if the circuit breaker to a peer master is open, else 0",
		},
		[]string{"master", "peer"},
	)

	// Interaction exchange metrics
	interactionsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmstep_interactions_sent_total",
			Help: "Total number of interactions sent to another master, by type",
		},
		[]string{"master", "peer", "type"},
	)

	interactionsDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmstep_interactions_delivered_total",
			Help: "Total number of interactions delivered to local agents, by type",
		},
		[]string{"master", "type"},
	)

	// Agent / partition metrics
	agentsOwned = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarmstep_agents_owned",
			Help: "Number of agents currently owned by a master",
		},
		[]string{"master"},
	)

	behaviorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swarmstep_behavior_duration_seconds",
			Help:    "Duration of a single agent's Behavior call",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"master", "agent_type"},
	)

	initOnce sync.Once
)

// InitMetrics registers every swarmstep Prometheus collector exactly once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			stepDuration,
			phaseDuration,
			stepsTotal,
			barrierWaitDuration,
			controlOpcodesTotal,
			windowFetchesTotal,
			windowFetchDuration,
			windowCacheHitsTotal,
			circuitBreakerOpen,
			interactionsSentTotal,
			interactionsDeliveredTotal,
			agentsOwned,
			behaviorDuration,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// RecordStep records a completed time step's total duration.
func RecordStep(master int32, duration time.Duration) {
	m := itoa(int(master))
	stepDuration.WithLabelValues(m).Observe(duration.Seconds())
	stepsTotal.WithLabelValues(m).Inc()
}

// RecordPhase records one phase (distribute, publish, exchange, behaviors)
// of RunTimeStep.
func RecordPhase(master int32, phase string, duration time.Duration) {
	phaseDuration.WithLabelValues(itoa(int(master)), phase).Observe(duration.Seconds())
}

// RecordBarrierWait records time spent blocked at a Synchronize barrier.
func RecordBarrierWait(master int32, phase string, duration time.Duration) {
	barrierWaitDuration.WithLabelValues(itoa(int(master)), phase).Observe(duration.Seconds())
}

// RecordControlOpcode records a processed control-plane opcode.
func RecordControlOpcode(master int32, opcode string) {
	controlOpcodesTotal.WithLabelValues(itoa(int(master)), opcode).Inc()
}

// RecordWindowFetch records a remote public-attribute RMA fetch.
func RecordWindowFetch(master int32, status string, duration time.Duration) {
	m := itoa(int(master))
	windowFetchesTotal.WithLabelValues(m, status).Inc()
	windowFetchDuration.WithLabelValues(m).Observe(duration.Seconds())
}

// RecordWindowCacheResult records a public-attribute cache hit or miss.
func RecordWindowCacheResult(master int32, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	windowCacheHitsTotal.WithLabelValues(itoa(int(master)), result).Inc()
}

// SetCircuitBreakerOpen reports whether the circuit breaker to peer is open.
func SetCircuitBreakerOpen(master int32, peer int32, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	circuitBreakerOpen.WithLabelValues(itoa(int(master)), itoa(int(peer))).Set(v)
}

// RecordInteractionSent records count interactions routed to peer.
func RecordInteractionSent(master, peer int32, interactionType string, count int) {
	interactionsSentTotal.WithLabelValues(itoa(int(master)), itoa(int(peer)), interactionType).Add(float64(count))
}

// RecordInteractionDelivered records count interactions delivered to local agents.
func RecordInteractionDelivered(master int32, interactionType string, count int) {
	interactionsDeliveredTotal.WithLabelValues(itoa(int(master)), interactionType).Add(float64(count))
}

// SetAgentsOwned reports the current number of agents owned by master.
func SetAgentsOwned(master int32, count int) {
	agentsOwned.WithLabelValues(itoa(int(master))).Set(float64(count))
}

// RecordBehavior records a single agent's Behavior call duration.
func RecordBehavior(master int32, agentType string, duration time.Duration) {
	behaviorDuration.WithLabelValues(itoa(int(master)), agentType).Observe(duration.Seconds())
}
