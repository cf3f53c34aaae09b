package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestInitMetrics_IdempotentRegistration(t *testing.T) {
	InitMetrics()
	InitMetrics() // must not panic on double registration
}

func TestRecordStep_IncrementsCounterAndHistogram(t *testing.T) {
	InitMetrics()

	RecordStep(7, 10*time.Millisecond)

	mf := gatherFamily(t, "swarmstep_steps_total")
	if !hasLabelValue(mf, "master", "7") {
		t.Errorf("swarmstep_steps_total missing master=7 series")
	}
}

func TestRecordPhase_AndBarrierWait(t *testing.T) {
	InitMetrics()

	RecordPhase(1, "distribute", time.Millisecond)
	RecordBarrierWait(1, "step-start", time.Millisecond)

	if mf := gatherFamily(t, "swarmstep_phase_duration_seconds"); !hasLabelValue(mf, "phase", "distribute") {
		t.Errorf("swarmstep_phase_duration_seconds missing phase=distribute series")
	}
	if mf := gatherFamily(t, "swarmstep_barrier_wait_duration_seconds"); !hasLabelValue(mf, "phase", "step-start") {
		t.Errorf("swarmstep_barrier_wait_duration_seconds missing phase=step-start series")
	}
}

func TestSetCircuitBreakerOpen_TogglesGauge(t *testing.T) {
	InitMetrics()

	SetCircuitBreakerOpen(0, 1, true)
	mf := gatherFamily(t, "swarmstep_circuit_breaker_open")
	if v := gaugeValue(mf, "peer", "1"); v != 1 {
		t.Errorf("circuit breaker gauge = %v, want 1", v)
	}

	SetCircuitBreakerOpen(0, 1, false)
	mf = gatherFamily(t, "swarmstep_circuit_breaker_open")
	if v := gaugeValue(mf, "peer", "1"); v != 0 {
		t.Errorf("circuit breaker gauge = %v, want 0", v)
	}
}

func TestRecordInteractionSentAndDelivered(t *testing.T) {
	InitMetrics()

	RecordInteractionSent(0, 1, "42", 3)
	RecordInteractionDelivered(1, "42", 3)

	if mf := gatherFamily(t, "swarmstep_interactions_sent_total"); !hasLabelValue(mf, "type", "42") {
		t.Errorf("swarmstep_interactions_sent_total missing type=42 series")
	}
	if mf := gatherFamily(t, "swarmstep_interactions_delivered_total"); !hasLabelValue(mf, "type", "42") {
		t.Errorf("swarmstep_interactions_delivered_total missing type=42 series")
	}
}

func gatherFamily(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

func hasLabelValue(mf *dto.MetricFamily, label, value string) bool {
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return true
			}
		}
	}
	return false
}

func gaugeValue(mf *dto.MetricFamily, label, value string) float64 {
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return m.GetGauge().GetValue()
			}
		}
	}
	return -1
}
