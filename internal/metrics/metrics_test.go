package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// gatheredValue returns the summed counter or gauge value of a metric family
func gatheredValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		var total float64
		for _, metric := range family.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
		return total
	}

	t.Fatalf("Metric %s not found", name)
	return 0
}

func TestNewMetricsRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordChunkCaptured(5, 160000)
	m.RecordChunkCaptured(5, 160000)
	m.RecordTranslation("pt", true, 0.2)
	m.RecordTranslation("pt", false, 0.1)
	m.RecordStreamCreated()

	if got := gatheredValue(t, reg, "translator_chunks_captured_total"); got != 2 {
		t.Errorf("Expected 2 chunks captured, got %v", got)
	}

	if got := gatheredValue(t, reg, "translator_translation_requests_total"); got != 2 {
		t.Errorf("Expected 2 translation requests, got %v", got)
	}

	if got := gatheredValue(t, reg, "translator_translation_failures_total"); got != 1 {
		t.Errorf("Expected 1 translation failure, got %v", got)
	}

	if got := gatheredValue(t, reg, "translator_active_streams"); got != 1 {
		t.Errorf("Expected 1 active stream, got %v", got)
	}

	// A second set on the same registry must conflict
	defer func() {
		if recover() == nil {
			t.Error("Expected duplicate registration to panic")
		}
	}()
	NewMetrics(reg)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	m.RecordPacketReceived()
	m.RecordChunkCaptured(1, 100)
	m.RecordChunksDiscarded(3)
	m.RecordTranslation("de", true, 0.1)
	m.RecordHTTPRequest("GET", "/status", "200", 0.01)
	m.SetPipelineState(1)
}
