package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はレジストリから指定名・ラベルのメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	if NewCollector(prometheus.NewRegistry()) == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestRecordLogin_CountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin("connected")
	c.RecordLogin("connected")
	c.RecordLogin("ANTI_FORGERY_MISMATCH")

	if v := findMetric(t, reg, "catalog_logins_total", map[string]string{"result": "connected"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("connected = %v, want 2", v)
	}
	if v := findMetric(t, reg, "catalog_logins_total", map[string]string{"result": "ANTI_FORGERY_MISMATCH"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("ANTI_FORGERY_MISMATCH = %v, want 1", v)
	}
}

func TestRecordItemMutation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordItemMutation("create", "ok")
	c.RecordItemMutation("delete", "NOT_OWNER")

	m := findMetric(t, reg, "catalog_item_mutations_total", map[string]string{"operation": "delete", "result": "NOT_OWNER"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("delete/NOT_OWNER = %v, want 1", v)
	}
}

func TestRecordHTTPStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)
	c.RecordHTTPStatus(404)

	if v := findMetric(t, reg, "catalog_http_status_total", map[string]string{"status_code": "404"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("404 = %v, want 2", v)
	}
}

func TestRecordRequestLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequestLatency("/catalog/{category}/items/", 150*time.Millisecond)

	m := findMetric(t, reg, "catalog_request_latency_seconds", map[string]string{"route": "/catalog/{category}/items/"})
	if n := m.GetHistogram().GetSampleCount(); n != 1 {
		t.Errorf("sample count = %d, want 1", n)
	}
	if s := m.GetHistogram().GetSampleSum(); s < 0.149 || s > 0.151 {
		t.Errorf("sample sum = %v, want ~0.15", s)
	}
}

func TestRecordSessionsCleaned(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionsCleaned(3)
	c.RecordSessionsCleaned(0)

	if v := findMetric(t, reg, "catalog_sessions_cleaned_total", nil).GetCounter().GetValue(); v != 3 {
		t.Errorf("sessions_cleaned = %v, want 3", v)
	}
}
