package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMonitor_Record(t *testing.T) {
	m := NewMonitor()

	m.Record("/login", 10*time.Millisecond, false)
	m.Record("/login", 20*time.Millisecond, true)
	m.Record("/login", 30*time.Millisecond, false)
	m.Record("static", 200*time.Microsecond, false)

	snap := m.Snapshot()
	if len(snap) != 2 || snap[0].Route != "/login" || snap[1].Route != "static" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	login := snap[0]
	if login.Count != 3 || login.Errors != 1 {
		t.Errorf("count/errors = %d/%d", login.Count, login.Errors)
	}
	if login.Avg != 20*time.Millisecond || login.Min != 10*time.Millisecond || login.Max != 30*time.Millisecond {
		t.Errorf("avg/min/max = %v/%v/%v", login.Avg, login.Min, login.Max)
	}
	if snap[1].Buckets[0] != 1 {
		t.Errorf("sub-millisecond request not in first bucket: %v", snap[1].Buckets)
	}
	if m.Total() != 4 {
		t.Errorf("Total() = %d, want 4", m.Total())
	}

	m.SetEnabled(false)
	if m.Enabled() {
		t.Error("Enabled() after SetEnabled(false)")
	}
	m.Record("/login", time.Millisecond, false)
	if m.Total() != 4 {
		t.Error("disabled monitor still recorded")
	}
}

func TestMonitor_Bottlenecks(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 100; i++ {
		m.Record("/slow", 150*time.Millisecond, false)
		m.Record("/flaky", time.Millisecond, i%10 == 0)
		m.Record("/fine", time.Millisecond, false)
	}

	found := map[string]string{}
	for _, b := range m.Bottlenecks() {
		found[b.Route] = b.Type
	}
	if found["/slow"] != "latency" || found["/flaky"] != "errors" {
		t.Errorf("unexpected bottlenecks %v", found)
	}
	if _, ok := found["/fine"]; ok {
		t.Error("healthy route flagged")
	}
}

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Accepted.Inc()
	m.ActiveConns.Inc()
	m.ObserveResponse("static", 200, time.Millisecond)
	m.ObserveResponse("static", 404, time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, f := range families {
		got[f.GetName()] = true
	}
	for _, name := range []string{
		"reactor_conn_accepted_total",
		"reactor_conn_active",
		"reactor_http_responses_total",
		"reactor_http_request_duration_seconds",
	} {
		if !got[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}
}

func BenchmarkMonitor_Record(b *testing.B) {
	m := NewMonitor()
	d := 10 * time.Millisecond
	for i := 0; i < b.N; i++ {
		m.Record("/login", d, false)
	}
}
