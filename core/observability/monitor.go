package observability

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor keeps per-route latency and error counters for the stats
// endpoint. Recording is lock-free after a route's first request.
type Monitor struct {
	enabled atomic.Bool
	routes  sync.Map
	total   atomic.Uint64
}

type routeMetrics struct {
	count          atomic.Uint64
	errors         atomic.Uint64
	totalDuration  atomic.Uint64
	minDuration    atomic.Uint64
	maxDuration    atomic.Uint64
	latencyBuckets [len(bucketBounds) + 1]atomic.Uint64
}

var bucketBounds = [...]time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// RouteStats is a point-in-time copy of one route's counters
type RouteStats struct {
	Route   string        `json:"route"`
	Count   uint64        `json:"count"`
	Errors  uint64        `json:"errors"`
	Avg     time.Duration `json:"avg_ns"`
	Min     time.Duration `json:"min_ns"`
	Max     time.Duration `json:"max_ns"`
	Buckets []uint64      `json:"buckets"`
}

// Bottleneck flags a route whose latency or error rate is out of line
type Bottleneck struct {
	Type     string  `json:"type"`
	Route    string  `json:"route"`
	Severity int     `json:"severity"`
	Impact   float64 `json:"impact"`
	Details  string  `json:"details"`
}

// NewMonitor creates an enabled monitor
func NewMonitor() *Monitor {
	m := &Monitor{}
	m.enabled.Store(true)
	return m
}

// SetEnabled turns recording on or off
func (m *Monitor) SetEnabled(on bool) { m.enabled.Store(on) }

// Enabled reports whether recording is on
func (m *Monitor) Enabled() bool { return m.enabled.Load() }

// Record adds one request for route
func (m *Monitor) Record(route string, d time.Duration, isError bool) {
	if !m.enabled.Load() {
		return
	}
	val, _ := m.routes.LoadOrStore(route, &routeMetrics{})
	rm := val.(*routeMetrics)

	rm.count.Add(1)
	if isError {
		rm.errors.Add(1)
	}
	ns := uint64(d.Nanoseconds())
	rm.totalDuration.Add(ns)
	storeMin(&rm.minDuration, ns)
	storeMax(&rm.maxDuration, ns)
	rm.latencyBuckets[bucketIndex(d)].Add(1)
	m.total.Add(1)
}

func storeMin(v *atomic.Uint64, d uint64) {
	for {
		cur := v.Load()
		if cur != 0 && d >= cur {
			return
		}
		if v.CompareAndSwap(cur, d) {
			return
		}
	}
}

func storeMax(v *atomic.Uint64, d uint64) {
	for {
		cur := v.Load()
		if d <= cur {
			return
		}
		if v.CompareAndSwap(cur, d) {
			return
		}
	}
}

func bucketIndex(d time.Duration) int {
	for i, bound := range bucketBounds {
		if d < bound {
			return i
		}
	}
	return len(bucketBounds)
}

// Total returns the number of recorded requests across routes
func (m *Monitor) Total() uint64 { return m.total.Load() }

// Snapshot returns the counters of every route, sorted by route
func (m *Monitor) Snapshot() []RouteStats {
	var out []RouteStats
	m.routes.Range(func(key, value any) bool {
		rm := value.(*routeMetrics)
		s := RouteStats{
			Route:   key.(string),
			Count:   rm.count.Load(),
			Errors:  rm.errors.Load(),
			Min:     time.Duration(rm.minDuration.Load()),
			Max:     time.Duration(rm.maxDuration.Load()),
			Buckets: make([]uint64, len(rm.latencyBuckets)),
		}
		if s.Count > 0 {
			s.Avg = time.Duration(rm.totalDuration.Load() / s.Count)
		}
		for i := range rm.latencyBuckets {
			s.Buckets[i] = rm.latencyBuckets[i].Load()
		}
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out
}

// Bottlenecks reports routes averaging over 100ms or failing more than 5%
// of requests.
func (m *Monitor) Bottlenecks() []Bottleneck {
	var out []Bottleneck
	for _, s := range m.Snapshot() {
		if s.Count == 0 {
			continue
		}
		if s.Avg > 100*time.Millisecond {
			out = append(out, Bottleneck{
				Type:     "latency",
				Route:    s.Route,
				Severity: 8,
				Impact:   100,
				Details:  fmt.Sprintf("High latency (%v avg)", s.Avg),
			})
		}
		rate := float64(s.Errors) / float64(s.Count)
		if rate > 0.05 {
			out = append(out, Bottleneck{
				Type:     "errors",
				Route:    s.Route,
				Severity: 10,
				Impact:   rate * 100,
				Details:  fmt.Sprintf("%.1f%% error rate", rate*100),
			})
		}
	}
	return out
}
