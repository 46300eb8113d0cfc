//go:build linux

package core

import (
	"fmt"

	"github.com/goccy/go-json"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/searchktools/reactor-server/core/buffer"
	"github.com/searchktools/reactor-server/core/observability"
	"github.com/searchktools/reactor-server/core/pools"
)

// Stats is a snapshot of the engine and its pools
type Stats struct {
	Addr        string                     `json:"addr"`
	Active      int64                      `json:"active_connections"`
	Accepted    uint64                     `json:"accepted_connections"`
	Workers     pools.WorkerPoolStats      `json:"workers"`
	Connections pools.ConnectionPoolStats  `json:"connection_pool"`
	Spill       pools.BytePoolStats        `json:"spill_pool"`
	GC          pools.GCStats              `json:"gc"`
	Routes      []observability.RouteStats `json:"routes"`
	Bottlenecks []observability.Bottleneck `json:"bottlenecks,omitempty"`
}

// Stats returns current statistics. It is safe to call from any goroutine.
func (e *Engine) Stats() Stats {
	s := Stats{
		Addr:        e.Addr(),
		Active:      e.active.Load(),
		Accepted:    e.accepted.Load(),
		Connections: e.conns.Stats(),
		Spill:       buffer.SpillStats(),
		GC:          pools.GetGCStats(),
		Routes:      e.monitor.Snapshot(),
		Bottlenecks: e.monitor.Bottlenecks(),
	}
	select {
	case <-e.ready:
		s.Workers = e.workers.Stats()
	default:
	}
	return s
}

// StatsJSON returns Stats as indented JSON
func (e *Engine) StatsJSON() ([]byte, error) {
	return json.MarshalIndent(e.Stats(), "", "  ")
}

// StatsProto returns Stats as a protobuf Struct with the JSON field names
func (e *Engine) StatsProto() (*structpb.Struct, error) {
	data, err := json.Marshal(e.Stats())
	if err != nil {
		return nil, fmt.Errorf("marshal stats: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal stats: %w", err)
	}
	return structpb.NewStruct(m)
}
