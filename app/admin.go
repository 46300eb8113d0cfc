//go:build linux

package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/searchktools/reactor-server/core"
)

// admin serves /metrics and the engine stats on a separate listener
type admin struct {
	addr   string
	bound  atomic.Pointer[string]
	engine *core.Engine
	log    *zap.Logger
	srv    *http.Server
}

func newAdmin(addr string, reg *prometheus.Registry, engine *core.Engine, log *zap.Logger) *admin {
	a := &admin{addr: addr, engine: engine, log: log}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/debug/stats", a.statsJSON)
	mux.HandleFunc("/debug/stats.pb", a.statsProto)

	a.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a
}

// Addr returns the bound address once Serve is listening
func (a *admin) Addr() string {
	if p := a.bound.Load(); p != nil {
		return *p
	}
	return ""
}

// Serve listens until ctx is done
func (a *admin) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("admin listen: %w", err)
	}
	bound := ln.Addr().String()
	a.bound.Store(&bound)
	a.log.Info("admin listening", zap.String("addr", bound))

	errc := make(chan error, 1)
	go func() { errc <- a.srv.Serve(ln) }()

	select {
	case err := <-errc:
		return fmt.Errorf("admin serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *admin) statsJSON(w http.ResponseWriter, _ *http.Request) {
	data, err := a.engine.StatsJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (a *admin) statsProto(w http.ResponseWriter, _ *http.Request) {
	msg, err := a.engine.StatsProto()
	if err == nil {
		var data []byte
		if data, err = proto.Marshal(msg); err == nil {
			w.Header().Set("Content-Type", "application/x-protobuf")
			w.Write(data)
			return
		}
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
