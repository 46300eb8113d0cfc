package middleware

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/searchktools/reactor-server/core/router"
)

func ok(context.Context, map[string]string) router.RouteResult {
	return router.RouteResult{Code: 200, Success: true}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next router.Handler) router.Handler {
			return func(ctx context.Context, post map[string]string) router.RouteResult {
				order = append(order, name)
				return next(ctx, post)
			}
		}
	}

	h := Chain(ok, mark("outer"), mark("inner"))
	if res := h(context.Background(), nil); res.Code != 200 {
		t.Fatalf("code = %d", res.Code)
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("order = %v", order)
	}
}

func TestRecovery(t *testing.T) {
	h := Chain(func(context.Context, map[string]string) router.RouteResult {
		panic("boom")
	}, Recovery(zap.NewNop()))

	res := h(context.Background(), nil)
	if res.Code != 500 || res.Success {
		t.Errorf("recovered result = %+v", res)
	}
}

func TestLoggerPassesThrough(t *testing.T) {
	h := Chain(ok, Logger(zap.NewNop(), "/login"))
	if res := h(context.Background(), nil); res.Code != 200 {
		t.Errorf("code = %d", res.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	clock := time.Unix(100, 0)
	h := Chain(ok, rateLimiter(2, func() time.Time { return clock }))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if res := h(ctx, nil); res.Code != 200 {
			t.Fatalf("call %d = %d", i, res.Code)
		}
	}
	if res := h(ctx, nil); res.Code != 429 {
		t.Errorf("third call = %d, want 429", res.Code)
	}

	clock = clock.Add(time.Second)
	if res := h(ctx, nil); res.Code != 200 {
		t.Errorf("after refill = %d, want 200", res.Code)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	h := Chain(ok, RateLimiter(0))
	for i := 0; i < 100; i++ {
		if res := h(context.Background(), nil); res.Code != 200 {
			t.Fatalf("call %d = %d", i, res.Code)
		}
	}
}
