// Package middleware wraps reserved-route handlers with cross-cutting
// behaviour.
package middleware

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/searchktools/reactor-server/core/router"
)

// Middleware decorates a route handler
type Middleware func(router.Handler) router.Handler

// Chain wraps h so the first middleware runs outermost
func Chain(h router.Handler, mws ...Middleware) router.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Recovery turns a handler panic into a 500 result
func Recovery(log *zap.Logger) Middleware {
	return func(next router.Handler) router.Handler {
		return func(ctx context.Context, post map[string]string) (res router.RouteResult) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("route handler panicked", zap.Any("panic", err), zap.Stack("stack"))
					res = router.RouteResult{Code: 500, Message: "Internal Server Error"}
				}
			}()
			return next(ctx, post)
		}
	}
}

// Logger logs each call of the route at debug level
func Logger(log *zap.Logger, path string) Middleware {
	return func(next router.Handler) router.Handler {
		return func(ctx context.Context, post map[string]string) router.RouteResult {
			start := time.Now()
			res := next(ctx, post)
			log.Debug("route served",
				zap.String("path", path),
				zap.Int("code", res.Code),
				zap.Duration("elapsed", time.Since(start)),
			)
			return res
		}
	}
}

// RateLimiter answers 429 once more than requestsPerSecond calls arrive
// within one second. requestsPerSecond <= 0 disables it.
func RateLimiter(requestsPerSecond int) Middleware {
	return rateLimiter(requestsPerSecond, time.Now)
}

func rateLimiter(requestsPerSecond int, now func() time.Time) Middleware {
	if requestsPerSecond <= 0 {
		return func(next router.Handler) router.Handler { return next }
	}

	var (
		mu         sync.Mutex
		tokens     = requestsPerSecond
		lastRefill = now()
	)
	take := func() bool {
		mu.Lock()
		defer mu.Unlock()
		if t := now(); t.Sub(lastRefill) >= time.Second {
			tokens = requestsPerSecond
			lastRefill = t
		}
		if tokens == 0 {
			return false
		}
		tokens--
		return true
	}

	return func(next router.Handler) router.Handler {
		return func(ctx context.Context, post map[string]string) router.RouteResult {
			if !take() {
				return router.RouteResult{Code: 429, Message: "Too Many Requests"}
			}
			return next(ctx, post)
		}
	}
}
