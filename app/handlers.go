package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/searchktools/reactor-server/core/middleware"
	"github.com/searchktools/reactor-server/core/router"
	"github.com/searchktools/reactor-server/store"
)

// Reserved paths answered by the credential store
const (
	PathRegister = "/register"
	PathLogin    = "/login"
)

func result(code int, success bool, msg string) router.RouteResult {
	return router.RouteResult{Code: code, Success: success, Message: msg}
}

// fields returns the named post values, or false if any is missing or empty
func fields(post map[string]string, names ...string) ([]string, bool) {
	values := make([]string, len(names))
	for i, name := range names {
		v := post[name]
		if v == "" {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

func registerHandler(s store.Store, timeout time.Duration, log *zap.Logger) router.Handler {
	return func(ctx context.Context, post map[string]string) router.RouteResult {
		v, ok := fields(post, "name", "password", "phone")
		if !ok {
			return result(400, false, "name, password and phone are required")
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		outcome, err := s.Register(ctx, v[0], v[2], v[1])
		if err != nil {
			log.Warn("register failed", zap.String("name", v[0]), zap.Error(err))
		}
		switch outcome {
		case store.OutcomeOK:
			return result(200, true, "Register OK!")
		case store.OutcomeConflict:
			return result(409, false, "User already exists!")
		default:
			return result(500, false, "Register failed!")
		}
	}
}

func loginHandler(s store.Store, timeout time.Duration, log *zap.Logger) router.Handler {
	return func(ctx context.Context, post map[string]string) router.RouteResult {
		v, ok := fields(post, "name", "password")
		if !ok {
			return result(400, false, "name and password are required")
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		outcome, err := s.Login(ctx, v[0], v[1])
		if err != nil {
			log.Warn("login failed", zap.String("name", v[0]), zap.Error(err))
		}
		if outcome == store.OutcomeOK {
			return result(200, true, "Login OK")
		}
		return result(401, false, "Wrong name or password")
	}
}

// Routes builds the router serving the register and login paths. Each
// path gets its own limit of rateLimit calls per second; 0 disables it.
func Routes(s store.Store, timeout time.Duration, rateLimit int, log *zap.Logger) *router.Router {
	wrap := func(path string, h router.Handler) router.Handler {
		return middleware.Chain(h,
			middleware.Recovery(log),
			middleware.Logger(log, path),
			middleware.RateLimiter(rateLimit),
		)
	}
	r := router.New()
	r.Handle(PathRegister, wrap(PathRegister, registerHandler(s, timeout, log)))
	r.Handle(PathLogin, wrap(PathLogin, loginHandler(s, timeout, log)))
	return r
}
