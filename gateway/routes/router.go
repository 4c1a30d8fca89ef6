package routes

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"liquiditygauge/gateway/middleware"
	nativecommon "liquiditygauge/native/common"
	"liquiditygauge/native/distributor"
	"liquiditygauge/native/gauge"
	"liquiditygauge/native/minter"
	"liquiditygauge/native/votingescrow"
)

// Rate limit keys for the mutating route groups.
const (
	LimitGauge  = "gauge"
	LimitMinter = "minter"
	LimitEscrow = "escrow"
)

type Config struct {
	Gauge       *gauge.Engine
	Minter      *minter.Minter
	Distributor *distributor.Distributor
	Escrow      *votingescrow.Escrow
	Pauses      *nativecommon.PauseSet
	Clock       nativecommon.Clock
	// Admin is the address the gateway acts as on admin routes.
	Admin common.Address

	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	// MetricsHandler overrides the default prometheus handler.
	MetricsHandler http.Handler
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Gauge == nil || cfg.Minter == nil || cfg.Distributor == nil || cfg.Escrow == nil || cfg.Clock == nil {
		return nil, errors.New("routes: gauge, minter, distributor, escrow and clock are required")
	}
	h := &handlers{cfg: cfg}

	r := chi.NewRouter()
	if cfg.Observability != nil {
		r.Use(cfg.Observability.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Route("/gauge", func(sr chi.Router) {
		sr.Get("/supply", h.supply)
		sr.Get("/state", h.state)
		sr.Get("/periods/{period}", h.period)
		sr.Get("/users/{address}", h.user)
		userGroup(sr, cfg, LimitGauge, func(mr chi.Router) {
			mr.Post("/deposit", h.deposit)
			mr.Post("/withdraw", h.withdraw)
			mr.Post("/checkpoint", h.checkpoint)
			mr.Post("/kick", h.kick)
		})
	})

	r.Route("/minter", func(sr chi.Router) {
		sr.Get("/minted/{address}", h.minted)
		userGroup(sr, cfg, LimitMinter, func(mr chi.Router) {
			mr.Post("/distribute", h.distribute)
			mr.Post("/approve", h.approve)
		})
	})

	r.Get("/distributor", h.distributor)

	r.Route("/escrow", func(sr chi.Router) {
		sr.Get("/locks/{address}", h.lock)
		userGroup(sr, cfg, LimitEscrow, func(mr chi.Router) {
			mr.Post("/lock", h.createLock)
			mr.Post("/increase-amount", h.increaseAmount)
			mr.Post("/increase-unlock", h.increaseUnlock)
			mr.Post("/withdraw", h.withdrawLock)
		})
	})

	if cfg.Authenticator != nil {
		r.Route("/admin", func(sr chi.Router) {
			sr.Use(cfg.Authenticator.Middleware(middleware.ScopeAdmin))
			sr.Post("/gauge/kill", h.kill)
			sr.Post("/pauses", h.pause)
		})
	}

	return r, nil
}

// userGroup mounts mutating routes behind the user scope. They are left out
// entirely when no authenticator is configured.
func userGroup(r chi.Router, cfg Config, limitKey string, fn func(chi.Router)) {
	if cfg.Authenticator == nil {
		return
	}
	r.Group(func(mr chi.Router) {
		limit(mr, cfg.RateLimiter, limitKey)
		mr.Use(cfg.Authenticator.Middleware(middleware.ScopeUser))
		fn(mr)
	})
}

func limit(r chi.Router, limiter *middleware.RateLimiter, key string) {
	if limiter != nil {
		r.Use(limiter.Middleware(key))
	}
}
