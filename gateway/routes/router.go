package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bondmint/gateway/middleware"
)

// Config wires the router's middleware stack. Nil components disable the
// corresponding concern, which is how tests exercise handlers directly.
type Config struct {
	Platform      *Platform
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	// MetricsPath overrides where the prometheus handler is mounted;
	// empty selects /metrics.
	MetricsPath string
}

// Scope names required on mutating routes.
const (
	ScopeCdpWrite    = "cdp.write"
	ScopeOracleAdmin = "oracle.admin"
	ScopeBondAdmin   = "bond.admin"
)

// New assembles the gateway HTTP handler.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	platform := cfg.Platform

	r.Route("/v1/cdp", func(sr chi.Router) {
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware("cdp"))
		}
		sr.Get("/positions/{address}", platform.handlePosition)
		sr.Get("/supply", platform.handleSupply)
		sr.Post("/preview", platform.handlePreview)

		sr.Group(func(mr chi.Router) {
			if cfg.Authenticator != nil {
				mr.Use(cfg.Authenticator.Middleware(ScopeCdpWrite))
			}
			mr.Post("/deposit", platform.handleDeposit)
			mr.Post("/decrease", platform.handleDecrease)
			mr.Post("/liquidate", platform.handleLiquidate)
		})
	})

	r.Get("/v1/events", platform.handleEvents)

	r.Route("/v1/oracle", func(sr chi.Router) {
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware("oracle"))
		}
		// Price submissions authenticate themselves through the proof
		// signature, so no bearer token is required.
		sr.Post("/prices", platform.handlePublishPrice)
		sr.Get("/feeds/{asset}", platform.handleFeed)

		sr.Group(func(mr chi.Router) {
			if cfg.Authenticator != nil {
				mr.Use(cfg.Authenticator.Middleware(ScopeOracleAdmin))
			}
			mr.Post("/bonds", platform.handleRegisterBond)
			mr.Post("/publishers", platform.handleAuthorizePublisher)
		})
	})

	r.Route("/v1/bond", func(sr chi.Router) {
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware("bond"))
		}
		sr.Get("/balances/{address}/{asset}", platform.handleBondBalance)

		sr.Group(func(mr chi.Router) {
			if cfg.Authenticator != nil {
				mr.Use(cfg.Authenticator.Middleware(ScopeBondAdmin))
			}
			mr.Post("/series", platform.handleRegisterSeries)
			mr.Post("/mint", platform.handleBondMint)
			mr.Post("/burn", platform.handleBondBurn)
			mr.Post("/transfer", platform.handleBondTransfer)
		})
	})

	r.Route("/v1/identity", func(sr chi.Router) {
		sr.Get("/{address}", platform.handleIdentityStatus)

		sr.Group(func(mr chi.Router) {
			if cfg.Authenticator != nil {
				mr.Use(cfg.Authenticator.Middleware(ScopeBondAdmin))
			}
			mr.Post("/approve", platform.handleIdentityApprove)
			mr.Post("/revoke", platform.handleIdentityRevoke)
		})
	})

	if obs != nil {
		metricsPath := cfg.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.Handle(metricsPath, obs.MetricsHandler())
	}

	return r
}
