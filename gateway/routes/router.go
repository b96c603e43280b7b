package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rwalend/gateway/auth"
	"rwalend/gateway/middleware"
	"rwalend/services/rwalend"
	"rwalend/services/rwalendd/audit"
)

// Config wires the HTTP surface to a running protocol service.
type Config struct {
	Service       *rwalend.Service
	Signatures    *auth.Authenticator
	Admin         *middleware.AdminAuthenticator
	AdminScope    string
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Stream        http.Handler
	Audit         *audit.Sink
	Logger        *slog.Logger
}

type handlers struct {
	svc   *rwalend.Service
	audit *audit.Sink
	log   *slog.Logger
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Service == nil {
		return nil, errors.New("routes: service required")
	}
	if cfg.Signatures == nil {
		return nil, errors.New("routes: signature authenticator required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &handlers{svc: cfg.Service, audit: cfg.Audit, log: cfg.Logger}
	signed := middleware.Signatures(cfg.Signatures, cfg.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))
	obs := cfg.Observability

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	group := func(name string, mount func(chi.Router)) func(chi.Router) {
		return func(sr chi.Router) {
			if obs != nil {
				sr.Use(obs.Middleware(name))
			}
			if cfg.RateLimiter != nil {
				sr.Use(cfg.RateLimiter.Middleware(name))
			}
			mount(sr)
		}
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/version", h.version)
		v1.Route("/cdp", group("cdp", func(sr chi.Router) { h.mountCDP(sr, signed) }))
		v1.Route("/pool", group("pool", func(sr chi.Router) { h.mountPool(sr, signed) }))
		v1.Route("/token", group("token", func(sr chi.Router) { h.mountToken(sr, signed) }))
		v1.Route("/native", group("native", func(sr chi.Router) { h.mountNative(sr, signed) }))
		v1.Route("/oracle", group("oracle", h.mountOracle))
		v1.Route("/admin", group("admin", func(sr chi.Router) {
			if cfg.Admin != nil {
				scope := cfg.AdminScope
				if scope == "" {
					sr.Use(cfg.Admin.Middleware())
				} else {
					sr.Use(cfg.Admin.Middleware(scope))
				}
			}
			h.mountAdmin(sr)
		}))
		v1.Route("/events", func(sr chi.Router) {
			if cfg.Stream != nil {
				sr.Handle("/stream", cfg.Stream)
			}
			sr.Group(group("events", func(g chi.Router) { g.Get("/", h.recentEvents) }))
		})
	})

	if obs != nil {
		return obs.Handler(r), nil
	}
	return r, nil
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	height, err := h.svc.Height()
	if err != nil {
		writeError(w, err)
		return
	}
	initialized, err := h.svc.Initialized(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"status": "ok", "height": height, "initialized": initialized})
}

func (h *handlers) version(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"version": h.svc.Version()})
}
