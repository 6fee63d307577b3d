package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"vsbld/core/ledger"
	gatewayauth "vsbld/gateway/auth"
	gatewayevents "vsbld/gateway/events"
	"vsbld/gateway/middleware"
)

// Config assembles everything New needs to build the gateway's HTTP
// surface: the ledger the Credits/Services/Access endpoints are served
// from, plus the shared middleware stack.
type Config struct {
	Ledger *ledger.Ledger

	// JWTAuth gates every /v1 route behind middleware.ScopeAPI, and the
	// transaction-submission route additionally behind
	// middleware.ScopeTransactionsSubmit.
	JWTAuth *middleware.Authenticator
	// HMACAuth additionally gates POST /v1/transactions behind
	// service-to-service API-key + HMAC authentication, since submitting a
	// signed ledger transaction is a distinct trust boundary from reading
	// the query surface.
	HMACAuth *gatewayauth.Authenticator

	RateLimiter     *middleware.RateLimiter
	MutatingRateKey string

	// EventsHub, if set, fans out every Credits/Services/Access event to
	// websocket subscribers of GET /v1/events/stream.
	EventsHub *gatewayevents.Hub

	Observability *middleware.Observability
	CORS          middleware.CORSConfig
}

// New builds the gateway's chi router: health and metrics endpoints, then
// the ledger's read-only query surface and its single transaction-submission
// endpoint, behind the same CORS/observability/rate-limit/auth stack the
// reference gateway applies to its proxied routes.
func New(cfg Config) (http.Handler, error) {
	r := chi.NewRouter()
	if cfg.CORS.AllowedOrigins != nil || cfg.CORS.AllowedMethods != nil {
		r.Use(middleware.CORS(cfg.CORS))
	} else {
		r.Use(middleware.CORS(middleware.CORSConfig{}))
	}

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.Ledger != nil {
		bridge := newLedgerRoutes(cfg.Ledger)
		r.Route("/v1", func(sr chi.Router) {
			if obs != nil {
				sr.Use(obs.Middleware("ledger"))
			}
			if cfg.JWTAuth != nil {
				sr.Use(cfg.JWTAuth.Middleware(middleware.ScopeAPI))
			}

			sr.Group(func(gr chi.Router) {
				if cfg.RateLimiter != nil && cfg.MutatingRateKey != "" {
					gr.Use(cfg.RateLimiter.Middleware(cfg.MutatingRateKey))
				}
				if cfg.JWTAuth != nil {
					gr.Use(cfg.JWTAuth.Middleware(middleware.ScopeTransactionsSubmit))
				}
				if cfg.HMACAuth != nil {
					gr.Use(cfg.HMACAuth.Middleware())
				}
				gr.Post("/transactions", bridge.submitTransaction)
			})

			sr.Group(func(gr chi.Router) {
				if cfg.RateLimiter != nil {
					gr.Use(cfg.RateLimiter.Middleware("queries"))
				}
				gr.Get("/visibilities/{id}", bridge.getVisibility)
				gr.Get("/visibilities/{id}/quote", bridge.getQuote)
				gr.Get("/visibilities/{id}/balances/{address}", bridge.getBalance)
				gr.Get("/roles/{role}/{address}", bridge.getRoleMembership)
				gr.Get("/services/{nonce}", bridge.getService)
				gr.Get("/services/{serviceNonce}/executions/{executionNonce}", bridge.getServiceExecution)
				if cfg.EventsHub != nil {
					gr.Get("/events/stream", cfg.EventsHub.ServeHTTP)
				}
			})
		})
	}

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	return r, nil
}
