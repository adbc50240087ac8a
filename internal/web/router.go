package web

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/tropicnights/internal/observability"
	"github.com/kjstillabower/tropicnights/internal/session"
)

// RouterOptions carries the cross-cutting settings applied when wiring routes.
type RouterOptions struct {
	PlotTimeout time.Duration
	RateLimiter *rate.Limiter
}

// NewRouter wires all routes and middleware. The plot route additionally gets
// a request deadline and the shared rate limiter.
func NewRouter(logger *zap.Logger, h *Handler, sessions *session.Manager, opts RouterOptions) http.Handler {
	r := mux.NewRouter()
	r.Use(CorrelationIDMiddleware(logger))
	r.Use(MetricsMiddleware)

	r.HandleFunc("/", h.GetPublic).Methods(http.MethodGet)
	r.HandleFunc("/signup", h.GetSignup).Methods(http.MethodGet)
	r.HandleFunc("/signup", h.PostSignup).Methods(http.MethodPost)
	r.HandleFunc("/login", h.GetLogin).Methods(http.MethodGet)
	r.HandleFunc("/login", h.PostLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.GetLogout).Methods(http.MethodGet)

	r.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	authed := r.PathPrefix("/cities").Subrouter()
	authed.Use(RequireAuth(sessions))
	authed.HandleFunc("", h.GetCities).Methods(http.MethodGet)
	authed.HandleFunc("", h.PostCity).Methods(http.MethodPost)
	authed.HandleFunc("/{id}/delete", h.PostDeleteCity).Methods(http.MethodPost)

	plot := r.PathPrefix("/cities/{id}").Subrouter()
	plot.Use(RequireAuth(sessions))
	plot.Use(RateLimitMiddleware(opts.RateLimiter))
	plot.Use(TimeoutMiddleware(opts.PlotTimeout))
	plot.HandleFunc("", h.GetCityDetail).Methods(http.MethodGet)

	return r
}
