// Package api holds the demo host's HTTP handlers. They show how a web
// application calls the AdMob client from its own request handling.
package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/admob-go/internal/admob"
	"github.com/patrickwarner/admob-go/internal/config"
	"github.com/patrickwarner/admob-go/internal/middleware"
	"github.com/patrickwarner/admob-go/internal/observability"
	"github.com/patrickwarner/admob-go/internal/payload"
)

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger  *zap.Logger
	Client  *admob.Client
	Metrics observability.MetricsRegistry
	Config  config.Config
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, client *admob.Client, metrics observability.MetricsRegistry) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Server{
		Logger:  logger,
		Client:  client,
		Metrics: metrics,
		Config:  client.Config(),
	}
}

// Router registers every route. Page routes run inside the cookie
// middleware; /health and /metrics do not touch AdMob and skip it.
func (s *Server) Router(metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods("GET")
	}

	pages := r.PathPrefix("/").Subrouter()
	pages.Use(middleware.WithTraceLogger(s.Logger))
	pages.Use(middleware.CookiePropagation(s.Config, s.Logger, s.Metrics))
	pages.HandleFunc("/", s.PageHandler).Methods("GET")
	pages.Handle("/analytics",
		s.Client.AnalyticsHandler(payload.Params{Title: payload.String("Analytics demo")}, true)(
			http.HandlerFunc(s.AnalyticsPageHandler))).Methods("GET")
	pages.HandleFunc("/preview", s.PreviewHandler).Methods("GET")
	return r
}

// Handler wraps the router with inbound tracing.
func (s *Server) Handler(metricsHandler http.Handler) http.Handler {
	return otelhttp.NewHandler(s.Router(metricsHandler), s.Config.ServiceName)
}

func (s *Server) record(endpoint, method string, status int) {
	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
}
