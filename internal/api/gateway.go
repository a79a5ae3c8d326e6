// Package api is the HTTP gateway: it resolves customer identifiers, fans
// requests out to the analytics components and renders the shared response
// envelope.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/prompt-general/pulsecheck/internal/config"
	"github.com/prompt-general/pulsecheck/internal/health"
	"github.com/prompt-general/pulsecheck/internal/resolver"
	"github.com/prompt-general/pulsecheck/internal/risk"
	"github.com/prompt-general/pulsecheck/internal/summary"
	"github.com/prompt-general/pulsecheck/internal/usage"
)

// Pinger reports whether the backing warehouse is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Gateway owns the HTTP server and routes.
type Gateway struct {
	server *http.Server
	router *mux.Router

	resolver  *resolver.Resolver
	billing   summary.BillingStore
	analyzer  *usage.Analyzer
	risk      *risk.Engine
	health    *health.Scorer
	summaries *summary.Service
	pinger    Pinger

	cfg     config.APIConfig
	log     *logrus.Logger
	metrics *GatewayMetrics
}

// GatewayMetrics counts traffic through the gateway.
type GatewayMetrics struct {
	mu sync.Mutex

	RequestsTotal    int64            `json:"requests_total"`
	RequestsFailed   int64            `json:"requests_failed"`
	AverageLatency   time.Duration    `json:"average_latency"`
	RequestsByPath   map[string]int64 `json:"requests_by_path"`
	RequestsByStatus map[int]int64    `json:"requests_by_status"`
	LastRequest      time.Time        `json:"last_request"`
}

// NewGateway wires the routes and middleware. Start must be called to serve.
func NewGateway(
	cfg config.APIConfig,
	res *resolver.Resolver,
	billing summary.BillingStore,
	analyzer *usage.Analyzer,
	riskEngine *risk.Engine,
	healthScorer *health.Scorer,
	summaries *summary.Service,
	pinger Pinger,
	log *logrus.Logger,
) *Gateway {
	g := &Gateway{
		router:    mux.NewRouter(),
		resolver:  res,
		billing:   billing,
		analyzer:  analyzer,
		risk:      riskEngine,
		health:    healthScorer,
		summaries: summaries,
		pinger:    pinger,
		cfg:       cfg,
		log:       log,
		metrics: &GatewayMetrics{
			RequestsByPath:   make(map[string]int64),
			RequestsByStatus: make(map[int]int64),
		},
	}

	g.setupRoutes()
	g.setupMiddleware()

	g.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      g.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return g
}

func (g *Gateway) setupRoutes() {
	api := g.router.PathPrefix("/api/v1").Subrouter()

	customers := api.PathPrefix("/customers").Subrouter()
	customers.HandleFunc("/{identifier}", g.handleGetCustomer).Methods("GET")
	customers.HandleFunc("/{identifier}/invoices", g.handleGetInvoices).Methods("GET")
	customers.HandleFunc("/{identifier}/usage", g.handleGetUsage).Methods("GET")
	customers.HandleFunc("/{identifier}/risk", g.handleGetRisk).Methods("GET")
	customers.HandleFunc("/{identifier}/summary", g.handleGetSummary).Methods("GET")

	api.HandleFunc("/health-scores", g.handleListHealthScores).Methods("GET")

	api.HandleFunc("/health", g.handleHealth).Methods("GET")
	api.HandleFunc("/metrics", g.handleMetrics).Methods("GET")
}

func (g *Gateway) setupMiddleware() {
	g.router.Use(g.requestIDMiddleware)
	g.router.Use(g.loggingMiddleware)
	g.router.Use(g.metricsMiddleware)

	if g.cfg.EnableCORS {
		c := cors.New(cors.Options{
			AllowedOrigins:   g.cfg.AllowedOrigins,
			AllowedMethods:   g.cfg.AllowedMethods,
			AllowedHeaders:   g.cfg.AllowedHeaders,
			AllowCredentials: true,
		})
		g.router.Use(c.Handler)
	}
}

// Start serves until the listener fails or Stop is called.
func (g *Gateway) Start() error {
	g.log.WithField("addr", g.server.Addr).Info("Starting API gateway")
	return g.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (g *Gateway) Stop(ctx context.Context) error {
	g.log.Info("Stopping API gateway")
	return g.server.Shutdown(ctx)
}

// Response envelope

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		g.log.WithError(err).Error("Failed to encode response")
	}
}

func (g *Gateway) writeSuccess(w http.ResponseWriter, data interface{}) {
	g.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

// Middleware

type contextKey string

const requestIDKey contextKey = "request_id"

func (g *Gateway) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID)))
	})
}

func (g *Gateway) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		g.log.WithFields(logrus.Fields{
			"request_id": r.Context().Value(requestIDKey),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     wrapped.statusCode,
			"duration":   time.Since(start).String(),
		}).Info("Request handled")
	})
}

func (g *Gateway) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		g.updateMetrics(r, wrapped.statusCode, time.Since(start))
	})
}

func (g *Gateway) updateMetrics(r *http.Request, statusCode int, duration time.Duration) {
	m := g.metrics
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RequestsTotal++
	m.RequestsByPath[r.URL.Path]++
	m.RequestsByStatus[statusCode]++
	m.LastRequest = time.Now()
	if statusCode >= http.StatusInternalServerError {
		m.RequestsFailed++
	}
	if m.AverageLatency == 0 {
		m.AverageLatency = duration
	} else {
		m.AverageLatency = (m.AverageLatency + duration) / 2
	}
}

// responseWriter captures the status code for logging and metrics.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
