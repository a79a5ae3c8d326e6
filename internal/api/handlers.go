package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/prompt-general/pulsecheck/internal/health"
	"github.com/prompt-general/pulsecheck/pkg/models"
)

// Customer routes. Every /customers/{identifier} handler resolves the
// identifier first; the match type travels in the response so callers can
// tell a fuzzy match from an exact one.

func (g *Gateway) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	resolution, ok := g.resolve(w, r)
	if !ok {
		return
	}
	g.writeSuccess(w, resolution)
}

// invoicesResponse is the billing view of one customer.
type invoicesResponse struct {
	Customer  models.Customer      `json:"customer"`
	MatchType models.MatchType     `json:"match_type"`
	Invoices  []models.Invoice     `json:"invoices"`
	Totals    models.BillingTotals `json:"totals"`
}

func (g *Gateway) handleGetInvoices(w http.ResponseWriter, r *http.Request) {
	resolution, ok := g.resolve(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	invoices, err := g.billing.ListInvoices(r.Context(), resolution.Customer.ID, limit)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}

	g.writeSuccess(w, invoicesResponse{
		Customer:  resolution.Customer,
		MatchType: resolution.MatchType,
		Invoices:  invoices,
		Totals:    models.Totals(invoices),
	})
}

func (g *Gateway) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	resolution, ok := g.resolve(w, r)
	if !ok {
		return
	}

	months, err := queryInt(r, "months", 0)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	report, err := g.analyzer.Report(r.Context(), resolution.Customer, months)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeSuccess(w, report)
}

func (g *Gateway) handleGetRisk(w http.ResponseWriter, r *http.Request) {
	resolution, ok := g.resolve(w, r)
	if !ok {
		return
	}

	result, err := g.risk.Score(r.Context(), resolution.Customer)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeSuccess(w, result)
}

func (g *Gateway) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	resolution, ok := g.resolve(w, r)
	if !ok {
		return
	}

	forceRefresh := r.URL.Query().Get("force_refresh") == "true"

	response, err := g.summaries.GetSummary(r.Context(), resolution.Customer, forceRefresh)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeSuccess(w, response)
}

// Fleet route.

func (g *Gateway) handleListHealthScores(w http.ResponseWriter, r *http.Request) {
	minInvoices, err := queryInt(r, "min_invoices", 0)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	req := health.ListRequest{
		SortBy:             r.URL.Query().Get("sort_by"),
		HealthFilter:       r.URL.Query().Get("health_filter"),
		StrictHealthFilter: r.URL.Query().Get("strict_health_filter") == "true",
		MinInvoices:        minInvoices,
		Limit:              limit,
	}

	result, err := g.health.ListHealth(r.Context(), req)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeSuccess(w, result)
}

// Operational routes.

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "healthy", "database": "up"}
	code := http.StatusOK

	if err := g.pinger.Ping(r.Context()); err != nil {
		g.log.WithError(err).Warn("Database health check failed")
		status["status"] = "degraded"
		status["database"] = "down"
		code = http.StatusServiceUnavailable
	}

	g.writeJSON(w, code, APIResponse{Success: code == http.StatusOK, Data: status})
}

func (g *Gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	g.metrics.mu.Lock()
	snapshot := GatewayMetrics{
		RequestsTotal:    g.metrics.RequestsTotal,
		RequestsFailed:   g.metrics.RequestsFailed,
		AverageLatency:   g.metrics.AverageLatency,
		RequestsByPath:   make(map[string]int64, len(g.metrics.RequestsByPath)),
		RequestsByStatus: make(map[int]int64, len(g.metrics.RequestsByStatus)),
		LastRequest:      g.metrics.LastRequest,
	}
	for path, n := range g.metrics.RequestsByPath {
		snapshot.RequestsByPath[path] = n
	}
	for status, n := range g.metrics.RequestsByStatus {
		snapshot.RequestsByStatus[status] = n
	}
	g.metrics.mu.Unlock()

	g.writeSuccess(w, &snapshot)
}

// Helpers.

// resolve maps the path identifier to a customer, writing the error response
// itself on failure.
func (g *Gateway) resolve(w http.ResponseWriter, r *http.Request) (models.Resolution, bool) {
	identifier := mux.Vars(r)["identifier"]
	resolution, err := g.resolver.Resolve(r.Context(), identifier)
	if err != nil {
		g.writeError(w, r, err)
		return models.Resolution{}, false
	}
	return resolution, true
}

// writeError maps domain errors to status codes: unresolved customers are
// 404, bad parameters 400, unreachable collaborators 502, everything else
// 500.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var notFound *models.CustomerNotFoundError
	var validation *models.ValidationError
	var unavailable *models.CollaboratorUnavailableError

	switch {
	case errors.As(err, &notFound):
		g.writeJSON(w, http.StatusNotFound, errorResponse("CUSTOMER_NOT_FOUND", notFound.Error()))
	case errors.As(err, &validation):
		g.writeJSON(w, http.StatusBadRequest, errorResponse("INVALID_REQUEST", validation.Error()))
	case errors.As(err, &unavailable):
		g.log.WithError(err).WithField("path", r.URL.Path).Error("Collaborator unavailable")
		g.writeJSON(w, http.StatusBadGateway, errorResponse("COLLABORATOR_UNAVAILABLE", unavailable.Error()))
	default:
		g.log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		g.writeJSON(w, http.StatusInternalServerError, errorResponse("INTERNAL_ERROR", "internal error"))
	}
}

func errorResponse(code, message string) APIResponse {
	return APIResponse{Success: false, Error: &APIError{Code: code, Message: message}}
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &models.ValidationError{Field: name, Reason: "must be an integer"}
	}
	return value, nil
}
