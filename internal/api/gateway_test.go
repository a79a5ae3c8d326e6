package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prompt-general/pulsecheck/internal/comms"
	"github.com/prompt-general/pulsecheck/internal/config"
	"github.com/prompt-general/pulsecheck/internal/health"
	"github.com/prompt-general/pulsecheck/internal/resolver"
	"github.com/prompt-general/pulsecheck/internal/risk"
	"github.com/prompt-general/pulsecheck/internal/status"
	"github.com/prompt-general/pulsecheck/internal/summary"
	"github.com/prompt-general/pulsecheck/internal/usage"
	"github.com/prompt-general/pulsecheck/pkg/models"
)

// memStore backs every reader interface with fixture maps, standing in for
// the Postgres warehouse.
type memStore struct {
	customers []models.Customer
	invoices  map[int64][]models.Invoice
	usage     map[int64][]models.UsageRecord
	snippets  map[int64][]string
	snapshots map[int64]models.SummarySnapshot
	pingErr   error
}

func (m *memStore) GetCustomerByID(_ context.Context, id int64) (*models.Customer, error) {
	for _, c := range m.customers {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetCustomerByEmail(_ context.Context, email string) (*models.Customer, error) {
	for _, c := range m.customers {
		if strings.EqualFold(c.Email, email) {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) SearchCustomersByName(_ context.Context, name string) ([]models.Customer, error) {
	var out []models.Customer
	for _, c := range m.customers {
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(name)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) ListCustomers(context.Context) ([]models.Customer, error) {
	return m.customers, nil
}

func (m *memStore) ListAllInvoices(context.Context) (map[int64][]models.Invoice, error) {
	return m.invoices, nil
}

func (m *memStore) ListInvoices(_ context.Context, customerID int64, limit int) ([]models.Invoice, error) {
	invoices := m.invoices[customerID]
	if limit > 0 && len(invoices) > limit {
		invoices = invoices[:limit]
	}
	return invoices, nil
}

func (m *memStore) ListUsage(_ context.Context, customerID int64, months int) ([]models.UsageRecord, error) {
	records := m.usage[customerID]
	if months > 0 && len(records) > months {
		records = records[:months]
	}
	return records, nil
}

func (m *memStore) GetUsageSummary(ctx context.Context, customerID int64, months int) (models.UsageSummary, error) {
	records, _ := m.ListUsage(ctx, customerID, months)
	var s models.UsageSummary
	for _, r := range records {
		s.TotalPageviews += r.Pageviews
		s.TotalRequests += r.Requests
		s.TotalBandwidthBytes += r.BandwidthBytes
	}
	s.Months = len(records)
	return s, nil
}

func (m *memStore) GetUsageTrend(context.Context, int64, int) (models.UsageTrend, error) {
	return models.UsageTrend{}, nil
}

func (m *memStore) ListUsageTrends(context.Context, int) (map[int64]models.UsageTrend, error) {
	return map[int64]models.UsageTrend{}, nil
}

func (m *memStore) History(_ context.Context, customerID int64, _ int) (comms.History, error) {
	history := comms.History{Meta: comms.Meta{Enabled: true}}
	for _, s := range m.snippets[customerID] {
		history.Messages = append(history.Messages, comms.EmailMessage{Snippet: s})
	}
	history.TotalMessages = len(history.Messages)
	return history, nil
}

func (m *memStore) GetSnapshot(_ context.Context, customerID int64) (*models.SummarySnapshot, error) {
	if snap, ok := m.snapshots[customerID]; ok {
		return &snap, nil
	}
	return nil, nil
}

func (m *memStore) ReplaceSnapshot(_ context.Context, snapshot models.SummarySnapshot) error {
	m.snapshots[snapshot.CustomerID] = snapshot
	return nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func newTestGateway(store *memStore) *Gateway {
	cfg := config.Default()
	log := logrus.New()
	log.SetOutput(io.Discard)

	analyzer := usage.New(store, cfg.Scoring.Anomalies)
	riskEngine := risk.NewEngine(store, cfg.Scoring.Risk)
	summaries := summary.NewService(
		store, analyzer, store, status.New(cfg.Status), riskEngine,
		store, nil, cfg.Comms, log,
	)

	return NewGateway(
		cfg.API,
		resolver.New(store),
		store,
		analyzer,
		riskEngine,
		health.New(store, cfg.Scoring.Health),
		summaries,
		store,
		log,
	)
}

func testStore() *memStore {
	due := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	paid := due
	return &memStore{
		customers: []models.Customer{
			{ID: 42, Name: "Acme Corp", Email: "billing@acme.example"},
		},
		invoices: map[int64][]models.Invoice{
			42: {{
				ID: 1, CustomerID: 42, AmountCents: 10000,
				Status: models.InvoiceStatusPaid, DueDate: due, PaidDate: &paid,
				ReferenceMonth: "2026-06",
			}},
		},
		usage: map[int64][]models.UsageRecord{
			42: {{ReferenceMonth: "2026-06", Pageviews: 10000, Requests: 20000, BandwidthBytes: 1 << 30}},
		},
		snippets:  map[int64][]string{},
		snapshots: map[int64]models.SummarySnapshot{},
	}
}

func doGet(t *testing.T, g *Gateway, path string) (*http.Response, APIResponse) {
	t.Helper()
	server := httptest.NewServer(g.router)
	defer server.Close()

	resp, err := http.Get(server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp, envelope
}

func TestGetCustomerByID(t *testing.T) {
	resp, envelope := doGet(t, newTestGateway(testStore()), "/api/v1/customers/42")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, envelope.Success)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	data, _ := json.Marshal(envelope.Data)
	var resolution models.Resolution
	require.NoError(t, json.Unmarshal(data, &resolution))
	assert.Equal(t, int64(42), resolution.Customer.ID)
	assert.Equal(t, models.MatchID, resolution.MatchType)
}

func TestGetCustomerNotFound(t *testing.T) {
	resp, envelope := doGet(t, newTestGateway(testStore()), "/api/v1/customers/999")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, envelope.Success)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "CUSTOMER_NOT_FOUND", envelope.Error.Code)
}

func TestGetInvoicesIncludesTotals(t *testing.T) {
	resp, envelope := doGet(t, newTestGateway(testStore()), "/api/v1/customers/billing@acme.example/invoices")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data, _ := json.Marshal(envelope.Data)
	var body invoicesResponse
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, models.MatchEmail, body.MatchType)
	assert.Len(t, body.Invoices, 1)
	assert.Equal(t, int64(10000), body.Totals.BilledCents)
}

func TestGetUsageRejectsBadWindow(t *testing.T) {
	resp, envelope := doGet(t, newTestGateway(testStore()), "/api/v1/customers/42/usage?months=soon")

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INVALID_REQUEST", envelope.Error.Code)
}

func TestGetRisk(t *testing.T) {
	resp, envelope := doGet(t, newTestGateway(testStore()), "/api/v1/customers/42/risk")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data, _ := json.Marshal(envelope.Data)
	var result models.RiskScoreResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Len(t, result.Factors, 5)
	assert.Equal(t, models.RiskStable, result.RiskProfile)
}

func TestGetSummaryCachesSnapshot(t *testing.T) {
	g := newTestGateway(testStore())

	_, first := doGet(t, g, "/api/v1/customers/42/summary")
	data, _ := json.Marshal(first.Data)
	var generated models.SummaryResponse
	require.NoError(t, json.Unmarshal(data, &generated))
	assert.Equal(t, models.SourceGenerated, generated.Meta.Source)

	_, second := doGet(t, g, "/api/v1/customers/42/summary")
	data, _ = json.Marshal(second.Data)
	var cached models.SummaryResponse
	require.NoError(t, json.Unmarshal(data, &cached))
	assert.Equal(t, models.SourceSnapshot, cached.Meta.Source)
	assert.Equal(t, generated.Summary, cached.Summary)

	_, third := doGet(t, g, "/api/v1/customers/42/summary?force_refresh=true")
	data, _ = json.Marshal(third.Data)
	var refreshed models.SummaryResponse
	require.NoError(t, json.Unmarshal(data, &refreshed))
	assert.Equal(t, models.SourceGenerated, refreshed.Meta.Source)
}

func TestListHealthScoresRejectsUnknownFilter(t *testing.T) {
	resp, envelope := doGet(t, newTestGateway(testStore()), "/api/v1/health-scores?health_filter=doomed")

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INVALID_REQUEST", envelope.Error.Code)
}

func TestListHealthScores(t *testing.T) {
	resp, envelope := doGet(t, newTestGateway(testStore()), "/api/v1/health-scores")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data, _ := json.Marshal(envelope.Data)
	var result health.ListResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, 1, result.TotalCustomers)
	assert.Equal(t, 1, result.Returned)
}

func TestHealthEndpointReportsDatabaseState(t *testing.T) {
	healthy, _ := doGet(t, newTestGateway(testStore()), "/api/v1/health")
	assert.Equal(t, http.StatusOK, healthy.StatusCode)

	broken := testStore()
	broken.pingErr = errors.New("connection refused")
	degraded, envelope := doGet(t, newTestGateway(broken), "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, degraded.StatusCode)
	assert.False(t, envelope.Success)
}

func TestMetricsEndpoint(t *testing.T) {
	g := newTestGateway(testStore())
	doGet(t, g, "/api/v1/customers/42")

	resp, envelope := doGet(t, g, "/api/v1/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, envelope.Success)

	data, _ := json.Marshal(envelope.Data)
	var metrics struct {
		RequestsTotal int64 `json:"requests_total"`
	}
	require.NoError(t, json.Unmarshal(data, &metrics))
	assert.GreaterOrEqual(t, metrics.RequestsTotal, int64(1))
}
