// Package health batch-scores the entire customer population into 0-100
// health scores with triage labels, for fleet-wide views.
package health

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/prompt-general/pulsecheck/internal/config"
	"github.com/prompt-general/pulsecheck/pkg/models"
)

// Store is the bulk read surface of the scorer. The whole population is
// loaded in three queries; scoring itself is a pure in-memory pass with no
// per-customer round trips.
type Store interface {
	ListCustomers(ctx context.Context) ([]models.Customer, error)
	ListAllInvoices(ctx context.Context) (map[int64][]models.Invoice, error)
	ListUsageTrends(ctx context.Context, months int) (map[int64]models.UsageTrend, error)
}

// Sort keys accepted by ListRequest.SortBy.
const (
	SortByHealthScore   = "health_score"
	SortByOverdueAmount = "overdue_amount"
	SortByOveragePct    = "overage_pct"
)

// FilterAll disables label filtering.
const FilterAll = "all"

// ListRequest carries the fleet-view filters.
type ListRequest struct {
	SortBy             string `json:"sort_by"`
	HealthFilter       string `json:"health_filter"`
	StrictHealthFilter bool   `json:"strict_health_filter"`
	MinInvoices        int    `json:"min_invoices"`
	Limit              int    `json:"limit"`
}

// ListMeta reports how the result set was produced.
type ListMeta struct {
	TriageMode bool   `json:"triage_mode"`
	SortBy     string `json:"sort_by"`
	Filter     string `json:"health_filter"`
}

// ListResult is the scored fleet view. Distribution always covers the
// unfiltered population and its counts sum to TotalCustomers.
type ListResult struct {
	TotalCustomers int                          `json:"total_customers"`
	Returned       int                          `json:"returned"`
	Customers      []models.HealthScoreResult   `json:"customers"`
	Distribution   map[models.HealthLabel]int   `json:"distribution"`
	Meta           ListMeta                     `json:"_meta"`
}

// Scorer computes health scores for the whole customer base in one pass.
type Scorer struct {
	store Store
	cfg   config.HealthScoringConfig
}

// New creates a scorer with the given calibration.
func New(store Store, cfg config.HealthScoringConfig) *Scorer {
	return &Scorer{store: store, cfg: cfg}
}

// ListHealth scores every customer, then filters, sorts and truncates per
// the request. With StrictHealthFilter unset, a label filter is widened to
// include every label at or below that severity (triage mode), so asking
// for needs_attention also surfaces at_risk and critical customers.
func (s *Scorer) ListHealth(ctx context.Context, req ListRequest) (ListResult, error) {
	if err := validateRequest(req); err != nil {
		return ListResult{}, err
	}

	customers, err := s.store.ListCustomers(ctx)
	if err != nil {
		return ListResult{}, fmt.Errorf("failed to list customers: %w", err)
	}
	invoicesByCustomer, err := s.store.ListAllInvoices(ctx)
	if err != nil {
		return ListResult{}, fmt.Errorf("failed to load invoices: %w", err)
	}
	trends, err := s.store.ListUsageTrends(ctx, s.cfg.TrendWindowMonths)
	if err != nil {
		return ListResult{}, fmt.Errorf("failed to load usage trends: %w", err)
	}

	distribution := make(map[models.HealthLabel]int, len(models.HealthLabels))
	for _, label := range models.HealthLabels {
		distribution[label] = 0
	}

	scored := make([]models.HealthScoreResult, 0, len(customers))
	for _, customer := range customers {
		result := s.Score(customer, invoicesByCustomer[customer.ID], trends[customer.ID])
		distribution[result.HealthLabel]++
		scored = append(scored, result)
	}

	filtered := filter(scored, req)
	sortResults(filtered, req.SortBy)
	if req.Limit > 0 && len(filtered) > req.Limit {
		filtered = filtered[:req.Limit]
	}

	return ListResult{
		TotalCustomers: len(customers),
		Returned:       len(filtered),
		Customers:      filtered,
		Distribution:   distribution,
		Meta: ListMeta{
			TriageMode: !req.StrictHealthFilter && req.HealthFilter != "" && req.HealthFilter != FilterAll,
			SortBy:     req.SortBy,
			Filter:     req.HealthFilter,
		},
	}, nil
}

// Score derives one customer's health from their billing rows and usage
// trend. Pure: the score starts at 100 and independent capped penalties
// are subtracted for unpaid invoices, overdue invoices, declining
// pageviews and overage share.
func (s *Scorer) Score(customer models.Customer, invoices []models.Invoice, trend models.UsageTrend) models.HealthScoreResult {
	totals := models.Totals(invoices)
	issues := []string{}
	score := 100.0

	if unpaid := 1 - totals.PaidFraction(); unpaid > 0 {
		score -= math.Min(s.cfg.UnpaidCap, unpaid*s.cfg.UnpaidSlope)
		issues = append(issues, fmt.Sprintf("only %.0f%% of invoices are paid", totals.PaidFraction()*100))
	}

	if totals.OverdueCount > 0 {
		score -= math.Min(s.cfg.OverdueCap, float64(totals.OverdueCount)*s.cfg.OverduePerInvoice)
		issues = append(issues, fmt.Sprintf("%d overdue invoices totaling $%.2f",
			totals.OverdueCount, float64(totals.OverdueCents)/100))
	}

	dropPct := -models.ChangePct(trend.Recent3moAvgPageviews, trend.Previous3moAvgPageviews)
	if dropPct > 0 {
		score -= math.Min(s.cfg.UsageDropCap, dropPct*s.cfg.UsageDropSlope)
		issues = append(issues, fmt.Sprintf("pageviews dropped %.0f%% versus the previous 3 months", dropPct))
	}

	if overage := totals.OverageFraction(); overage > 0 {
		score -= math.Min(s.cfg.OverageCap, overage*s.cfg.OverageSlope)
		issues = append(issues, fmt.Sprintf("%.0f%% of billed amount is overage", overage*100))
	}

	score = math.Max(0, math.Min(100, score))

	return models.HealthScoreResult{
		Customer:           customer,
		HealthScore:        score,
		HealthLabel:        models.HealthLabelForScore(score, s.cfg.Thresholds),
		Issues:             issues,
		OverdueAmountCents: totals.OverdueCents,
		OveragePct:         totals.OverageFraction() * 100,
		InvoiceCount:       totals.InvoiceCount,
	}
}

func validateRequest(req ListRequest) error {
	switch req.SortBy {
	case "", SortByHealthScore, SortByOverdueAmount, SortByOveragePct:
	default:
		return &models.ValidationError{Field: "sort_by", Reason: fmt.Sprintf("unknown sort key %q", req.SortBy)}
	}

	if req.HealthFilter != "" && req.HealthFilter != FilterAll {
		known := false
		for _, label := range models.HealthLabels {
			if string(label) == req.HealthFilter {
				known = true
				break
			}
		}
		if !known {
			return &models.ValidationError{Field: "health_filter", Reason: fmt.Sprintf("unknown label %q", req.HealthFilter)}
		}
	}

	if req.MinInvoices < 0 {
		return &models.ValidationError{Field: "min_invoices", Reason: "must not be negative"}
	}
	if req.Limit < 0 {
		return &models.ValidationError{Field: "limit", Reason: "must not be negative"}
	}
	return nil
}

func filter(results []models.HealthScoreResult, req ListRequest) []models.HealthScoreResult {
	out := make([]models.HealthScoreResult, 0, len(results))
	for _, r := range results {
		if r.InvoiceCount < req.MinInvoices {
			continue
		}
		if !matchesFilter(r.HealthLabel, req) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesFilter(label models.HealthLabel, req ListRequest) bool {
	if req.HealthFilter == "" || req.HealthFilter == FilterAll {
		return true
	}
	want := models.HealthLabel(req.HealthFilter)
	if req.StrictHealthFilter {
		return label == want
	}
	// Triage mode: include everything at least as severe as the filter.
	return models.SeverityRank(label) <= models.SeverityRank(want)
}

func sortResults(results []models.HealthScoreResult, sortBy string) {
	switch sortBy {
	case SortByOverdueAmount:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].OverdueAmountCents > results[j].OverdueAmountCents
		})
	case SortByOveragePct:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].OveragePct > results[j].OveragePct
		})
	default:
		// Worst first: lowest health score at the top of the triage list.
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].HealthScore < results[j].HealthScore
		})
	}
}
