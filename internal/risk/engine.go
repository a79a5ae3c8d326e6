// Package risk scores a single customer's churn risk 0-10 from five
// weighted billing and usage factors.
package risk

import (
	"context"
	"fmt"
	"math"

	"github.com/prompt-general/pulsecheck/internal/config"
	"github.com/prompt-general/pulsecheck/pkg/models"
)

// Factor names, in reporting order. Exactly these five appear in every
// result and their weights sum to 1.0.
const (
	FactorPaymentDelay     = "payment_delay"
	FactorUsageTrend       = "usage_trend"
	FactorOverdueFrequency = "overdue_frequency"
	FactorOveragePct       = "overage_percentage"
	FactorTieringGap       = "tiering_gap"
)

// Store is the read surface of the engine: the recent invoice window and
// the usage trend over the same number of months.
type Store interface {
	ListInvoices(ctx context.Context, customerID int64, limit int) ([]models.Invoice, error)
	GetUsageTrend(ctx context.Context, customerID int64, months int) (models.UsageTrend, error)
}

// Engine implements the churn risk scoring engine.
type Engine struct {
	store Store
	cfg   config.RiskScoringConfig
}

// NewEngine creates a risk engine with the given calibration. The config
// validator guarantees the weights sum to 1.0.
func NewEngine(store Store, cfg config.RiskScoringConfig) *Engine {
	return &Engine{store: store, cfg: cfg}
}

// Score computes the churn risk for one resolved customer over their most
// recent invoice window. A customer with zero invoices scores 0 (stable)
// with an explanatory issue rather than failing.
func (e *Engine) Score(ctx context.Context, customer models.Customer) (models.RiskScoreResult, error) {
	invoices, err := e.store.ListInvoices(ctx, customer.ID, e.cfg.InvoiceWindow)
	if err != nil {
		return models.RiskScoreResult{}, fmt.Errorf("failed to load invoice window: %w", err)
	}
	trend, err := e.store.GetUsageTrend(ctx, customer.ID, e.cfg.InvoiceWindow)
	if err != nil {
		return models.RiskScoreResult{}, fmt.Errorf("failed to load usage trend: %w", err)
	}
	return e.Evaluate(customer, invoices, trend), nil
}

// Evaluate is the pure scoring core, separated from the store reads so the
// factor math can be tested directly.
func (e *Engine) Evaluate(customer models.Customer, invoices []models.Invoice, trend models.UsageTrend) models.RiskScoreResult {
	result := models.RiskScoreResult{
		Customer:           customer,
		Issues:             []string{},
		RecommendedActions: []string{},
	}

	if len(invoices) == 0 {
		result.Factors = e.factors(0, 0, 0, 0, 0)
		result.RiskProfile = models.RiskProfileForScore(0, e.cfg.Thresholds)
		result.Issues = append(result.Issues, "no billing data available for this customer")
		return result
	}

	totals := models.Totals(invoices)

	delayScore, avgDelay := e.paymentDelayScore(invoices)
	if delayScore >= 5 {
		result.Issues = append(result.Issues, fmt.Sprintf("invoices are settled on average %.0f days late", avgDelay))
		result.RecommendedActions = append(result.RecommendedActions, "review payment terms and dunning cadence with the customer")
	}

	trendScore, dropPct := e.usageTrendScore(trend)
	if trendScore >= 5 {
		result.Issues = append(result.Issues, fmt.Sprintf("pageviews declined %.0f%% versus the previous 3 months", dropPct))
		result.RecommendedActions = append(result.RecommendedActions, "schedule a usage review to understand the decline")
	}

	overdueScore := e.overdueFrequencyScore(totals)
	if overdueScore >= 5 {
		result.Issues = append(result.Issues, fmt.Sprintf("%d of %d recent invoices are overdue", totals.OverdueCount, totals.InvoiceCount))
		result.RecommendedActions = append(result.RecommendedActions, "chase outstanding invoices before the next billing cycle")
	}

	overageScore := e.overageScore(totals)
	if overageScore >= 5 {
		result.Issues = append(result.Issues, fmt.Sprintf("%.0f%% of billed amount is overage", totals.OverageFraction()*100))
	}

	gapScore, tiering := e.tieringGapScore(invoices, totals)
	if tiering.Material {
		result.Issues = append(result.Issues, fmt.Sprintf(
			"billed %.0f%% above the %s tier for comparable usage", tiering.GapFraction*100, tiering.BestTier))
		result.RecommendedActions = append(result.RecommendedActions, fmt.Sprintf(
			"propose a move to the %s tier (~$%.2f/month saving)", tiering.BestTier, tiering.MonthlySavingDollars()))
	} else if totals.OverageFraction() >= e.cfg.HighOverageFraction {
		// Overage is high but the customer is already on the cheapest
		// applicable tier. Recommending an upgrade here would be wrong.
		result.RecommendedActions = append(result.RecommendedActions,
			"no cheaper tier identified for this usage; keep the current plan and monitor overage")
	}

	result.Factors = e.factors(delayScore, trendScore, overdueScore, overageScore, gapScore)
	for _, f := range result.Factors {
		result.RiskScore += f.Contribution
	}
	result.RiskScore = math.Round(result.RiskScore*100) / 100
	result.RiskProfile = models.RiskProfileForScore(result.RiskScore, e.cfg.Thresholds)
	return result
}

// factors assembles the five weighted factors in reporting order.
func (e *Engine) factors(delay, trend, overdue, overage, gap float64) []models.RiskFactor {
	build := func(name string, weight, score float64) models.RiskFactor {
		return models.RiskFactor{Name: name, Weight: weight, Score: score, Contribution: score * weight}
	}
	return []models.RiskFactor{
		build(FactorPaymentDelay, e.cfg.PaymentDelayWeight, delay),
		build(FactorUsageTrend, e.cfg.UsageTrendWeight, trend),
		build(FactorOverdueFrequency, e.cfg.OverdueFrequencyWeight, overdue),
		build(FactorOveragePct, e.cfg.OveragePercentageWeight, overage),
		build(FactorTieringGap, e.cfg.TieringGapWeight, gap),
	}
}

// paymentDelayScore scores the average settlement delay of paid invoices,
// 0 for on-time and 10 at MaxDelayDays or beyond.
func (e *Engine) paymentDelayScore(invoices []models.Invoice) (score, avgDelay float64) {
	var total float64
	var paid int
	for _, inv := range invoices {
		if inv.IsPaid() {
			total += inv.DaysLate()
			paid++
		}
	}
	if paid == 0 {
		return 0, 0
	}
	avgDelay = total / float64(paid)
	return clampScore(avgDelay / e.cfg.MaxDelayDays * 10), avgDelay
}

// usageTrendScore scores a declining pageview trend, 10 at MaxDropPct.
// Stable or growing usage contributes nothing.
func (e *Engine) usageTrendScore(trend models.UsageTrend) (score, dropPct float64) {
	change := models.ChangePct(trend.Recent3moAvgPageviews, trend.Previous3moAvgPageviews)
	if change >= 0 {
		return 0, 0
	}
	dropPct = -change
	return clampScore(dropPct / e.cfg.MaxDropPct * 10), dropPct
}

// overdueFrequencyScore scores the overdue share of the invoice window.
func (e *Engine) overdueFrequencyScore(totals models.BillingTotals) float64 {
	if totals.InvoiceCount == 0 {
		return 0
	}
	return clampScore(float64(totals.OverdueCount) / float64(totals.InvoiceCount) * 10)
}

// overageScore scores the overage share of billed amount, 10 at
// MaxOverageFraction.
func (e *Engine) overageScore(totals models.BillingTotals) float64 {
	return clampScore(totals.OverageFraction() / e.cfg.MaxOverageFraction * 10)
}

// AssessTiering runs the cheaper-tier comparison alone, for callers that
// need the tiering verdict without a full risk score.
func (e *Engine) AssessTiering(invoices []models.Invoice) TieringAssessment {
	_, assessment := e.tieringGapScore(invoices, models.Totals(invoices))
	return assessment
}

// TieringAssessment captures the cheaper-tier comparison over the window.
type TieringAssessment struct {
	TotalGapCents int64
	GapFraction   float64
	BestTier      string
	Material      bool
}

// MonthlySavingDollars averages the identified gap per invoice month.
func (t TieringAssessment) MonthlySavingDollars() float64 {
	return float64(t.TotalGapCents) / 100
}

// tieringGapScore compares each invoice against the precomputed costs at
// the named usage tiers and scores the aggregate gap to the cheapest one.
func (e *Engine) tieringGapScore(invoices []models.Invoice, totals models.BillingTotals) (float64, TieringAssessment) {
	tierGaps := map[string]int64{}
	var bestGap int64

	for _, inv := range invoices {
		for tier, cost := range map[string]int64{
			"40": inv.Tier40CostCents,
			"50": inv.Tier50CostCents,
			"80": inv.Tier80CostCents,
		} {
			if cost > 0 && cost < inv.AmountCents {
				tierGaps[tier] += inv.AmountCents - cost
			}
		}
	}

	assessment := TieringAssessment{}
	for tier, gap := range tierGaps {
		if gap > bestGap || (gap == bestGap && tier < assessment.BestTier) {
			bestGap = gap
			assessment.BestTier = tier
		}
	}
	if bestGap == 0 || totals.BilledCents == 0 {
		return 0, assessment
	}

	// Average saving per invoice month, against the whole window's bill.
	assessment.TotalGapCents = bestGap / int64(totals.InvoiceCount)
	assessment.GapFraction = float64(bestGap) / float64(totals.BilledCents)
	assessment.Material = assessment.GapFraction >= e.cfg.MaterialGapFraction

	return clampScore(assessment.GapFraction / e.cfg.MaxGapFraction * 10), assessment
}

func clampScore(v float64) float64 {
	return math.Min(10, math.Max(0, v))
}
