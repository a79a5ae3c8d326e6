package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prompt-general/pulsecheck/internal/comms"
	"github.com/prompt-general/pulsecheck/pkg/models"
)

func TestGenerateAnalysisNormalRanges(t *testing.T) {
	analysis := GenerateAnalysis(models.BillingTotals{InvoiceCount: 3, PaidCount: 3}, models.UsageTrend{}, comms.History{})
	assert.Equal(t, "all tracked billing and usage metrics are within normal ranges", analysis)
}

func TestGenerateAnalysisGrowthWithOverdue(t *testing.T) {
	totals := models.BillingTotals{InvoiceCount: 4, PaidCount: 2, OverdueCount: 2}
	trend := models.UsageTrend{Recent3moAvgPageviews: 1500, Previous3moAvgPageviews: 1000}

	analysis := GenerateAnalysis(totals, trend, comms.History{})
	assert.Contains(t, analysis, "usage is growing")
	assert.Contains(t, analysis, "2 invoice(s) sit overdue")
}

func TestGenerateAnalysisDecline(t *testing.T) {
	trend := models.UsageTrend{Recent3moAvgPageviews: 600, Previous3moAvgPageviews: 1000}
	analysis := GenerateAnalysis(models.BillingTotals{InvoiceCount: 1, PaidCount: 1}, trend, comms.History{})
	assert.Contains(t, analysis, "declined 40%")
}

func TestGenerateAnalysisOverageShare(t *testing.T) {
	totals := models.BillingTotals{InvoiceCount: 2, PaidCount: 2, BilledCents: 20000, OverageCents: 8000}
	analysis := GenerateAnalysis(totals, models.UsageTrend{}, comms.History{})
	assert.Contains(t, analysis, "overage makes up 40%")
}

func TestGenerateActionBySeverity(t *testing.T) {
	totals := models.BillingTotals{OverdueCount: 2, OverdueCents: 30000}

	urgent := GenerateAction(models.StatusResult{Severity: models.SeverityCritical}, totals)
	assert.Contains(t, urgent, "URGENT")
	assert.Contains(t, urgent, "$300.00")

	warning := GenerateAction(models.StatusResult{Severity: models.SeverityWarning}, totals)
	assert.Contains(t, warning, "billing check-in")

	complaintOnly := GenerateAction(models.StatusResult{Severity: models.SeverityWarning}, models.BillingTotals{})
	assert.Contains(t, complaintOnly, "complaints")

	routine := GenerateAction(models.StatusResult{Severity: models.SeverityHealthy}, models.BillingTotals{})
	assert.Contains(t, routine, "routine monitoring")
}

func TestComposeIncludesTieringOnlyWhenPresent(t *testing.T) {
	customer := models.Customer{Name: "Acme Corp", Email: "billing@acme.example"}
	st := models.StatusResult{Severity: models.SeverityHealthy, Emoji: "✅", Text: "all clear"}

	without := Compose(customer, st, "  billing", "  usage", "fine", "relax", "")
	assert.NotContains(t, without, "Tiering:")

	with := Compose(customer, st, "  billing", "  usage", "fine", "relax", "  cheaper tier available")
	assert.Contains(t, with, "Tiering:\n  cheaper tier available")
}

func TestComposeTemplate(t *testing.T) {
	customer := models.Customer{Name: "Acme Corp", Email: "billing@acme.example"}
	st := models.StatusResult{Severity: models.SeverityWarning, Emoji: "⚠️", Text: "1 overdue invoice"}

	text := Compose(customer, st, "  2 invoices", "  10.0K pageviews", "watch billing", "call them", "")

	assert.Contains(t, text, "Customer summary — Acme Corp (billing@acme.example)")
	assert.Contains(t, text, "Status: ⚠️ WARNING — 1 overdue invoice")
	assert.Contains(t, text, "Billing:\n  2 invoices")
	assert.Contains(t, text, "Usage (aggregated over billing history):\n  10.0K pageviews")
	assert.Contains(t, text, "Analysis: watch billing")
	assert.Contains(t, text, "Recommended action: call them")
}
