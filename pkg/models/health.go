package models

// HealthLabel buckets a 0-100 health score for fleet triage.
type HealthLabel string

const (
	HealthCritical       HealthLabel = "critical"
	HealthAtRisk         HealthLabel = "at_risk"
	HealthNeedsAttention HealthLabel = "needs_attention"
	HealthHealthy        HealthLabel = "healthy"
	HealthExcellent      HealthLabel = "excellent"
)

// HealthLabels lists every label from worst to best. Triage expansion and
// the distribution report rely on this ordering.
var HealthLabels = []HealthLabel{
	HealthCritical,
	HealthAtRisk,
	HealthNeedsAttention,
	HealthHealthy,
	HealthExcellent,
}

// HealthThresholds are the non-decreasing score boundaries between labels.
// A score below Critical maps to critical, below AtRisk to at_risk, and so
// on; at or above Healthy maps to excellent.
type HealthThresholds struct {
	Critical       float64 `json:"critical" yaml:"critical"`
	AtRisk         float64 `json:"at_risk" yaml:"at_risk"`
	NeedsAttention float64 `json:"needs_attention" yaml:"needs_attention"`
	Healthy        float64 `json:"healthy" yaml:"healthy"`
}

// DefaultHealthThresholds returns the calibrated label boundaries.
func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		Critical:       25,
		AtRisk:         45,
		NeedsAttention: 65,
		Healthy:        85,
	}
}

// HealthLabelForScore maps a score to its label. Strictly higher scores never
// map to a strictly worse label.
func HealthLabelForScore(score float64, t HealthThresholds) HealthLabel {
	switch {
	case score < t.Critical:
		return HealthCritical
	case score < t.AtRisk:
		return HealthAtRisk
	case score < t.NeedsAttention:
		return HealthNeedsAttention
	case score < t.Healthy:
		return HealthHealthy
	default:
		return HealthExcellent
	}
}

// SeverityRank orders labels worst-first for triage expansion. Unknown
// labels rank after every known one.
func SeverityRank(label HealthLabel) int {
	for i, l := range HealthLabels {
		if l == label {
			return i
		}
	}
	return len(HealthLabels)
}

// HealthScoreResult is one customer's scored row in the fleet view.
// Derived fresh on every call; never persisted.
type HealthScoreResult struct {
	Customer          Customer    `json:"customer"`
	HealthScore       float64     `json:"health_score"`
	HealthLabel       HealthLabel `json:"health_label"`
	Issues            []string    `json:"issues"`
	OverdueAmountCents int64      `json:"overdue_amount"`
	OveragePct         float64    `json:"overage_pct"`
	InvoiceCount       int        `json:"invoice_count"`
}
