// Package usage computes monthly usage aggregates, rolling 3-month trend
// deltas, efficiency ratios and anomaly flags for a single customer.
package usage

import (
	"context"
	"fmt"

	"github.com/prompt-general/pulsecheck/internal/config"
	"github.com/prompt-general/pulsecheck/pkg/models"
)

// Store is the usage reader. Every query is scoped to the same months
// window; months==0 means the full recorded history.
type Store interface {
	ListUsage(ctx context.Context, customerID int64, months int) ([]models.UsageRecord, error)
	GetUsageSummary(ctx context.Context, customerID int64, months int) (models.UsageSummary, error)
	GetUsageTrend(ctx context.Context, customerID int64, months int) (models.UsageTrend, error)
}

// Report is the full analyzer output for one customer and window.
type Report struct {
	Customer  models.Customer       `json:"customer"`
	Months    int                   `json:"months"`
	History   []models.UsageRecord  `json:"usage_history"`
	Summary   models.UsageSummary   `json:"summary"`
	Trend     models.UsageTrend     `json:"trend"`
	Anomalies []models.Anomaly      `json:"anomalies"`
}

// Analyzer derives trends and anomalies from the usage store.
type Analyzer struct {
	store Store
	cfg   config.AnomalyConfig
}

// New creates an analyzer with the given anomaly thresholds.
func New(store Store, cfg config.AnomalyConfig) *Analyzer {
	return &Analyzer{store: store, cfg: cfg}
}

// Report builds the usage report for a customer over the last months
// months. History, summary and trend all reflect exactly that window. A
// customer with no usage history gets a zeroed report, not an error.
func (a *Analyzer) Report(ctx context.Context, customer models.Customer, months int) (Report, error) {
	if months < 0 {
		return Report{}, &models.ValidationError{Field: "months", Reason: "must not be negative"}
	}

	report := Report{Customer: customer, Months: months, Anomalies: []models.Anomaly{}}

	history, err := a.store.ListUsage(ctx, customer.ID, months)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list usage: %w", err)
	}
	if len(history) == 0 {
		report.History = []models.UsageRecord{}
		return report, nil
	}
	report.History = annotate(history)

	report.Summary, err = a.store.GetUsageSummary(ctx, customer.ID, months)
	if err != nil {
		return Report{}, fmt.Errorf("failed to aggregate usage: %w", err)
	}

	trend, err := a.store.GetUsageTrend(ctx, customer.ID, months)
	if err != nil {
		return Report{}, fmt.Errorf("failed to compute usage trend: %w", err)
	}
	report.Trend = withChangePcts(trend)

	report.Anomalies = DetectAnomalies(report.Trend, report.Summary, a.cfg)
	return report, nil
}

// annotate fills the derived efficiency ratios on each record. The stored
// numeric fields are never modified.
func annotate(records []models.UsageRecord) []models.UsageRecord {
	out := make([]models.UsageRecord, len(records))
	for i, rec := range records {
		if rec.Pageviews > 0 {
			rec.RequestPageviewRatio = float64(rec.Requests) / float64(rec.Pageviews)
			rec.BandwidthPer10kPageviews = float64(rec.BandwidthBytes) / (float64(rec.Pageviews) / 10000)
		}
		out[i] = rec
	}
	return out
}

// withChangePcts derives the percentage deltas from the window averages
// using the shared change convention (0 when the previous average is 0).
func withChangePcts(t models.UsageTrend) models.UsageTrend {
	t.PageviewsChangePct = models.ChangePct(t.Recent3moAvgPageviews, t.Previous3moAvgPageviews)
	t.RequestsChangePct = models.ChangePct(t.Recent3moAvgRequests, t.Previous3moAvgRequests)
	t.BandwidthChangePct = models.ChangePct(t.Recent3moAvgBandwidth, t.Previous3moAvgBandwidth)
	return t
}

// DetectAnomalies flags deviations in the trend and efficiency ratios.
// Pure so the thresholds can be regression-tested in isolation.
func DetectAnomalies(trend models.UsageTrend, summary models.UsageSummary, cfg config.AnomalyConfig) []models.Anomaly {
	anomalies := []models.Anomaly{}

	if trend.Previous3moAvgPageviews > 0 {
		change := trend.PageviewsChangePct
		switch {
		case change <= -cfg.DropCriticalPct:
			anomalies = append(anomalies, models.Anomaly{
				Type:     models.AnomalyUsageDrop,
				Severity: models.SeverityCritical,
				Detail:   fmt.Sprintf("pageviews fell %.0f%% over the last 3 months", -change),
			})
		case change <= -cfg.DropWarningPct:
			anomalies = append(anomalies, models.Anomaly{
				Type:     models.AnomalyUsageDrop,
				Severity: models.SeverityWarning,
				Detail:   fmt.Sprintf("pageviews fell %.0f%% over the last 3 months", -change),
			})
		case change >= cfg.SpikeWarningPct:
			anomalies = append(anomalies, models.Anomaly{
				Type:     models.AnomalyUsageSpike,
				Severity: models.SeverityWarning,
				Detail:   fmt.Sprintf("pageviews rose %.0f%% over the last 3 months", change),
			})
		case change >= cfg.SpikeInfoPct:
			anomalies = append(anomalies, models.Anomaly{
				Type:     models.AnomalyUsageSpike,
				Severity: models.SeverityInfo,
				Detail:   fmt.Sprintf("pageviews rose %.0f%% over the last 3 months", change),
			})
		}
	}

	if summary.TotalPageviews > 0 {
		requestRatio := float64(summary.TotalRequests) / float64(summary.TotalPageviews)
		if requestRatio > cfg.MaxRequestRatio {
			anomalies = append(anomalies, models.Anomaly{
				Type:     models.AnomalyHighRequestRatio,
				Severity: models.SeverityWarning,
				Detail:   fmt.Sprintf("%.1f requests per pageview suggests bot or API-heavy traffic", requestRatio),
			})
		}

		bwPer10k := float64(summary.TotalBandwidthBytes) / (float64(summary.TotalPageviews) / 10000)
		if bwPer10k > cfg.MaxBandwidthPer10kPvs {
			anomalies = append(anomalies, models.Anomaly{
				Type:     models.AnomalyHeavyAssets,
				Severity: models.SeverityInfo,
				Detail:   fmt.Sprintf("%s per 10k pageviews points at unoptimized assets", FormatBytes(int64(bwPer10k))),
			})
		}
	}

	return anomalies
}
