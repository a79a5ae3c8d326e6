package models

// UsageRecord is one month of traffic for a customer. The two ratio fields
// are derived by the analyzer, not stored.
type UsageRecord struct {
	ReferenceMonth           string  `json:"reference_month"` // "2026-07"
	Pageviews                int64   `json:"pageviews"`
	Requests                 int64   `json:"requests"`
	BandwidthBytes           int64   `json:"bandwidth"`
	Plan                     string  `json:"plan"`
	RequestPageviewRatio     float64 `json:"request_pageview_ratio"`
	BandwidthPer10kPageviews float64 `json:"bw_per_10k_pageviews"`
}

// UsageSummary holds cumulative totals over a requested window of months.
type UsageSummary struct {
	TotalPageviews      int64 `json:"total_pageviews"`
	TotalRequests       int64 `json:"total_requests"`
	TotalBandwidthBytes int64 `json:"total_bandwidth"`
	Months              int   `json:"months"`
}

// UsageTrend compares the most recent 3 months against the preceding 3.
// Change percentages are (recent-previous)/previous*100, defined as 0 when
// the previous average is 0.
type UsageTrend struct {
	Recent3moAvgPageviews   float64 `json:"recent_3m_avg_pageviews"`
	Previous3moAvgPageviews float64 `json:"previous_3m_avg_pageviews"`
	Recent3moAvgRequests    float64 `json:"recent_3m_avg_requests"`
	Previous3moAvgRequests  float64 `json:"previous_3m_avg_requests"`
	Recent3moAvgBandwidth   float64 `json:"recent_3m_avg_bandwidth"`
	Previous3moAvgBandwidth float64 `json:"previous_3m_avg_bandwidth"`
	PageviewsChangePct      float64 `json:"pageviews_change_pct"`
	RequestsChangePct       float64 `json:"requests_change_pct"`
	BandwidthChangePct      float64 `json:"bandwidth_change_pct"`
}

// ChangePct implements the trend delta convention shared by every consumer.
func ChangePct(recent, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (recent - previous) / previous * 100
}

// AnomalyType classifies a flagged usage deviation.
type AnomalyType string

const (
	AnomalyUsageDrop        AnomalyType = "usage_drop"
	AnomalyUsageSpike       AnomalyType = "usage_spike"
	AnomalyHighRequestRatio AnomalyType = "high_request_ratio"
	AnomalyHeavyAssets      AnomalyType = "heavy_assets"
)

// Severity is shared by anomalies and the status classifier.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityHealthy  Severity = "healthy"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Anomaly is one flagged deviation in the usage trend or efficiency ratios.
type Anomaly struct {
	Type     AnomalyType `json:"type"`
	Severity Severity    `json:"severity"`
	Detail   string      `json:"detail,omitempty"`
}
