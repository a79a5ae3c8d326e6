package usage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prompt-general/pulsecheck/internal/config"
	"github.com/prompt-general/pulsecheck/pkg/models"
)

type fakeStore struct {
	records []models.UsageRecord
	summary models.UsageSummary
	trend   models.UsageTrend

	gotMonths []int
}

func (f *fakeStore) ListUsage(_ context.Context, _ int64, months int) ([]models.UsageRecord, error) {
	f.gotMonths = append(f.gotMonths, months)
	return f.records, nil
}

func (f *fakeStore) GetUsageSummary(_ context.Context, _ int64, months int) (models.UsageSummary, error) {
	f.gotMonths = append(f.gotMonths, months)
	return f.summary, nil
}

func (f *fakeStore) GetUsageTrend(_ context.Context, _ int64, months int) (models.UsageTrend, error) {
	f.gotMonths = append(f.gotMonths, months)
	return f.trend, nil
}

func testConfig() config.AnomalyConfig {
	return config.Default().Scoring.Anomalies
}

func TestReportSharesOneWindowAcrossQueries(t *testing.T) {
	store := &fakeStore{records: []models.UsageRecord{{ReferenceMonth: "2026-07", Pageviews: 100}}}
	analyzer := New(store, testConfig())

	_, err := analyzer.Report(context.Background(), models.Customer{ID: 1}, 6)
	require.NoError(t, err)

	require.Len(t, store.gotMonths, 3)
	for _, months := range store.gotMonths {
		assert.Equal(t, 6, months)
	}
}

func TestReportRejectsNegativeWindow(t *testing.T) {
	analyzer := New(&fakeStore{}, testConfig())
	_, err := analyzer.Report(context.Background(), models.Customer{ID: 1}, -1)
	var validation *models.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "months", validation.Field)
}

func TestReportEmptyHistoryIsZeroedNotError(t *testing.T) {
	store := &fakeStore{}
	analyzer := New(store, testConfig())

	report, err := analyzer.Report(context.Background(), models.Customer{ID: 1}, 0)
	require.NoError(t, err)
	assert.Empty(t, report.History)
	assert.Empty(t, report.Anomalies)
	assert.Zero(t, report.Summary.TotalPageviews)
	// Only the history query should have run.
	assert.Len(t, store.gotMonths, 1)
}

func TestReportAnnotatesEfficiencyRatios(t *testing.T) {
	store := &fakeStore{records: []models.UsageRecord{
		{ReferenceMonth: "2026-07", Pageviews: 10000, Requests: 50000, BandwidthBytes: 2 << 30},
		{ReferenceMonth: "2026-06", Pageviews: 0, Requests: 100},
	}}
	analyzer := New(store, testConfig())

	report, err := analyzer.Report(context.Background(), models.Customer{ID: 1}, 0)
	require.NoError(t, err)

	require.Len(t, report.History, 2)
	assert.InDelta(t, 5.0, report.History[0].RequestPageviewRatio, 0.001)
	assert.InDelta(t, float64(2<<30), report.History[0].BandwidthPer10kPageviews, 0.001)
	// Zero pageviews must not divide.
	assert.Zero(t, report.History[1].RequestPageviewRatio)
	assert.Zero(t, report.History[1].BandwidthPer10kPageviews)
}

func trendWithDrop(previous, recent float64) models.UsageTrend {
	t := models.UsageTrend{
		Recent3moAvgPageviews:   recent,
		Previous3moAvgPageviews: previous,
	}
	t.PageviewsChangePct = models.ChangePct(recent, previous)
	return t
}

func TestDetectAnomaliesDropSeverities(t *testing.T) {
	cfg := testConfig()

	warning := DetectAnomalies(trendWithDrop(1000, 600), models.UsageSummary{}, cfg)
	require.Len(t, warning, 1)
	assert.Equal(t, models.AnomalyUsageDrop, warning[0].Type)
	assert.Equal(t, models.SeverityWarning, warning[0].Severity)

	critical := DetectAnomalies(trendWithDrop(1000, 300), models.UsageSummary{}, cfg)
	require.Len(t, critical, 1)
	assert.Equal(t, models.SeverityCritical, critical[0].Severity)

	mild := DetectAnomalies(trendWithDrop(1000, 900), models.UsageSummary{}, cfg)
	assert.Empty(t, mild)
}

func TestDetectAnomaliesSpikeSeverities(t *testing.T) {
	cfg := testConfig()

	info := DetectAnomalies(trendWithDrop(1000, 1600), models.UsageSummary{}, cfg)
	require.Len(t, info, 1)
	assert.Equal(t, models.AnomalyUsageSpike, info[0].Type)
	assert.Equal(t, models.SeverityInfo, info[0].Severity)

	warning := DetectAnomalies(trendWithDrop(1000, 3500), models.UsageSummary{}, cfg)
	require.Len(t, warning, 1)
	assert.Equal(t, models.SeverityWarning, warning[0].Severity)
}

func TestDetectAnomaliesNoPreviousWindowNoTrendFlag(t *testing.T) {
	// A brand-new customer has no previous window; that is not a drop.
	anomalies := DetectAnomalies(trendWithDrop(0, 500), models.UsageSummary{}, testConfig())
	assert.Empty(t, anomalies)
}

func TestDetectAnomaliesEfficiencyRatios(t *testing.T) {
	cfg := testConfig()

	summary := models.UsageSummary{
		TotalPageviews: 10000,
		TotalRequests:  300000, // 30 requests per pageview
	}
	anomalies := DetectAnomalies(models.UsageTrend{}, summary, cfg)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.AnomalyHighRequestRatio, anomalies[0].Type)
	assert.Equal(t, models.SeverityWarning, anomalies[0].Severity)

	heavy := models.UsageSummary{
		TotalPageviews:      10000,
		TotalBandwidthBytes: 6 << 30, // 6 GiB per 10k pageviews
	}
	anomalies = DetectAnomalies(models.UsageTrend{}, heavy, cfg)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.AnomalyHeavyAssets, anomalies[0].Type)
	assert.Equal(t, models.SeverityInfo, anomalies[0].Severity)
}

func TestChangePctZeroPrevious(t *testing.T) {
	assert.Equal(t, 0.0, models.ChangePct(500, 0))
	assert.Equal(t, -40.0, models.ChangePct(600, 1000))
	assert.Equal(t, 100.0, models.ChangePct(2000, 1000))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "1.5 MB", FormatBytes(1572864))
	assert.Equal(t, "2.0 GB", FormatBytes(2<<30))
	assert.Equal(t, "1.0 TB", FormatBytes(1<<40))
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "999", FormatCount(999))
	assert.Equal(t, "12.3K", FormatCount(12345))
	assert.Equal(t, "4.5M", FormatCount(4_500_000))
}
