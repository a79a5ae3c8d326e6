package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prompt-general/pulsecheck/internal/comms"
	"github.com/prompt-general/pulsecheck/internal/config"
	"github.com/prompt-general/pulsecheck/internal/risk"
	"github.com/prompt-general/pulsecheck/internal/status"
	"github.com/prompt-general/pulsecheck/internal/usage"
	"github.com/prompt-general/pulsecheck/pkg/models"
)

// BillingStore is the invoice reader the service needs. limit==0 loads the
// full billing history.
type BillingStore interface {
	ListInvoices(ctx context.Context, customerID int64, limit int) ([]models.Invoice, error)
}

// SnapshotStore is the summary cache: one row per customer, replaced
// atomically on regeneration. GetSnapshot returns nil when no row exists.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, customerID int64) (*models.SummarySnapshot, error)
	ReplaceSnapshot(ctx context.Context, snapshot models.SummarySnapshot) error
}

// Publisher emits lifecycle events after a summary has been regenerated.
type Publisher interface {
	SummaryRefreshed(ctx context.Context, customer models.Customer, severity models.Severity) error
	CriticalStatus(ctx context.Context, customer models.Customer, detail string) error
}

// Service produces customer summaries, serving from the snapshot table when
// possible and regenerating from the collaborators when not.
type Service struct {
	billing    BillingStore
	analyzer   *usage.Analyzer
	comms      comms.Reader
	classifier *status.Classifier
	riskEngine *risk.Engine
	snapshots  SnapshotStore
	publisher  Publisher
	cfg        config.CommsConfig
	log        *logrus.Logger
	now        func() time.Time
}

// NewService wires the summary pipeline. publisher may be nil when event
// publishing is disabled.
func NewService(
	billing BillingStore,
	analyzer *usage.Analyzer,
	commsReader comms.Reader,
	classifier *status.Classifier,
	riskEngine *risk.Engine,
	snapshots SnapshotStore,
	publisher Publisher,
	cfg config.CommsConfig,
	log *logrus.Logger,
) *Service {
	return &Service{
		billing:    billing,
		analyzer:   analyzer,
		comms:      commsReader,
		classifier: classifier,
		riskEngine: riskEngine,
		snapshots:  snapshots,
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// GetSummary returns the summary for a resolved customer. Unless
// forceRefresh is set, an existing snapshot is served as-is; forceRefresh
// skips the lookup entirely and always regenerates. A failed snapshot read
// degrades to regeneration, and a failed snapshot write is logged but never
// fails the request: the caller still gets the freshly generated summary.
func (s *Service) GetSummary(ctx context.Context, customer models.Customer, forceRefresh bool) (models.SummaryResponse, error) {
	if !forceRefresh {
		snapshot, err := s.snapshots.GetSnapshot(ctx, customer.ID)
		if err != nil {
			s.log.WithError(err).WithField("customer_id", customer.ID).
				Warn("Snapshot lookup failed, regenerating summary")
		} else if snapshot != nil {
			return models.SummaryResponse{
				Customer: customer,
				Summary:  snapshot.SummaryText,
				Meta: models.SummaryMeta{
					Source:      models.SourceSnapshot,
					Hint:        "served from the stored snapshot; pass force_refresh=true to regenerate",
					GeneratedAt: snapshot.GeneratedAt,
				},
			}, nil
		}
	}
	return s.generate(ctx, customer)
}

func (s *Service) generate(ctx context.Context, customer models.Customer) (models.SummaryResponse, error) {
	invoices, err := s.billing.ListInvoices(ctx, customer.ID, 0)
	if err != nil {
		return models.SummaryResponse{}, fmt.Errorf("failed to load billing history: %w", err)
	}
	totals := models.Totals(invoices)

	report, err := s.analyzer.Report(ctx, customer, 0)
	if err != nil {
		return models.SummaryResponse{}, fmt.Errorf("failed to build usage report: %w", err)
	}

	history, err := s.comms.History(ctx, customer.ID, s.cfg.MaxResults)
	if err != nil {
		return models.SummaryResponse{}, fmt.Errorf("failed to load communication history: %w", err)
	}

	st := s.classifier.Determine(status.BillingSignals{
		OverdueCount: totals.OverdueCount,
		OverdueCents: totals.OverdueCents,
	}, history)

	tiering := s.riskEngine.AssessTiering(invoices)

	text := Compose(customer, st,
		billingSection(totals),
		usageSection(report),
		GenerateAnalysis(totals, report.Trend, history),
		GenerateAction(st, totals),
		tieringSection(tiering),
	)

	generatedAt := s.now().UTC()
	s.storeSnapshot(ctx, customer, text, st, history, generatedAt)

	if s.publisher != nil {
		if err := s.publisher.SummaryRefreshed(ctx, customer, st.Severity); err != nil {
			s.log.WithError(err).WithField("customer_id", customer.ID).
				Warn("Failed to publish summary refresh event")
		}
		if st.Severity == models.SeverityCritical {
			if err := s.publisher.CriticalStatus(ctx, customer, st.Text); err != nil {
				s.log.WithError(err).WithField("customer_id", customer.ID).
					Warn("Failed to publish critical status event")
			}
		}
	}

	return models.SummaryResponse{
		Customer: customer,
		Summary:  text,
		Meta: models.SummaryMeta{
			Source:      models.SourceGenerated,
			Hint:        "generated from live billing, usage and communication signals",
			GeneratedAt: generatedAt,
		},
	}, nil
}

// storeSnapshot replaces the customer's snapshot row. Persistence is best
// effort: the generated summary is returned either way.
func (s *Service) storeSnapshot(ctx context.Context, customer models.Customer, text string, st models.StatusResult, history comms.History, generatedAt time.Time) {
	sources, _ := json.Marshal(map[string]bool{
		"billing": true,
		"usage":   true,
		"email":   history.Meta.Enabled,
	})
	meta, _ := json.Marshal(models.SnapshotMeta{
		LLMUsed:        false,
		StatusSeverity: st.Severity,
	})

	err := s.snapshots.ReplaceSnapshot(ctx, models.SummarySnapshot{
		CustomerID:  customer.ID,
		GeneratedAt: generatedAt,
		SummaryText: text,
		DataSources: string(sources),
		Meta:        string(meta),
	})
	if err != nil {
		s.log.WithError(err).WithField("customer_id", customer.ID).
			Error("Failed to store summary snapshot")
	}
}

func billingSection(t models.BillingTotals) string {
	if t.InvoiceCount == 0 {
		return "  no invoices on record"
	}
	section := fmt.Sprintf("  %d invoice(s) on record: %d paid, %d overdue ($%.2f outstanding)\n  total billed $%.2f",
		t.InvoiceCount, t.PaidCount, t.OverdueCount,
		float64(t.OverdueCents)/100, float64(t.BilledCents)/100)
	if t.OverageCents > 0 {
		section += fmt.Sprintf(", of which $%.2f (%.0f%%) is overage",
			float64(t.OverageCents)/100, t.OverageFraction()*100)
	}
	return section
}

func usageSection(report usage.Report) string {
	if len(report.History) == 0 {
		return "  no usage recorded"
	}
	section := fmt.Sprintf("  %s pageviews, %s requests, %s bandwidth across %d recorded month(s)",
		usage.FormatCount(report.Summary.TotalPageviews),
		usage.FormatCount(report.Summary.TotalRequests),
		usage.FormatBytes(report.Summary.TotalBandwidthBytes),
		len(report.History))
	for _, anomaly := range report.Anomalies {
		section += fmt.Sprintf("\n  [%s] %s", anomaly.Severity, anomaly.Detail)
	}
	return section
}

func tieringSection(t risk.TieringAssessment) string {
	if !t.Material {
		return ""
	}
	return fmt.Sprintf("  the %s tier would have been ~$%.2f/month cheaper for the same usage (%.0f%% of billed amount)",
		t.BestTier, t.MonthlySavingDollars(), t.GapFraction*100)
}
