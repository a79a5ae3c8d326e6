// Package status merges billing and communication signals into a single
// customer severity: healthy, warning or critical.
package status

import (
	"fmt"
	"strings"

	"github.com/prompt-general/pulsecheck/internal/comms"
	"github.com/prompt-general/pulsecheck/internal/config"
	"github.com/prompt-general/pulsecheck/pkg/models"
)

// BillingSignals is the slice of billing state the classifier needs.
type BillingSignals struct {
	OverdueCount int
	OverdueCents int64
}

// Classifier applies the keyword rules. Both phrase sets are tunable
// business vocabulary, injected from config.
type Classifier struct {
	soft []string
	hard []string
}

// New creates a classifier from the configured keyword sets. Keywords are
// matched case-insensitively against message snippets.
func New(cfg config.StatusConfig) *Classifier {
	return &Classifier{
		soft: lowerAll(cfg.SoftKeywords),
		hard: lowerAll(cfg.HardKeywords),
	}
}

// Determine classifies a customer. Healthy by default; warning on any
// overdue invoice or a soft complaint; critical only when an overdue
// invoice coincides with a hard complaint. Either signal alone never
// escalates to critical. A disabled communication history contributes
// nothing in either direction.
func (c *Classifier) Determine(billing BillingSignals, history comms.History) models.StatusResult {
	overdue := billing.OverdueCount > 0

	softHit, hardHit := "", ""
	if history.Meta.Enabled {
		softHit = firstMatch(history.Messages, c.soft)
		hardHit = firstMatch(history.Messages, c.hard)
	}

	switch {
	case overdue && hardHit != "":
		return models.StatusResult{
			Severity: models.SeverityCritical,
			Emoji:    "🚨",
			Text: fmt.Sprintf("%d overdue invoice(s) and an escalation-grade complaint (%q) in recent messages",
				billing.OverdueCount, hardHit),
		}
	case overdue:
		return models.StatusResult{
			Severity: models.SeverityWarning,
			Emoji:    "⚠️",
			Text:     fmt.Sprintf("%d overdue invoice(s) totaling $%.2f", billing.OverdueCount, float64(billing.OverdueCents)/100),
		}
	case softHit != "" || hardHit != "":
		hit := softHit
		if hit == "" {
			hit = hardHit
		}
		return models.StatusResult{
			Severity: models.SeverityWarning,
			Emoji:    "⚠️",
			Text:     fmt.Sprintf("recent messages mention %q", hit),
		}
	default:
		return models.StatusResult{
			Severity: models.SeverityHealthy,
			Emoji:    "✅",
			Text:     "billing is current and no complaints detected",
		}
	}
}

// firstMatch returns the first keyword found in any message snippet, or "".
func firstMatch(messages []comms.EmailMessage, keywords []string) string {
	for _, msg := range messages {
		snippet := strings.ToLower(msg.Snippet)
		for _, kw := range keywords {
			if strings.Contains(snippet, kw) {
				return kw
			}
		}
	}
	return ""
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
