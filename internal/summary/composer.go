// Package summary composes the customer narrative: status, billing and
// usage sections, a rule-based analysis and a recommended action, cached
// as a one-row-per-customer snapshot.
package summary

import (
	"fmt"
	"strings"

	"github.com/prompt-general/pulsecheck/internal/comms"
	"github.com/prompt-general/pulsecheck/pkg/models"
)

// Analysis thresholds. The narrative names the strongest contributing
// factors; below all of these the fixed "within normal ranges" sentence is
// returned instead.
const (
	growthNoticePct   = 20.0
	declineNoticePct  = 25.0
	overageNoticeFrac = 0.3
)

// Compose renders the deterministic summary template. Section texts are
// included verbatim; the tiering section is included only when supplied.
func Compose(customer models.Customer, status models.StatusResult, billingSection, usageSection, analysis, action, tieringSection string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Customer summary — %s (%s)\n\n", customer.Name, customer.Email)
	fmt.Fprintf(&b, "Status: %s %s — %s\n\n", status.Emoji, strings.ToUpper(string(status.Severity)), status.Text)
	fmt.Fprintf(&b, "Billing:\n%s\n\n", billingSection)
	fmt.Fprintf(&b, "Usage (aggregated over billing history):\n%s\n", usageSection)
	if tieringSection != "" {
		fmt.Fprintf(&b, "\nTiering:\n%s\n", tieringSection)
	}
	fmt.Fprintf(&b, "\nAnalysis: %s\n", analysis)
	fmt.Fprintf(&b, "Recommended action: %s\n", action)

	return b.String()
}

// GenerateAnalysis produces the short narrative. When no signal crosses a
// threshold it returns the fixed normal-ranges sentence; otherwise it
// names the strongest factors, ordered by how actionable they are.
func GenerateAnalysis(totals models.BillingTotals, trend models.UsageTrend, history comms.History) string {
	change := models.ChangePct(trend.Recent3moAvgPageviews, trend.Previous3moAvgPageviews)

	var findings []string

	if change >= growthNoticePct && totals.OverdueCount > 0 {
		findings = append(findings, fmt.Sprintf(
			"usage is growing (%.0f%% more pageviews) while %d invoice(s) sit overdue — the product is sticky but billing needs attention",
			change, totals.OverdueCount))
	} else if totals.OverdueCount > 0 {
		findings = append(findings, fmt.Sprintf("%d invoice(s) are overdue", totals.OverdueCount))
	}

	if change <= -declineNoticePct {
		findings = append(findings, fmt.Sprintf("pageviews declined %.0f%% versus the previous 3 months", -change))
	}

	if frac := totals.OverageFraction(); frac >= overageNoticeFrac {
		findings = append(findings, fmt.Sprintf("overage makes up %.0f%% of billed amount", frac*100))
	}

	if history.Meta.Enabled && totals.OverdueCount > 0 && history.TotalMessages > 0 {
		findings = append(findings, fmt.Sprintf("%d recent messages on file worth reviewing", history.TotalMessages))
	}

	if len(findings) == 0 {
		return "all tracked billing and usage metrics are within normal ranges"
	}
	return strings.Join(findings, "; ")
}

// GenerateAction maps the status severity to a follow-up, scaled between
// urgent escalation and routine monitoring.
func GenerateAction(status models.StatusResult, totals models.BillingTotals) string {
	switch status.Severity {
	case models.SeverityCritical:
		return fmt.Sprintf("URGENT: escalate to the account owner today — %d overdue invoice(s) ($%.2f) plus an escalation-grade complaint",
			totals.OverdueCount, float64(totals.OverdueCents)/100)
	case models.SeverityWarning:
		if totals.OverdueCount > 0 {
			return fmt.Sprintf("schedule a billing check-in this week to clear %d overdue invoice(s)", totals.OverdueCount)
		}
		return "schedule a check-in this week to follow up on the recent complaints"
	default:
		return "continue routine monitoring; next review at the regular cadence"
	}
}
