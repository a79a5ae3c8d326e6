package models

import "time"

// InvoiceStatus represents the payment state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
	InvoiceStatusOpen    InvoiceStatus = "open"
	InvoiceStatusVoid    InvoiceStatus = "void"
)

// Invoice is one billing period for a customer. Amounts are in cents.
// The tier_*_cost columns are the hypothetical invoice totals the customer
// would have paid at each named usage tier that month; they are precomputed
// by the billing warehouse and used to detect cheaper-tier opportunities.
type Invoice struct {
	ID                  int64         `json:"id"`
	CustomerID          int64         `json:"customer_id"`
	AmountCents         int64         `json:"amount"`
	Status              InvoiceStatus `json:"status"`
	DueDate             time.Time     `json:"due_date"`
	PaidDate            *time.Time    `json:"paid_date,omitempty"`
	ReferenceMonth      string        `json:"reference_month"` // "2026-07"
	ExtraPageviewsCents int64         `json:"extra_pageviews_price"`
	ExtraRequestsCents  int64         `json:"extra_req_price"`
	ExtraBandwidthCents int64         `json:"extra_bw_price"`
	Pageviews           int64         `json:"pageviews"`
	Tier40CostCents     int64         `json:"tier_40_cost"`
	Tier50CostCents     int64         `json:"tier_50_cost"`
	Tier80CostCents     int64         `json:"tier_80_cost"`
}

// IsPaid reports whether the invoice has been settled.
func (i Invoice) IsPaid() bool {
	return i.Status == InvoiceStatusPaid
}

// IsOverdue reports whether the invoice is currently overdue.
func (i Invoice) IsOverdue() bool {
	return i.Status == InvoiceStatusOverdue
}

// OverageCents returns the portion of the invoice attributable to usage
// beyond the plan allowance.
func (i Invoice) OverageCents() int64 {
	return i.ExtraPageviewsCents + i.ExtraRequestsCents + i.ExtraBandwidthCents
}

// DaysLate returns how many days after the due date the invoice was paid,
// or zero for on-time or unpaid invoices.
func (i Invoice) DaysLate() float64 {
	if i.PaidDate == nil || !i.PaidDate.After(i.DueDate) {
		return 0
	}
	return i.PaidDate.Sub(i.DueDate).Hours() / 24
}

// BillingTotals aggregates an invoice window into the signals the scorers
// and the summary composer consume.
type BillingTotals struct {
	InvoiceCount       int   `json:"invoice_count"`
	PaidCount          int   `json:"paid_count"`
	OverdueCount       int   `json:"overdue_count"`
	BilledCents        int64 `json:"billed_total"`
	OverdueCents       int64 `json:"overdue_total"`
	OverageCents       int64 `json:"overage_total"`
}

// Totals computes BillingTotals over a set of invoices.
func Totals(invoices []Invoice) BillingTotals {
	var t BillingTotals
	for _, inv := range invoices {
		if inv.Status == InvoiceStatusVoid {
			continue
		}
		t.InvoiceCount++
		t.BilledCents += inv.AmountCents
		t.OverageCents += inv.OverageCents()
		if inv.IsPaid() {
			t.PaidCount++
		}
		if inv.IsOverdue() {
			t.OverdueCount++
			t.OverdueCents += inv.AmountCents
		}
	}
	return t
}

// PaidFraction returns the fraction of invoices that were paid, or 1 for an
// empty window so that missing data never reads as delinquency.
func (t BillingTotals) PaidFraction() float64 {
	if t.InvoiceCount == 0 {
		return 1
	}
	return float64(t.PaidCount) / float64(t.InvoiceCount)
}

// OverageFraction returns the share of billed amount attributable to overage.
func (t BillingTotals) OverageFraction() float64 {
	if t.BilledCents == 0 {
		return 0
	}
	return float64(t.OverageCents) / float64(t.BilledCents)
}
