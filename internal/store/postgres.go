// Package store implements every reader interface on a Postgres billing
// warehouse using pgx. All access is read-only except the summary snapshot
// table, which is replaced transactionally.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prompt-general/pulsecheck/internal/comms"
	"github.com/prompt-general/pulsecheck/internal/config"
	"github.com/prompt-general/pulsecheck/pkg/models"
)

// Postgres is the shared store behind the resolver, the scorers, the usage
// analyzer, the communication reader and the snapshot cache.
type Postgres struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// New connects a pool using the database configuration and pings it once so
// that misconfiguration fails at startup, not on the first request.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns

	connCtx, cancel := context.WithTimeout(ctx, cfg.ConnTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool, queryTimeout: cfg.QueryTimeout}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() { p.pool.Close() }

// Ping reports whether the warehouse is reachable, for the health endpoint.
func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.pool.Ping(ctx)
}

func (p *Postgres) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.queryTimeout)
}

// unavailable tags a store failure with the collaborator it came from so the
// gateway can map it to 502 instead of a generic 500.
func unavailable(collaborator string, err error) error {
	return &models.CollaboratorUnavailableError{Collaborator: collaborator, Err: err}
}

// --- resolver.Store ---

const customerColumns = "id, name, email"

// GetCustomerByID returns nil when no customer has that id.
func (p *Postgres) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	row := p.pool.QueryRow(ctx, "SELECT "+customerColumns+" FROM customers WHERE id = $1", id)
	return scanCustomer(row)
}

// GetCustomerByEmail matches case-insensitively and returns nil on no match.
func (p *Postgres) GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	row := p.pool.QueryRow(ctx, "SELECT "+customerColumns+" FROM customers WHERE LOWER(email) = LOWER($1)", email)
	return scanCustomer(row)
}

// SearchCustomersByName returns every customer whose name contains the term,
// case-insensitively. The resolver picks among them.
func (p *Postgres) SearchCustomersByName(ctx context.Context, term string) ([]models.Customer, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx,
		"SELECT "+customerColumns+" FROM customers WHERE name ILIKE '%' || $1 || '%' ORDER BY id", term)
	if err != nil {
		return nil, unavailable("customer store", err)
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email); err != nil {
			return nil, unavailable("customer store", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("customer store", err)
	}
	return customers, nil
}

// ListCustomers returns the entire customer base for fleet scoring.
func (p *Postgres) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx, "SELECT "+customerColumns+" FROM customers ORDER BY id")
	if err != nil {
		return nil, unavailable("customer store", err)
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email); err != nil {
			return nil, unavailable("customer store", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("customer store", err)
	}
	return customers, nil
}

func scanCustomer(row pgx.Row) (*models.Customer, error) {
	var c models.Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("customer store", err)
	}
	return &c, nil
}

// --- billing (risk.Store, summary.BillingStore, health.Store) ---

const invoiceColumns = `id, customer_id, amount_cents, status, due_date, paid_date,
	reference_month, extra_pageviews_cents, extra_requests_cents, extra_bandwidth_cents,
	pageviews, tier_40_cost_cents, tier_50_cost_cents, tier_80_cost_cents`

// ListInvoices returns a customer's invoices, most recent reference month
// first. limit==0 returns the full history.
func (p *Postgres) ListInvoices(ctx context.Context, customerID int64, limit int) ([]models.Invoice, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := "SELECT " + invoiceColumns + " FROM invoices WHERE customer_id = $1 ORDER BY reference_month DESC"
	args := []any{customerID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("billing store", err)
	}
	defer rows.Close()
	return scanInvoices(rows)
}

// ListAllInvoices loads the whole invoice table grouped by customer, for the
// single-pass fleet scorer.
func (p *Postgres) ListAllInvoices(ctx context.Context) (map[int64][]models.Invoice, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx,
		"SELECT "+invoiceColumns+" FROM invoices ORDER BY customer_id, reference_month DESC")
	if err != nil {
		return nil, unavailable("billing store", err)
	}
	defer rows.Close()

	invoices, err := scanInvoices(rows)
	if err != nil {
		return nil, err
	}
	grouped := make(map[int64][]models.Invoice)
	for _, inv := range invoices {
		grouped[inv.CustomerID] = append(grouped[inv.CustomerID], inv)
	}
	return grouped, nil
}

func scanInvoices(rows pgx.Rows) ([]models.Invoice, error) {
	var invoices []models.Invoice
	for rows.Next() {
		var inv models.Invoice
		if err := rows.Scan(
			&inv.ID, &inv.CustomerID, &inv.AmountCents, &inv.Status, &inv.DueDate, &inv.PaidDate,
			&inv.ReferenceMonth, &inv.ExtraPageviewsCents, &inv.ExtraRequestsCents, &inv.ExtraBandwidthCents,
			&inv.Pageviews, &inv.Tier40CostCents, &inv.Tier50CostCents, &inv.Tier80CostCents,
		); err != nil {
			return nil, unavailable("billing store", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("billing store", err)
	}
	return invoices, nil
}

// --- usage.Store ---

// ListUsage returns a customer's monthly usage, most recent month first.
// months==0 returns the full recorded history.
func (p *Postgres) ListUsage(ctx context.Context, customerID int64, months int) ([]models.UsageRecord, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := `SELECT reference_month, pageviews, requests, bandwidth_bytes, plan
		FROM usage_months WHERE customer_id = $1 ORDER BY reference_month DESC`
	args := []any{customerID}
	if months > 0 {
		query += " LIMIT $2"
		args = append(args, months)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("usage store", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var rec models.UsageRecord
		if err := rows.Scan(&rec.ReferenceMonth, &rec.Pageviews, &rec.Requests, &rec.BandwidthBytes, &rec.Plan); err != nil {
			return nil, unavailable("usage store", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("usage store", err)
	}
	return records, nil
}

// GetUsageSummary aggregates the same window ListUsage reads.
func (p *Postgres) GetUsageSummary(ctx context.Context, customerID int64, months int) (models.UsageSummary, error) {
	records, err := p.ListUsage(ctx, customerID, months)
	if err != nil {
		return models.UsageSummary{}, err
	}
	summary := models.UsageSummary{Months: len(records)}
	for _, rec := range records {
		summary.TotalPageviews += rec.Pageviews
		summary.TotalRequests += rec.Requests
		summary.TotalBandwidthBytes += rec.BandwidthBytes
	}
	return summary, nil
}

// GetUsageTrend compares the 3 most recent recorded months against the 3
// preceding them, within the same window every other usage read uses.
func (p *Postgres) GetUsageTrend(ctx context.Context, customerID int64, months int) (models.UsageTrend, error) {
	records, err := p.ListUsage(ctx, customerID, months)
	if err != nil {
		return models.UsageTrend{}, err
	}
	return trendFromRecords(records), nil
}

// ListUsageTrends computes the trend for every customer with usage rows, in
// one table scan, for the fleet scorer.
func (p *Postgres) ListUsageTrends(ctx context.Context, months int) (map[int64]models.UsageTrend, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx, `SELECT customer_id, reference_month, pageviews, requests, bandwidth_bytes, plan
		FROM usage_months ORDER BY customer_id, reference_month DESC`)
	if err != nil {
		return nil, unavailable("usage store", err)
	}
	defer rows.Close()

	byCustomer := make(map[int64][]models.UsageRecord)
	for rows.Next() {
		var customerID int64
		var rec models.UsageRecord
		if err := rows.Scan(&customerID, &rec.ReferenceMonth, &rec.Pageviews, &rec.Requests, &rec.BandwidthBytes, &rec.Plan); err != nil {
			return nil, unavailable("usage store", err)
		}
		byCustomer[customerID] = append(byCustomer[customerID], rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("usage store", err)
	}

	trends := make(map[int64]models.UsageTrend, len(byCustomer))
	for customerID, records := range byCustomer {
		if months > 0 && len(records) > months {
			records = records[:months]
		}
		trends[customerID] = trendFromRecords(records)
	}
	return trends, nil
}

// trendFromRecords averages the 3 most recent months against the 3 before
// them. records must be ordered most recent first. Partial windows average
// over the months that exist; with no preceding months the previous averages
// stay 0, which the shared change convention treats as "no trend".
func trendFromRecords(records []models.UsageRecord) models.UsageTrend {
	avg := func(window []models.UsageRecord) (pv, req, bw float64) {
		if len(window) == 0 {
			return 0, 0, 0
		}
		for _, rec := range window {
			pv += float64(rec.Pageviews)
			req += float64(rec.Requests)
			bw += float64(rec.BandwidthBytes)
		}
		n := float64(len(window))
		return pv / n, req / n, bw / n
	}

	recent := records
	if len(recent) > 3 {
		recent = records[:3]
	}
	var previous []models.UsageRecord
	if len(records) > 3 {
		previous = records[3:]
		if len(previous) > 3 {
			previous = previous[:3]
		}
	}

	var t models.UsageTrend
	t.Recent3moAvgPageviews, t.Recent3moAvgRequests, t.Recent3moAvgBandwidth = avg(recent)
	t.Previous3moAvgPageviews, t.Previous3moAvgRequests, t.Previous3moAvgBandwidth = avg(previous)
	return t
}

// --- comms.Reader ---

// History returns the customer's most recent message snippets. Tenants
// without a mailbox use comms.Disabled() instead of this reader.
func (p *Postgres) History(ctx context.Context, customerID int64, maxResults int) (comms.History, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	history := comms.History{Messages: []comms.EmailMessage{}, Meta: comms.Meta{Enabled: true}}

	rows, err := p.pool.Query(ctx,
		"SELECT snippet FROM email_messages WHERE customer_id = $1 ORDER BY received_at DESC LIMIT $2",
		customerID, maxResults)
	if err != nil {
		return comms.History{}, unavailable("communication history", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg comms.EmailMessage
		if err := rows.Scan(&msg.Snippet); err != nil {
			return comms.History{}, unavailable("communication history", err)
		}
		history.Messages = append(history.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return comms.History{}, unavailable("communication history", err)
	}

	if err := p.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM email_messages WHERE customer_id = $1", customerID,
	).Scan(&history.TotalMessages); err != nil {
		return comms.History{}, unavailable("communication history", err)
	}
	return history, nil
}

// --- summary.SnapshotStore ---

// GetSnapshot returns the customer's cached summary, or nil when none has
// been generated yet.
func (p *Postgres) GetSnapshot(ctx context.Context, customerID int64) (*models.SummarySnapshot, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var snap models.SummarySnapshot
	err := p.pool.QueryRow(ctx,
		`SELECT customer_id, generated_at, summary_text, data_sources, meta
		 FROM summary_snapshots WHERE customer_id = $1`, customerID,
	).Scan(&snap.CustomerID, &snap.GeneratedAt, &snap.SummaryText, &snap.DataSources, &snap.Meta)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("snapshot store", err)
	}
	return &snap, nil
}

// ReplaceSnapshot swaps the customer's snapshot row in one transaction, so a
// concurrent reader sees either the old summary or the new one, never
// neither.
func (p *Postgres) ReplaceSnapshot(ctx context.Context, snapshot models.SummarySnapshot) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return unavailable("snapshot store", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"DELETE FROM summary_snapshots WHERE customer_id = $1", snapshot.CustomerID); err != nil {
		return unavailable("snapshot store", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO summary_snapshots (customer_id, generated_at, summary_text, data_sources, meta)
		 VALUES ($1, $2, $3, $4, $5)`,
		snapshot.CustomerID, snapshot.GeneratedAt, snapshot.SummaryText, snapshot.DataSources, snapshot.Meta,
	); err != nil {
		return unavailable("snapshot store", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable("snapshot store", err)
	}
	return nil
}
