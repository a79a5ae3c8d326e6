package config

import (
	"fmt"
	"math"
	"strings"
)

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return fmt.Errorf("database config error: %w", err)
	}
	if err := c.validateAPI(); err != nil {
		return fmt.Errorf("api config error: %w", err)
	}
	if err := c.validateEvents(); err != nil {
		return fmt.Errorf("events config error: %w", err)
	}
	if err := c.validateHealthScoring(); err != nil {
		return fmt.Errorf("health scoring config error: %w", err)
	}
	if err := c.validateRiskScoring(); err != nil {
		return fmt.Errorf("risk scoring config error: %w", err)
	}
	if err := c.validateStatus(); err != nil {
		return fmt.Errorf("status config error: %w", err)
	}
	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config error: %w", err)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("url is required")
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("max_conns must be greater than 0")
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("min_conns must be between 0 and max_conns")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.API.EnableCORS && len(c.API.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed_origins is required when CORS is enabled")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if !c.Events.Enabled {
		return nil
	}
	if len(c.Events.Brokers) == 0 {
		return fmt.Errorf("brokers is required when events are enabled")
	}
	for _, broker := range c.Events.Brokers {
		if !strings.Contains(broker, ":") {
			return fmt.Errorf("invalid broker format: %s (expected host:port)", broker)
		}
	}
	if c.Events.Topic == "" {
		return fmt.Errorf("topic is required when events are enabled")
	}
	return nil
}

func (c *Config) validateHealthScoring() error {
	h := c.Scoring.Health
	for name, v := range map[string]float64{
		"unpaid_slope":        h.UnpaidSlope,
		"unpaid_cap":          h.UnpaidCap,
		"overdue_per_invoice": h.OverduePerInvoice,
		"overdue_cap":         h.OverdueCap,
		"usage_drop_slope":    h.UsageDropSlope,
		"usage_drop_cap":      h.UsageDropCap,
		"overage_slope":       h.OverageSlope,
		"overage_cap":         h.OverageCap,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if h.TrendWindowMonths <= 0 {
		return fmt.Errorf("trend_window_months must be greater than 0")
	}

	t := h.Thresholds
	if t.Critical <= 0 || t.Healthy > 100 {
		return fmt.Errorf("label thresholds must lie inside (0, 100]")
	}
	// Label mapping must stay monotonic.
	if !(t.Critical < t.AtRisk && t.AtRisk < t.NeedsAttention && t.NeedsAttention < t.Healthy) {
		return fmt.Errorf("label thresholds must be strictly increasing")
	}
	return nil
}

func (c *Config) validateRiskScoring() error {
	r := c.Scoring.Risk
	sum := r.PaymentDelayWeight + r.UsageTrendWeight + r.OverdueFrequencyWeight +
		r.OveragePercentageWeight + r.TieringGapWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("factor weights must sum to 1.0, got %.4f", sum)
	}
	for name, v := range map[string]float64{
		"payment_delay_weight":      r.PaymentDelayWeight,
		"usage_trend_weight":        r.UsageTrendWeight,
		"overdue_frequency_weight":  r.OverdueFrequencyWeight,
		"overage_percentage_weight": r.OveragePercentageWeight,
		"tiering_gap_weight":        r.TieringGapWeight,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if r.InvoiceWindow <= 0 {
		return fmt.Errorf("invoice_window must be greater than 0")
	}
	if r.MaxDelayDays <= 0 || r.MaxDropPct <= 0 || r.MaxOverageFraction <= 0 || r.MaxGapFraction <= 0 {
		return fmt.Errorf("factor normalization points must be greater than 0")
	}

	t := r.Thresholds
	if !(t.Moderate < t.Elevated && t.Elevated < t.High && t.High < t.Critical) {
		return fmt.Errorf("profile thresholds must be strictly increasing")
	}
	if t.Critical > 10 {
		return fmt.Errorf("profile thresholds must lie inside (0, 10]")
	}
	return nil
}

func (c *Config) validateStatus() error {
	if len(c.Status.SoftKeywords) == 0 {
		return fmt.Errorf("soft_keywords must not be empty")
	}
	if len(c.Status.HardKeywords) == 0 {
		return fmt.Errorf("hard_keywords must not be empty")
	}
	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}

	format := strings.ToLower(c.Logging.Format)
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[format] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", format)
	}
	return nil
}
