package models

import "time"

// StatusResult is the merged severity classification of a customer's
// billing and communication signals. A pure function of its inputs.
type StatusResult struct {
	Severity Severity `json:"severity"` // healthy, warning, critical
	Emoji    string   `json:"emoji"`
	Text     string   `json:"text"`
}

// SummarySnapshot is the cached, previously generated summary for one
// customer. One row per customer; replaced wholesale on regeneration.
type SummarySnapshot struct {
	CustomerID  int64     `json:"customer_id"`
	GeneratedAt time.Time `json:"generated_at"`
	SummaryText string    `json:"summary_text"`
	DataSources string    `json:"data_sources"` // serialized JSON
	Meta        string    `json:"meta"`         // serialized JSON
}

// SnapshotMeta is the deserialized form of SummarySnapshot.Meta.
type SnapshotMeta struct {
	LLMUsed        bool     `json:"llm_used"`
	StatusSeverity Severity `json:"status_severity"`
}

// SummarySource tells the caller whether a summary came from the snapshot
// table or was generated on this request.
type SummarySource string

const (
	SourceSnapshot  SummarySource = "snapshot"
	SourceGenerated SummarySource = "generated"
)

// SummaryMeta accompanies every summary response.
type SummaryMeta struct {
	Source      SummarySource `json:"source"`
	Hint        string        `json:"hint"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// SummaryResponse is the composed narrative for one customer.
type SummaryResponse struct {
	Customer Customer    `json:"customer"`
	Summary  string      `json:"summary"`
	Meta     SummaryMeta `json:"_meta"`
}
