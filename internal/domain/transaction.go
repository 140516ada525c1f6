package domain

import (
	"time"
)

// Transaction is a cleaned expense row as delivered by the ingestion
// collaborator. Amount is guaranteed non-negative after cleaning; missing
// or unparseable amounts arrive coerced to 0.
type Transaction struct {
	Merchant string  `json:"merchant"`
	MCC      string  `json:"mcc"`
	Amount   float64 `json:"amount"`

	// Date may be nil when the source row had no parseable timestamp.
	Date *time.Time `json:"date,omitempty"`

	Description      string `json:"description,omitempty"`
	PurchaseCategory string `json:"purchase_category,omitempty"`
	MCCDescription   string `json:"mcc_description,omitempty"`

	// Extra carries dataset-specific columns that only free-form rule
	// conditions reference (e.g. country, cost center).
	Extra map[string]any `json:"extra,omitempty"`
}

// AuditedTransaction is a transaction annotated by the rule engine.
// The engine adds exactly the flag and the pipe-joined reasons trail;
// the AI pass may later attach a supplementary annotation.
type AuditedTransaction struct {
	Transaction

	Flag    Severity `json:"flag"`
	Reasons string   `json:"reasons"`

	AI *AIAnnotation `json:"ai,omitempty"`
}

// AIAnnotation is the supplementary classification produced per unique
// merchant by the external language model pass. It never alters Flag or
// Reasons; it sits beside them.
type AIAnnotation struct {
	Severity   string  `json:"ai_severity"`
	Reason     string  `json:"ai_reason"`
	Category   string  `json:"ai_category"`
	Confidence float64 `json:"ai_confidence"`
}

// AuditRun records one batch evaluation of a dataset against a catalog.
type AuditRun struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenantId"`
	CatalogID      string     `json:"catalogId"`
	CatalogVersion string     `json:"catalogVersion"`
	Status         string     `json:"status"` // "completed", "failed", "canceled"
	RowCount       int        `json:"rowCount"`
	Summary        RunSummary `json:"summary"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     time.Time  `json:"finishedAt"`
}

// Run status constants.
const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCanceled  = "canceled"
)

// RunSummary aggregates the audited table for storage and alerting.
type RunSummary struct {
	RowCount            int           `json:"rowCount"`
	OKCount             int           `json:"okCount"`
	PossibleWarnCount   int           `json:"possibleWarnCount"`
	DirectWarnCount     int           `json:"directWarnCount"`
	AllowlistedCount    int           `json:"allowlistedCount"`
	ForcedOverrideCount int           `json:"forcedOverrideCount"`
	TopReasons          []ReasonCount `json:"topReasons,omitempty"`
}

// ReasonCount is one entry of the reason frequency table.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}
