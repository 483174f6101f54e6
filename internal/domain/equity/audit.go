package equity

import "time"

// AuditState enum
type AuditState string

const (
	AuditPending     AuditState = "pending"
	AuditReconciling AuditState = "reconciling"
	AuditComplete    AuditState = "complete"
	AuditNeedsReview AuditState = "needs_review"
	AuditError       AuditState = "error"
)

// Terminal reports whether the audit's ledger has been committed.
func (s AuditState) Terminal() bool {
	return s == AuditComplete || s == AuditNeedsReview
}

// Audit is one reconciliation run over a document set.
type Audit struct {
	ID           string         `json:"id"`
	CompanyName  string         `json:"company_name,omitempty"`
	State        AuditState     `json:"state"`
	Progress     string         `json:"progress,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Quality      *QualityReport `json:"quality,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// QualityReport decides whether a synthesized audit needs manual review.
type QualityReport struct {
	DocumentCount    int      `json:"document_count"`
	ParsedOK         int      `json:"parsed_successfully"`
	ParseFailures    int      `json:"parse_failures"`
	LowConfidence    int      `json:"low_confidence_count"`
	SkippedEvents    int      `json:"skipped_events"`
	EventCount       int      `json:"event_count"`
	MissingApprovals int      `json:"missing_approvals"`
	CriticalIssues   int      `json:"critical_issue_count"`
	BlockingReasons  []string `json:"blocking_reasons"`
	ReviewRequired   bool     `json:"review_required"`
}
