package equity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventID identifies one ledger row.
type EventID string

// EventType enum
type EventType string

const (
	EventFormation       EventType = "formation"
	EventIssuance        EventType = "issuance"
	EventRepurchase      EventType = "repurchase"
	EventOptionGrant     EventType = "option_grant"
	EventSAFE            EventType = "safe"
	EventConvertibleNote EventType = "convertible_note"
)

// RequiresApproval reports whether a board/shareholder approval must cover the event.
func (t EventType) RequiresApproval() bool {
	switch t {
	case EventIssuance, EventRepurchase, EventOptionGrant:
		return true
	}
	return false
}

// ComplianceStatus enum
type ComplianceStatus string

const (
	StatusVerified ComplianceStatus = "VERIFIED"
	StatusWarning  ComplianceStatus = "WARNING"
	StatusCritical ComplianceStatus = "CRITICAL"
)

// NormalizeComplianceStatus maps loose labels onto the three statuses, using fallback for anything unknown.
func NormalizeComplianceStatus(s string, fallback ComplianceStatus) ComplianceStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VERIFIED", "APPROVED", "OK", "PASS":
		return StatusVerified
	case "WARNING", "WARN", "PARTIAL", "REVIEW":
		return StatusWarning
	case "CRITICAL", "MISSING", "FAIL", "FAILED":
		return StatusCritical
	}
	return fallback
}

// EquityEvent is one atomic equity transaction in an audit's ledger.
// Rows are never edited after append; corrections are new offsetting events.
type EquityEvent struct {
	ID               EventID          `json:"id"`
	AuditID          string           `json:"audit_id"`
	Sequence         int64            `json:"sequence"`
	EventDate        Date             `json:"event_date"`
	EventType        EventType        `json:"event_type"`
	ShareholderName  string           `json:"shareholder_name,omitempty"`
	ShareClass       string           `json:"share_class,omitempty"`
	ShareDelta       decimal.Decimal  `json:"share_delta"`
	SourceDocID      string           `json:"source_doc_id,omitempty"`
	SourceSnippet    string           `json:"source_snippet,omitempty"`
	ApprovalDocID    string           `json:"approval_doc_id,omitempty"`
	ApprovalSnippet  string           `json:"approval_snippet,omitempty"`
	ApprovalDate     Date             `json:"approval_date"`
	ComplianceStatus ComplianceStatus `json:"compliance_status"`
	ComplianceNote   string           `json:"compliance_note,omitempty"`
	Details          map[string]any   `json:"details,omitempty"`
	PrevHash         string           `json:"prev_hash,omitempty"`
	Hash             string           `json:"hash,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// HolderKey is the grouping key for a shareholder: lowercase, single-spaced.
func (e *EquityEvent) HolderKey() string {
	return HolderKey(e.ShareholderName)
}

// HolderKey folds a display name into its grouping key.
func HolderKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// SignValid checks that the delta's sign matches the event type.
func (e *EquityEvent) SignValid() bool {
	if e.EventType == EventRepurchase {
		return e.ShareDelta.Sign() <= 0
	}
	return e.ShareDelta.Sign() >= 0
}

// DetailString returns a details entry rendered as a string, or "" when absent.
func (e *EquityEvent) DetailString(key string) string {
	if e.Details == nil {
		return ""
	}
	v, ok := e.Details[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case decimal.Decimal:
		return x.String()
	case float64:
		return decimal.NewFromFloat(x).String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	}
	return ""
}

// DetailBool reports whether a details entry is boolean true.
func (e *EquityEvent) DetailBool(key string) bool {
	if e.Details == nil {
		return false
	}
	switch x := e.Details[key].(type) {
	case bool:
		return x
	case string:
		return strings.EqualFold(x, "true") || strings.EqualFold(x, "yes")
	}
	return false
}

// Clone returns a copy with its own details map.
func (e *EquityEvent) Clone() *EquityEvent {
	c := *e
	if e.Details != nil {
		c.Details = make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			c.Details[k] = v
		}
	}
	return &c
}
