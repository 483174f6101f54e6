package ai

import "context"

// ApprovalClient matches a batch of transactions against governance documents in one call.
type ApprovalClient interface {
	MatchApprovals(ctx context.Context, req MatchRequest) ([]Match, error)
}

// MatchRequest is the manifest sent to the model.
type MatchRequest struct {
	Transactions []Transaction `json:"transactions"`
	Documents    []Governance  `json:"approval_documents"`
}

type Transaction struct {
	Index       int    `json:"tx_index"`
	EventDate   string `json:"event_date"`
	EventType   string `json:"event_type"`
	Shareholder string `json:"shareholder,omitempty"`
	Shares      string `json:"shares"`
	Snippet     string `json:"snippet,omitempty"`
}

type Governance struct {
	DocID        string   `json:"doc_id"`
	Filename     string   `json:"filename"`
	DecisionDate string   `json:"decision_date"`
	Decisions    []string `json:"decisions,omitempty"`
	Excerpt      string   `json:"excerpt,omitempty"`
}

// Match is one model verdict for a transaction.
type Match struct {
	Index            int    `json:"tx_index"`
	ApprovalDocID    string `json:"approval_doc_id"`
	ApprovalQuote    string `json:"approval_quote"`
	ComplianceStatus string `json:"compliance_status"`
	ComplianceNote   string `json:"compliance_note"`
}
