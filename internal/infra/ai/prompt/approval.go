package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bryanwahyu/equity-ledger/internal/domain/ai"
)

// GetApprovalSystemPrompt provides strict directions and schema for the approval matching output.
func GetApprovalSystemPrompt() string {
	return `You are a corporate paralegal reconciling equity transactions against board and shareholder approvals. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Return exactly one entry in "matches" for every transaction in the manifest, keyed by its tx_index.
- An approval only counts when its decision_date is on or before the transaction's event_date.
- approval_doc_id must be one of the doc_id values in approval_documents, or "" when nothing approves the transaction.
- approval_quote is a short verbatim excerpt (max 300 characters) from the approving document.
- compliance_status is VERIFIED when the document clearly approves this holder and share count, WARNING when the approval is partial or ambiguous, CRITICAL when no approval exists.
- SAFEs and convertible notes may be approved by a financing resolution that does not name the investor; say so in compliance_note.

Schema (example with empty values):
{
  "matches": [
    {
      "tx_index": 0,
      "approval_doc_id": "<string>",
      "approval_quote": "<string>",
      "compliance_status": "<VERIFIED|WARNING|CRITICAL>",
      "compliance_note": "<string>"
    }
  ]
}`
}

// GetApprovalUserPrompt wraps the manifest as the user message.
func GetApprovalUserPrompt(req ai.MatchRequest) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return "Match every transaction to its approval and respond with the JSON per schema.\nManifest: " + string(b), nil
}

// ParseApprovalResponse decodes the model output. Code fences are tolerated even though
// the prompt forbids them.
func ParseApprovalResponse(content string) ([]ai.Match, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var out struct {
		Matches []ai.Match `json:"matches"`
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("invalid approval response: %w", err)
	}
	return out.Matches, nil
}
