package prompt

import (
	"strings"
	"testing"

	"github.com/bryanwahyu/equity-ledger/internal/domain/ai"
)

func TestParseApprovalResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{name: "plain", content: `{"matches":[{"tx_index":0,"approval_doc_id":"c1","compliance_status":"VERIFIED"}]}`, want: 1},
		{name: "fenced", content: "```json\n{\"matches\":[{\"tx_index\":1},{\"tx_index\":2}]}\n```", want: 2},
		{name: "empty", content: `{}`, want: 0},
		{name: "garbage", content: `not json`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseApprovalResponse(tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseApprovalResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("ParseApprovalResponse() = %d matches, want %d", len(got), tt.want)
			}
		})
	}
}

func TestGetApprovalUserPrompt(t *testing.T) {
	req := ai.MatchRequest{
		Transactions: []ai.Transaction{{Index: 3, EventDate: "2023-01-05", EventType: "issuance", Shareholder: "Alice", Shares: "600"}},
		Documents:    []ai.Governance{{DocID: "c1", Filename: "consent.pdf", DecisionDate: "2023-01-01"}},
	}
	got, err := GetApprovalUserPrompt(req)
	if err != nil {
		t.Fatalf("GetApprovalUserPrompt() error = %v", err)
	}
	for _, want := range []string{`"tx_index":3`, `"doc_id":"c1"`, `"approval_documents"`} {
		if !strings.Contains(got, want) {
			t.Errorf("GetApprovalUserPrompt() missing %s in %s", want, got)
		}
	}
}
