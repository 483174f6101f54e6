package reconcile

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"testing/quick"

	"github.com/shopspring/decimal"

	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
)

func TestTextMatcher_Match(t *testing.T) {
	ctx := context.Background()
	m := &TextMatcher{}

	t.Run("no consent anywhere is critical", func(t *testing.T) {
		e := testEvent("2023-01-01", equity.EventIssuance, "Carol", "Common Stock", 500)
		out, err := m.Match(ctx, []*equity.EquityEvent{e}, nil)
		if err != nil {
			t.Fatalf("Match() error = %v", err)
		}
		if out[0].ComplianceStatus != equity.StatusCritical {
			t.Errorf("ComplianceStatus = %q, want CRITICAL", out[0].ComplianceStatus)
		}
		if out[0].ComplianceNote != NoApprovalNote(e.EventDate) {
			t.Errorf("ComplianceNote = %q", out[0].ComplianceNote)
		}
		if e.ComplianceStatus != equity.StatusVerified {
			t.Error("Match() mutated its input")
		}
	})

	t.Run("consent naming the holder verifies", func(t *testing.T) {
		gov := []*equity.Document{consentDoc("c1", "2022-12-20", "RESOLVED, to issue 500 shares of Common Stock to Carol Jones")}
		e := testEvent("2023-01-01", equity.EventIssuance, "Carol Jones", "Common Stock", 500)
		out, _ := m.Match(ctx, []*equity.EquityEvent{e}, gov)
		got := out[0]
		if got.ComplianceStatus != equity.StatusVerified || got.ApprovalDocID != "c1" {
			t.Fatalf("got %q approval %q, want VERIFIED c1", got.ComplianceStatus, got.ApprovalDocID)
		}
		if got.ApprovalDate.String() != "2022-12-20" {
			t.Errorf("ApprovalDate = %s, want 2022-12-20", got.ApprovalDate)
		}
	})

	t.Run("matching share count verifies", func(t *testing.T) {
		gov := []*equity.Document{consentDoc("c1", "2022-12-20", "Approved the sale of 1,250,000 shares to the founder")}
		e := testEvent("2023-01-01", equity.EventIssuance, "Dana", "Common Stock", 1250000)
		out, _ := m.Match(ctx, []*equity.EquityEvent{e}, gov)
		if out[0].ComplianceStatus != equity.StatusVerified {
			t.Errorf("ComplianceStatus = %q, want VERIFIED", out[0].ComplianceStatus)
		}
	})

	t.Run("later consent never approves an earlier event", func(t *testing.T) {
		gov := []*equity.Document{consentDoc("c1", "2023-03-01", "Ratified issuance to Carol")}
		e := testEvent("2023-01-01", equity.EventIssuance, "Carol", "Common Stock", 500)
		out, _ := m.Match(ctx, []*equity.EquityEvent{e}, gov)
		if out[0].ComplianceStatus != equity.StatusCritical || out[0].ApprovalDocID != "" {
			t.Errorf("got %q approval %q, want CRITICAL with no approval", out[0].ComplianceStatus, out[0].ApprovalDocID)
		}
	})

	t.Run("unrelated nearby consent is a warning", func(t *testing.T) {
		gov := []*equity.Document{consentDoc("c1", "2022-11-01", "Approved the annual budget")}
		e := testEvent("2023-01-01", equity.EventOptionGrant, "Erin", "Option", 100)
		out, _ := m.Match(ctx, []*equity.EquityEvent{e}, gov)
		if out[0].ComplianceStatus != equity.StatusWarning || out[0].ComplianceNote != NoteIndirectApproval {
			t.Errorf("got %q %q", out[0].ComplianceStatus, out[0].ComplianceNote)
		}
	})

	t.Run("financing events need no approval", func(t *testing.T) {
		e := testEvent("2023-01-01", equity.EventSAFE, "Seed Fund", "SAFE", 0)
		out, _ := m.Match(ctx, []*equity.EquityEvent{e}, nil)
		if out[0].ComplianceStatus != equity.StatusWarning || out[0].ComplianceNote != NoteFinancing {
			t.Errorf("got %q %q", out[0].ComplianceStatus, out[0].ComplianceNote)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		e := testEvent("2023-01-01", equity.EventIssuance, "Carol", "Common Stock", 500)
		if _, err := m.Match(cctx, []*equity.EquityEvent{e}, nil); err == nil {
			t.Error("Match() expected context error")
		}
	})
}

func TestTextMatcher_Evidence(t *testing.T) {
	tests := []struct {
		name     string
		decision string
		holder   string
		shares   int64
		verified bool
	}{
		{name: "holder inside a longer word", decision: "Approved the annual operating budget", holder: "Ann", shares: 500},
		{name: "holder inside another name", decision: "Approved the engagement of Joanna Lee as counsel", holder: "Ann", shares: 500},
		{name: "iso date digits", decision: "Approved the lease dated 2023-01-01 for 1 year", holder: "Dana", shares: 1},
		{name: "us date digits", decision: "Meeting of 12/01/2022 approved the office move", holder: "Dana", shares: 12},
		{name: "long date digits", decision: "Approved the budget on December 1, 2022", holder: "Dana", shares: 2022},
		{name: "bare number without unit", decision: "Approved 2022 hiring plan for 15 roles", holder: "Dana", shares: 15},
		{name: "series label digit", decision: "Approved the Series A-1 Preferred financing", holder: "Dana", shares: 1},
		{name: "holder as whole words", decision: "RESOLVED, to issue stock to Ann Lee", holder: "Ann Lee", shares: 500, verified: true},
		{name: "possessive holder", decision: "Approved Alice's purchase agreement", holder: "Alice", shares: 500, verified: true},
		{name: "share count with unit", decision: "Approved the sale of 1,000 Common shares", holder: "Dana", shares: 1000, verified: true},
		{name: "share count next to date", decision: "On 2022-12-15 approved 1 share for the nominee director", holder: "Dana", shares: 1, verified: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gov := []*equity.Document{consentDoc("c1", "2022-12-15", tt.decision)}
			e := testEvent("2023-01-01", equity.EventIssuance, tt.holder, "Common Stock", tt.shares)
			out, err := (&TextMatcher{}).Match(context.Background(), []*equity.EquityEvent{e}, gov)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			got := out[0]
			if tt.verified {
				if got.ComplianceStatus != equity.StatusVerified {
					t.Errorf("got %q %q, want VERIFIED", got.ComplianceStatus, got.ComplianceNote)
				}
				return
			}
			if got.ComplianceStatus != equity.StatusWarning || got.ComplianceNote != NoteIndirectApproval {
				t.Errorf("got %q %q, want WARNING indirect approval", got.ComplianceStatus, got.ComplianceNote)
			}
		})
	}
}

func TestTextMatcher_Properties(t *testing.T) {
	ctx := context.Background()
	m := &TextMatcher{}
	// none of these name the holder "Ann" or carry a share unit
	vocab := []string{"approved", "the", "annual", "operating", "budget", "lease", "dated", "for",
		"year", "annex", "joanna", "hannah", "term", "renewal", "of", "and", "anniversary"}

	unrelated := func(picks []uint8, nums []uint16, shares uint16) bool {
		var words []string
		for i, p := range picks {
			words = append(words, vocab[int(p)%len(vocab)])
			if i >= len(nums) {
				continue
			}
			n := int(nums[i])
			switch n % 3 {
			case 0:
				words = append(words, fmt.Sprint(n))
			case 1:
				words = append(words, fmt.Sprintf("%04d-%02d-%02d", 2000+n%30, 1+n%12, 1+n%28))
			default:
				words = append(words, fmt.Sprintf("%d/%d/%d", 1+n%12, 1+n%28, 2000+n%30))
			}
		}
		gov := []*equity.Document{consentDoc("c1", "2022-12-01", strings.Join(words, " "))}
		e := testEvent("2023-01-01", equity.EventIssuance, "Ann", "Common Stock", int64(shares)+1)
		out, err := m.Match(ctx, []*equity.EquityEvent{e}, gov)
		return err == nil && out[0].ComplianceStatus != equity.StatusVerified
	}
	if err := quick.Check(unrelated, nil); err != nil {
		t.Errorf("unrelated decision verified an event: %v", err)
	}

	cited := func(shares uint32) bool {
		n := int64(shares) + 1
		text := fmt.Sprintf("Approved issuance of %s shares to the founder on 2022-12-01", FormatShares(decimal.NewFromInt(n)))
		gov := []*equity.Document{consentDoc("c1", "2022-12-01", text)}
		e := testEvent("2023-01-01", equity.EventIssuance, "Dana", "Common Stock", n)
		out, err := m.Match(ctx, []*equity.EquityEvent{e}, gov)
		return err == nil && out[0].ComplianceStatus == equity.StatusVerified
	}
	if err := quick.Check(cited, nil); err != nil {
		t.Errorf("decision citing the share count did not verify: %v", err)
	}
}

func TestEnforceApprovalInvariants(t *testing.T) {
	gov := []*equity.Document{
		consentDoc("early", "2022-12-01", "General approval"),
		consentDoc("late", "2023-06-01", "Ratification"),
	}

	t.Run("unknown approval is cleared", func(t *testing.T) {
		e := testEvent("2023-01-01", equity.EventIssuance, "Alice", "Common Stock", 10)
		e.ApprovalDocID = "spa-alice"
		EnforceApprovalInvariants([]*equity.EquityEvent{e}, gov)
		if e.ApprovalDocID != "" || e.ComplianceStatus != equity.StatusWarning {
			t.Errorf("got approval %q status %q", e.ApprovalDocID, e.ComplianceStatus)
		}
	})

	t.Run("future approval cannot verify", func(t *testing.T) {
		e := testEvent("2023-01-01", equity.EventIssuance, "Alice", "Common Stock", 10)
		e.ApprovalDocID = "late"
		EnforceApprovalInvariants([]*equity.EquityEvent{e}, gov)
		if e.ComplianceStatus != equity.StatusWarning {
			t.Errorf("ComplianceStatus = %q, want WARNING", e.ComplianceStatus)
		}
		if !strings.Contains(e.ComplianceNote, "postdates") {
			t.Errorf("ComplianceNote = %q", e.ComplianceNote)
		}
		if e.ApprovalDate.String() != "2023-06-01" {
			t.Errorf("ApprovalDate = %s, want document date", e.ApprovalDate)
		}
	})

	t.Run("approval date comes from the document", func(t *testing.T) {
		e := testEvent("2023-01-01", equity.EventIssuance, "Alice", "Common Stock", 10)
		e.ApprovalDocID = "early"
		e.ApprovalDate = equity.MustDate("2020-01-01")
		EnforceApprovalInvariants([]*equity.EquityEvent{e}, gov)
		if e.ComplianceStatus != equity.StatusVerified || e.ApprovalDate.String() != "2022-12-01" {
			t.Errorf("got %q %s", e.ComplianceStatus, e.ApprovalDate)
		}
	})

	t.Run("verified without evidence is downgraded", func(t *testing.T) {
		e := testEvent("2023-01-01", equity.EventRepurchase, "Alice", "Common Stock", -10)
		EnforceApprovalInvariants([]*equity.EquityEvent{e}, gov)
		if e.ComplianceStatus != equity.StatusWarning {
			t.Errorf("ComplianceStatus = %q, want WARNING", e.ComplianceStatus)
		}
	})
}
