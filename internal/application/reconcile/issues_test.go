package reconcile

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
)

func hasIssue(issues []equity.Issue, sev equity.Severity, category string) bool {
	for _, is := range issues {
		if is.Severity == sev && is.Category == category {
			return true
		}
	}
	return false
}

func charterDoc(date, authorizedCommon string) *equity.Document {
	return testDoc("charter", equity.ClassCharter, &equity.CharterExtraction{
		CompanyName: "Acme", IncorporationDate: date, AuthorizedCommon: equity.Num(authorizedCommon),
	})
}

func TestDetect_UnapprovedIssuance(t *testing.T) {
	e := testEvent("2023-01-01", equity.EventIssuance, "Carol", "Common Stock", 500)
	matched, err := (&TextMatcher{}).Match(context.Background(), []*equity.EquityEvent{e}, nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}

	issues := Detect(RuleInput{Events: matched, Documents: []*equity.Document{charterDoc("2022-01-01", "1000000")}})
	if !hasIssue(issues, equity.SeverityCritical, "Unapproved issuance") {
		t.Fatalf("issues = %+v, want Unapproved issuance", issues)
	}
	for _, is := range issues {
		if is.Source != equity.SourceRule {
			t.Errorf("Source = %q, want rule", is.Source)
		}
	}
}

func TestDetect_OrdersBySeverityAndDedupes(t *testing.T) {
	dup := func(RuleInput) []equity.Issue {
		return []equity.Issue{
			{Severity: equity.SeverityInfo, Category: "X", Description: "info"},
			{Severity: equity.SeverityCritical, Category: "Y", Description: "crit"},
		}
	}
	issues := Detect(RuleInput{}, dup, dup)
	if len(issues) != 2 {
		t.Fatalf("len(issues) = %d, want 2", len(issues))
	}
	if issues[0].Severity != equity.SeverityCritical {
		t.Errorf("issues[0] = %+v, want CRITICAL first", issues[0])
	}
}

func TestExceedsAuthorized(t *testing.T) {
	events := []*equity.EquityEvent{
		testEvent("2023-01-01", equity.EventIssuance, "Alice", "Common Stock", 800),
		testEvent("2023-02-01", equity.EventIssuance, "Bob", "Common Stock", 400),
	}

	issues := ExceedsAuthorized(RuleInput{Events: events, Documents: []*equity.Document{charterDoc("2022-01-01", "1,000")}})
	if len(issues) != 1 || issues[0].Category != "Exceeds Authorized Shares" {
		t.Fatalf("issues = %+v", issues)
	}
	if !strings.Contains(issues[0].Description, "by 200") {
		t.Errorf("Description = %q, want overage of 200", issues[0].Description)
	}

	if got := ExceedsAuthorized(RuleInput{Events: events, Documents: []*equity.Document{charterDoc("2022-01-01", "5000")}}); len(got) != 0 {
		t.Errorf("issues = %+v, want none", got)
	}
}

func TestMissing83bElections(t *testing.T) {
	e := testEvent("2023-01-01", equity.EventIssuance, "Alice", "Common Stock", 1000)
	e.Details["vesting_schedule"] = "4 years, 1 year cliff"
	plain := testEvent("2023-01-01", equity.EventIssuance, "Bob", "Common Stock", 1000)

	issues := Missing83bElections(RuleInput{Events: []*equity.EquityEvent{e, plain}})
	if len(issues) != 1 || !strings.Contains(issues[0].Description, "Alice") {
		t.Fatalf("issues = %+v, want one for Alice", issues)
	}

	filed := testDoc("83b", equity.ClassElection83b, &equity.Election83bExtraction{FilingDate: "2023-01-20", Taxpayer: "alice"})
	if got := Missing83bElections(RuleInput{Events: []*equity.EquityEvent{e}, Documents: []*equity.Document{filed}}); len(got) != 0 {
		t.Errorf("issues = %+v, want none with timely election", got)
	}

	late := testDoc("83b", equity.ClassElection83b, &equity.Election83bExtraction{FilingDate: "2023-03-01", Taxpayer: "Alice"})
	if got := Missing83bElections(RuleInput{Events: []*equity.EquityEvent{e}, Documents: []*equity.Document{late}}); len(got) != 1 {
		t.Errorf("issues = %+v, want late election flagged", got)
	}
}

func TestMissingCharter(t *testing.T) {
	if got := MissingCharter(RuleInput{}); !hasIssue(got, equity.SeverityCritical, "Missing Document") {
		t.Errorf("MissingCharter() = %+v", got)
	}
	if got := MissingCharter(RuleInput{Documents: []*equity.Document{charterDoc("2022-01-01", "10")}}); len(got) != 0 {
		t.Errorf("MissingCharter() = %+v, want none", got)
	}
}

func TestEventsBeforeFormation(t *testing.T) {
	events := []*equity.EquityEvent{
		testEvent("2022-06-01", equity.EventIssuance, "Alice", "Common Stock", 10),
		testEvent("2023-01-01", equity.EventFormation, "", "", 0),
	}
	SortByDate(events)
	got := EventsBeforeFormation(RuleInput{Events: events})
	if !hasIssue(got, equity.SeverityCritical, "Chronological Integrity") {
		t.Errorf("EventsBeforeFormation() = %+v", got)
	}
}

func TestOptionPoolIntegrity(t *testing.T) {
	grants := []*equity.EquityEvent{
		testEvent("2023-01-01", equity.EventOptionGrant, "Erin", "Option", 950),
	}
	plan := func(size string) *equity.Document {
		return testDoc("plan", equity.ClassEquityPlan, &equity.EquityPlanExtraction{PlanName: "2023 Plan", PoolSize: equity.Num(size)})
	}

	tests := []struct {
		name string
		docs []*equity.Document
		sev  equity.Severity
		cat  string
	}{
		{"no plan", nil, equity.SeverityInfo, "Option Plan"},
		{"over pool", []*equity.Document{plan("900")}, equity.SeverityCritical, "Option Pool Integrity"},
		{"nearly exhausted", []*equity.Document{plan("1000")}, equity.SeverityWarning, "Option Pool Integrity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OptionPoolIntegrity(RuleInput{Events: grants, Documents: tt.docs})
			if !hasIssue(got, tt.sev, tt.cat) {
				t.Errorf("OptionPoolIntegrity() = %+v, want %s %s", got, tt.sev, tt.cat)
			}
		})
	}

	if got := OptionPoolIntegrity(RuleInput{Events: grants, Documents: []*equity.Document{plan("5000")}}); len(got) != 0 {
		t.Errorf("OptionPoolIntegrity() = %+v, want none", got)
	}
}

func TestNonPositivePositions(t *testing.T) {
	events := []*equity.EquityEvent{
		testEvent("2023-01-01", equity.EventIssuance, "Alice", "Common Stock", 100),
		testEvent("2023-02-01", equity.EventRepurchase, "Alice", "Common Stock", -100),
		testEvent("2023-01-01", equity.EventIssuance, "Bob", "Common Stock", 50),
		testEvent("2023-02-01", equity.EventRepurchase, "Bob", "Common Stock", -80),
	}
	got := NonPositivePositions(RuleInput{Events: events})
	if !hasIssue(got, equity.SeverityInfo, "Cap Table") {
		t.Errorf("missing zero-position info: %+v", got)
	}
	if !hasIssue(got, equity.SeverityCritical, "Data Integrity") {
		t.Errorf("missing negative-position issue: %+v", got)
	}
}

func TestBoardGovernance(t *testing.T) {
	events := []*equity.EquityEvent{
		testEvent("2019-01-01", equity.EventIssuance, "Alice", "Common Stock", 100),
		testEvent("2023-01-01", equity.EventIssuance, "Bob", "Common Stock", 100),
	}
	got := BoardGovernance(RuleInput{Events: events, Documents: []*equity.Document{consentDoc("c1", "2019-01-01")}})
	if !hasIssue(got, equity.SeverityWarning, "Board Governance") {
		t.Errorf("BoardGovernance() = %+v", got)
	}
	if got := BoardGovernance(RuleInput{Events: events[:1]}); len(got) != 0 {
		t.Errorf("BoardGovernance(short history) = %+v, want none", got)
	}
}

func TestIncompleteExtractions(t *testing.T) {
	skips := []*equity.MalformedEventError{{File: "spa.pdf", Field: "shares_issued", Reason: `non-numeric value "unknown"`}}
	got := IncompleteExtractions(RuleInput{Skips: skips})
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	want := `Extraction incomplete for file spa.pdf: shares_issued: non-numeric value "unknown"`
	if got[0].Description != want || got[0].Severity != equity.SeverityInfo {
		t.Errorf("issue = %+v, want %q", got[0], want)
	}
}

func TestFormatShares(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"999", "999"},
		{"1000", "1,000"},
		{"1234567.5", "1,234,567.5"},
		{"-250000", "-250,000"},
	}
	for _, tt := range tests {
		if got := FormatShares(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("FormatShares(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReview(t *testing.T) {
	docs := []*equity.Document{charterDoc("2022-01-01", "1000"), issuanceDoc("s1", "2023-01-01", "Alice", "10")}
	events := []*equity.EquityEvent{testEvent("2023-01-01", equity.EventIssuance, "Alice", "Common Stock", 10)}

	events[0].ApprovalDocID = "c1"
	clean := Review(docs, events, nil, nil)
	if clean.ReviewRequired || len(clean.BlockingReasons) != 0 {
		t.Errorf("Review() = %+v, want no review", clean)
	}

	events[0].ApprovalDocID = ""
	docs[1].LowConfidence = true
	issues := []equity.Issue{{Severity: equity.SeverityCritical, Category: "Unapproved issuance", Description: "x"}}
	r := Review(docs, events, nil, issues)
	if !r.ReviewRequired {
		t.Fatal("ReviewRequired = false, want true")
	}
	if r.MissingApprovals != 1 || r.LowConfidence != 1 || r.CriticalIssues != 1 {
		t.Errorf("counts = %+v", r)
	}
	if r.ParsedOK != 2 || r.DocumentCount != 2 {
		t.Errorf("document counts = %+v", r)
	}
}

func TestReview_NoEvents(t *testing.T) {
	tests := []struct {
		name string
		docs []*equity.Document
	}{
		{name: "no documents"},
		{name: "minutes only", docs: []*equity.Document{consentDoc("c1", "2023-01-01", "Approved the annual budget")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Review(tt.docs, nil, nil, nil)
			if !r.ReviewRequired {
				t.Fatalf("Review() = %+v, want review required", r)
			}
			if len(r.BlockingReasons) != 1 || r.BlockingReasons[0] != "No equity events found in the document set" {
				t.Errorf("BlockingReasons = %q", r.BlockingReasons)
			}
		})
	}
}
