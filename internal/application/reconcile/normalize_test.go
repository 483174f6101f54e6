package reconcile

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
)

func TestNormalizeAll_SkipsUnreadableShareCount(t *testing.T) {
	raw := `[
		{"id":"d1","filename":"charter.pdf","classification":"Charter Document","parse_status":"success",
		 "extracted_data":{"company_name":"Acme","incorporation_date":"2022-12-01","authorized_shares":"10,000,000"}},
		{"id":"d2","filename":"spa-alice.pdf","classification":"Stock Purchase Agreement","parse_status":"success",
		 "extracted_data":{"stock_issuances":[{"date":"2023-01-01","shareholder":"Alice","shares_issued":600}]}},
		{"id":"d3","filename":"spa-dave.pdf","classification":"Stock Purchase Agreement","parse_status":"success",
		 "extracted_data":{"date":"2023-01-05","shareholder":"Dave","shares_issued":"unknown"}},
		{"id":"d4","filename":"spa-bob.pdf","classification":"Stock Purchase Agreement","parse_status":"success",
		 "extracted_data":{"stock_issuances":[{"date":"2023-02-01","shareholder":"Bob","shares_issued":"400"}]}}
	]`
	var docs []*equity.Document
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	n := &Normalizer{}
	got := n.NormalizeAll(docs)

	if len(got.Events) != 3 {
		t.Fatalf("len(Events) = %d, want 3", len(got.Events))
	}
	wantTypes := []equity.EventType{equity.EventFormation, equity.EventIssuance, equity.EventIssuance}
	for i, want := range wantTypes {
		if got.Events[i].EventType != want {
			t.Errorf("Events[%d].EventType = %q, want %q", i, got.Events[i].EventType, want)
		}
	}
	if got.Events[2].ShareholderName != "Bob" || got.Events[2].ShareDelta.IntPart() != 400 {
		t.Errorf("Events[2] = %s %s, want Bob 400", got.Events[2].ShareholderName, got.Events[2].ShareDelta)
	}

	if len(got.Skips) != 1 {
		t.Fatalf("len(Skips) = %d, want 1", len(got.Skips))
	}
	skip := got.Skips[0]
	if skip.File != "spa-dave.pdf" || skip.Field != "shares_issued" {
		t.Errorf("skip = %+v, want spa-dave.pdf/shares_issued", skip)
	}
	if !errors.Is(skip, equity.ErrMalformedEvent) {
		t.Errorf("errors.Is(skip, ErrMalformedEvent) = false")
	}
}

func TestNormalizeAll_KeepsEarliestFormation(t *testing.T) {
	docs := []*equity.Document{
		testDoc("amended", equity.ClassCharter, &equity.CharterExtraction{IncorporationDate: "2023-06-01"}),
		testDoc("original", equity.ClassCharter, &equity.CharterExtraction{IncorporationDate: "2021-03-15"}),
	}
	got := (&Normalizer{}).NormalizeAll(docs)

	if len(got.Events) != 1 {
		t.Fatalf("len(Events) = %d, want 1", len(got.Events))
	}
	if got.Events[0].SourceDocID != "original" {
		t.Errorf("formation source = %q, want original", got.Events[0].SourceDocID)
	}
}

func TestNormalizeAll_CollectsGovernance(t *testing.T) {
	docs := []*equity.Document{
		consentDoc("c1", "2023-01-01", "Approved issuance to Alice"),
		issuanceDoc("s1", "2023-01-02", "Alice", "100"),
	}
	got := (&Normalizer{}).NormalizeAll(docs)

	if len(got.Governance) != 1 || got.Governance[0].ID != "c1" {
		t.Fatalf("Governance = %v, want [c1]", got.Governance)
	}
	if len(got.Events) != 1 {
		t.Errorf("len(Events) = %d, want 1", len(got.Events))
	}
}

func TestNormalize(t *testing.T) {
	n := &Normalizer{}

	t.Run("repurchase is negative", func(t *testing.T) {
		doc := testDoc("r1", equity.ClassRepurchase, &equity.RepurchaseExtraction{
			Date: "2023-04-01", Shareholder: "Alice", SharesRepurchased: equity.Num("200"),
		})
		events, skips := n.Normalize(doc)
		if len(skips) != 0 {
			t.Fatalf("skips = %v", skips)
		}
		if got := events[0].ShareDelta.IntPart(); got != -200 {
			t.Errorf("ShareDelta = %d, want -200", got)
		}
		if events[0].ShareClass != "Common Stock" {
			t.Errorf("ShareClass = %q, want Common Stock", events[0].ShareClass)
		}
	})

	t.Run("repurchase without share count is skipped", func(t *testing.T) {
		doc := testDoc("r2", equity.ClassRepurchase, &equity.RepurchaseExtraction{Date: "2023-04-01", Shareholder: "Alice"})
		events, skips := n.Normalize(doc)
		if len(events) != 0 || len(skips) != 1 {
			t.Fatalf("Normalize() = %d events, %d skips, want 0, 1", len(events), len(skips))
		}
	})

	t.Run("last first name is reordered", func(t *testing.T) {
		events, _ := n.Normalize(issuanceDoc("s1", "2023-01-01", "Smith,  Jane", "1,000"))
		if events[0].ShareholderName != "Jane Smith" {
			t.Errorf("ShareholderName = %q, want Jane Smith", events[0].ShareholderName)
		}
		if events[0].ShareDelta.IntPart() != 1000 {
			t.Errorf("ShareDelta = %s, want 1000", events[0].ShareDelta)
		}
	})

	t.Run("safe carries no shares", func(t *testing.T) {
		doc := testDoc("f1", equity.ClassSAFE, &equity.SAFEExtraction{Date: "2023-05-01", Investor: "Seed Fund, LLC", Amount: equity.Num("$250,000")})
		events, _ := n.Normalize(doc)
		e := events[0]
		if !e.ShareDelta.IsZero() {
			t.Errorf("ShareDelta = %s, want 0", e.ShareDelta)
		}
		if e.ShareholderName != "Seed Fund, LLC" {
			t.Errorf("ShareholderName = %q, want entity name kept", e.ShareholderName)
		}
		if e.DetailString("amount") != "250000" {
			t.Errorf("amount = %q, want 250000", e.DetailString("amount"))
		}
	})

	t.Run("option grant keeps expiration", func(t *testing.T) {
		doc := testDoc("o1", equity.ClassOptionGrant, &equity.OptionGrantExtraction{
			GrantDate: "March 1, 2023", Recipient: "Erin", Shares: equity.Num("5000"), ExpirationDate: "2033-03-01", EarlyExercise: true,
		})
		events, skips := n.Normalize(doc)
		if len(skips) != 0 {
			t.Fatalf("skips = %v", skips)
		}
		e := events[0]
		if e.EventDate.String() != "2023-03-01" {
			t.Errorf("EventDate = %s, want 2023-03-01", e.EventDate)
		}
		if e.DetailString("expiration_date") != "2033-03-01" || !e.DetailBool("early_exercise") {
			t.Errorf("Details = %v", e.Details)
		}
	})

	t.Run("parse failure is skipped", func(t *testing.T) {
		doc := issuanceDoc("s2", "2023-01-01", "Alice", "100")
		doc.ParseStatus = equity.ParseError
		doc.ExtractionError = "ocr failed"
		events, skips := n.Normalize(doc)
		if len(events) != 0 || len(skips) != 1 || skips[0].Reason != "ocr failed" {
			t.Errorf("Normalize() = %v, %v", events, skips)
		}
	})

	t.Run("unknown class yields nothing", func(t *testing.T) {
		doc := testDoc("x", "Side Letter", &equity.Unclassified{Class: "Side Letter"})
		events, skips := n.Normalize(doc)
		if len(events) != 0 || len(skips) != 0 {
			t.Errorf("Normalize() = %v, %v, want nothing", events, skips)
		}
	})
}

func TestShareClass(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", DefaultShareClass},
		{"common", DefaultShareClass},
		{"Common", DefaultShareClass},
		{"COMMON STOCK", DefaultShareClass},
		{"Series  A", "Series A Preferred"},
		{"ISO", "Option"},
		{"class b founders", "Class B Founders"},
	}
	for _, tt := range tests {
		if got := ShareClass(tt.in); got != tt.want {
			t.Errorf("ShareClass(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseExtractedDate(t *testing.T) {
	for _, in := range []string{"2023-01-05", "01/05/2023", "January 5, 2023", "2023-01-05T10:00:00Z", "5 January 2023"} {
		got, err := ParseExtractedDate(in)
		if err != nil {
			t.Errorf("ParseExtractedDate(%q) error = %v", in, err)
			continue
		}
		if got.String() != "2023-01-05" {
			t.Errorf("ParseExtractedDate(%q) = %s, want 2023-01-05", in, got)
		}
	}
	if _, err := ParseExtractedDate("sometime in spring"); err == nil {
		t.Error("ParseExtractedDate() expected error for free text")
	}
}
