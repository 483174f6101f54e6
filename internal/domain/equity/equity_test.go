package equity

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2023-01-15", "2023-01-15", false},
		{" 2023-01-15 ", "2023-01-15", false},
		{"2023-13-01", "", true},
		{"01/15/2023", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ParseDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDate_JSONAndScan(t *testing.T) {
	var zero Date
	b, _ := json.Marshal(zero)
	if string(b) != "null" {
		t.Errorf("Marshal(zero) = %s, want null", b)
	}

	var d Date
	if err := json.Unmarshal([]byte(`"2023-02-01"`), &d); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if d.String() != "2023-02-01" {
		t.Errorf("Unmarshal() = %s", d)
	}

	var s Date
	if err := s.Scan([]byte("2023-02-01T00:00:00Z")); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if !s.Equal(d) {
		t.Errorf("Scan() = %s, want %s", s, d)
	}
	if got := MustDate("2023-01-01").DaysUntil(MustDate("2023-01-31")); got != 30 {
		t.Errorf("DaysUntil() = %d, want 30", got)
	}
}

func TestRawNumber_Decimal(t *testing.T) {
	tests := []struct {
		json    string
		want    string
		wantErr bool
	}{
		{`1000`, "1000", false},
		{`"1,000,000"`, "1000000", false},
		{`"$0.001"`, "0.001", false},
		{`"unknown"`, "", true},
		{`null`, "", true},
		{`""`, "", true},
	}
	for _, tt := range tests {
		var n RawNumber
		if err := json.Unmarshal([]byte(tt.json), &n); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.json, err)
		}
		got, err := n.Decimal()
		if (err != nil) != tt.wantErr {
			t.Errorf("Decimal(%s) error = %v, wantErr %v", tt.json, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got.String() != tt.want {
			t.Errorf("Decimal(%s) = %s, want %s", tt.json, got, tt.want)
		}
	}
}

func TestDecodeExtraction(t *testing.T) {
	t.Run("flat issuance", func(t *testing.T) {
		ext, err := DecodeExtraction(ClassStockPurchase, json.RawMessage(`{"date":"2023-01-01","shareholder":"Alice","shares":"600"}`))
		if err != nil {
			t.Fatalf("DecodeExtraction() error = %v", err)
		}
		spa := ext.(*StockPurchaseExtraction)
		if len(spa.Issuances) != 1 || spa.Issuances[0].ShareCount().Raw() != "600" {
			t.Errorf("Issuances = %+v", spa.Issuances)
		}
	})

	t.Run("unknown class", func(t *testing.T) {
		raw := json.RawMessage(`{"foo":1}`)
		ext, err := DecodeExtraction("Side Letter", raw)
		if err != nil {
			t.Fatalf("DecodeExtraction() error = %v", err)
		}
		if ext.Kind() != "Side Letter" {
			t.Errorf("Kind() = %q", ext.Kind())
		}
		b, _ := json.Marshal(ext)
		if string(b) != `{"foo":1}` {
			t.Errorf("Marshal() = %s, want raw payload", b)
		}
	})

	t.Run("consent decision date wins", func(t *testing.T) {
		ext, _ := DecodeExtraction(ClassBoardConsent, json.RawMessage(`{"meeting_date":"2023-01-01","decision_date":"2023-01-03"}`))
		if got := ext.(*MinutesExtraction).EffectiveDate(); got != "2023-01-03" {
			t.Errorf("EffectiveDate() = %q", got)
		}
	})

	t.Run("mistyped field returns the empty variant", func(t *testing.T) {
		ext, err := DecodeExtraction(ClassStockPurchase, json.RawMessage(`{"shareholder":"Bob","shares":"400","restricted":"yes"}`))
		if err == nil {
			t.Fatal("DecodeExtraction() expected error")
		}
		spa, ok := ext.(*StockPurchaseExtraction)
		if !ok || len(spa.Issuances) != 0 {
			t.Errorf("DecodeExtraction() = %#v, want empty StockPurchaseExtraction", ext)
		}
	})
}

func TestDocument_UnmarshalJSON(t *testing.T) {
	body := `[
	  {"id":"spa-alice","filename":"spa-alice.pdf","classification":"Stock Purchase Agreement",
	   "extracted_data":{"date":"2023-01-01","shareholder":"Alice","shares_issued":600}},
	  {"id":"spa-bob","filename":"spa-bob.pdf","classification":"Stock Purchase Agreement",
	   "extracted_data":{"date":"2023-02-01","shareholder":"Bob","shares_issued":400,"restricted":"yes"}},
	  {"id":"consent","filename":"consent.pdf","classification":"Board Consent",
	   "extracted_data":{"meeting_date":"2022-12-15","key_decisions":"Approved all issuances"}},
	  {"id":"spa-carl","filename":"spa-carl.pdf","classification":"Stock Purchase Agreement",
	   "extracted_data":{"shareholder":123}}
	]`
	var docs []*Document
	if err := json.Unmarshal([]byte(body), &docs); err != nil {
		t.Fatalf("Unmarshal() error = %v, one mistyped document must not fail the set", err)
	}
	if len(docs) != 4 {
		t.Fatalf("documents = %d, want 4", len(docs))
	}

	tests := []struct {
		id      string
		wantErr bool
	}{
		{id: "spa-alice", wantErr: false},
		{id: "spa-bob", wantErr: true},
		{id: "consent", wantErr: true},
		{id: "spa-carl", wantErr: true},
	}
	for i, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			d := docs[i]
			if d.ID != tt.id || d.Extracted == nil {
				t.Fatalf("docs[%d] = %+v", i, d)
			}
			if (d.ExtractionError != "") != tt.wantErr {
				t.Errorf("ExtractionError = %q, wantErr %v", d.ExtractionError, tt.wantErr)
			}
			if d.Extracted.Kind() != ClassStockPurchase && d.Extracted.Kind() != ClassBoardMinutes {
				t.Errorf("Kind() = %q", d.Extracted.Kind())
			}
		})
	}
}

func TestMergeIssues(t *testing.T) {
	rules := []Issue{
		{Severity: SeverityWarning, Category: "A", Description: "one", Source: SourceRule},
		{Severity: "high", Category: "B", Description: "two", Source: SourceRule},
	}
	external := []Issue{
		{Severity: SeverityCritical, Category: "A", Description: "one", Source: SourceExternal},
		{Severity: "note", Category: "C", Description: "three", Source: SourceExternal},
	}
	got := MergeIssues(rules, external)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Source != SourceRule || got[0].Severity != SeverityWarning {
		t.Errorf("got[0] = %+v, want first occurrence kept", got[0])
	}
	if got[1].Severity != SeverityCritical || got[2].Severity != SeverityInfo {
		t.Errorf("severities = %s, %s", got[1].Severity, got[2].Severity)
	}

	SortIssues(got)
	if got[0].Category != "B" || got[2].Category != "C" {
		t.Errorf("SortIssues() = %+v", got)
	}
}

func chain(n int) []*EquityEvent {
	var out []*EquityEvent
	prev := ""
	for i := 1; i <= n; i++ {
		e := &EquityEvent{
			ID:               EventID("e" + decimal.NewFromInt(int64(i)).String()),
			AuditID:          "a1",
			Sequence:         int64(i),
			EventDate:        NewDate(2023, 1, i),
			EventType:        EventIssuance,
			ShareholderName:  "Alice",
			ShareDelta:       decimal.NewFromInt(int64(100 * i)),
			ComplianceStatus: StatusVerified,
			Details:          map[string]any{"restricted": true},
			PrevHash:         prev,
		}
		e.Hash = e.Digest(prev)
		prev = e.Hash
		out = append(out, e)
	}
	return out
}

func TestVerifyChain(t *testing.T) {
	events := chain(4)
	if r := VerifyChain("a1", events); !r.OK || r.HeadHash != events[3].Hash || r.Total != 4 {
		t.Fatalf("VerifyChain() = %+v, want intact", r)
	}

	events[2].ShareDelta = decimal.NewFromInt(999999)
	r := VerifyChain("a1", events)
	if r.OK || r.BrokenAt != 3 || r.BrokenReason != "hash mismatch" {
		t.Errorf("VerifyChain(tampered) = %+v", r)
	}

	if r := VerifyChain("a1", chain(3)[1:]); r.OK || r.BrokenReason != "sequence gap" {
		t.Errorf("VerifyChain(gap) = %+v", r)
	}
	if r := VerifyChain("a1", nil); !r.OK {
		t.Errorf("VerifyChain(empty) = %+v, want ok", r)
	}
}

func TestEquityEvent_SignValid(t *testing.T) {
	e := &EquityEvent{EventType: EventRepurchase, ShareDelta: decimal.NewFromInt(-5)}
	if !e.SignValid() {
		t.Error("negative repurchase should be valid")
	}
	e.ShareDelta = decimal.NewFromInt(5)
	if e.SignValid() {
		t.Error("positive repurchase should be invalid")
	}
}
