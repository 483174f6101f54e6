package equity

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Classification is the categorical type assigned to a document by the upstream classifier.
type Classification string

const (
	ClassCharter         Classification = "Charter Document"
	ClassStockPurchase   Classification = "Stock Purchase Agreement"
	ClassSAFE            Classification = "SAFE"
	ClassConvertibleNote Classification = "Convertible Note"
	ClassOptionGrant     Classification = "Option Grant Agreement"
	ClassRepurchase      Classification = "Share Repurchase Agreement"
	ClassBoardMinutes    Classification = "Board/Shareholder Minutes"
	ClassBoardConsent    Classification = "Board Consent"
	ClassElection83b     Classification = "83(b) Election"
	ClassEquityPlan      Classification = "Equity Incentive Plan"
)

// IsGovernance reports whether documents of this class are candidate approvals.
func (c Classification) IsGovernance() bool {
	return c == ClassBoardMinutes || c == ClassBoardConsent
}

// ParseStatus enum
type ParseStatus string

const (
	ParseSuccess ParseStatus = "success"
	ParsePartial ParseStatus = "partial"
	ParseError   ParseStatus = "error"
	ParseSkipped ParseStatus = "skipped"
)

// Document is one parsed source file with its extracted fields. Immutable once created.
type Document struct {
	ID                string         `json:"id"`
	AuditID           string         `json:"audit_id,omitempty"`
	Filename          string         `json:"filename"`
	Classification    Classification `json:"classification"`
	ParseStatus       ParseStatus    `json:"parse_status"`
	Text              string         `json:"text,omitempty"`
	LowConfidence     bool           `json:"low_confidence,omitempty"`
	ConfidenceWarning string         `json:"confidence_warning,omitempty"`
	ExtractionError   string         `json:"extraction_error,omitempty"`
	Extracted         Extraction     `json:"extracted_data"`
}

func (d *Document) UnmarshalJSON(b []byte) error {
	type plain Document
	var aux struct {
		plain
		Extracted json.RawMessage `json:"extracted_data"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*d = Document(aux.plain)
	ext, err := DecodeExtraction(d.Classification, aux.Extracted)
	if err != nil {
		// a mistyped payload stays with its document so the normalizer can skip it
		d.ExtractionError = err.Error()
	}
	d.Extracted = ext
	return nil
}

// Extraction is the classification-specific payload of a document.
type Extraction interface {
	Kind() Classification
}

// DecodeExtraction picks the variant for class and decodes raw into it.
// Classes without a variant decode into Unclassified. When raw does not fit the
// variant, the empty variant is returned together with the error.
func DecodeExtraction(class Classification, raw json.RawMessage) (Extraction, error) {
	ext := variantOf(class)
	if ext == nil {
		return &Unclassified{Class: class, Raw: raw}, nil
	}
	if len(raw) == 0 || string(raw) == "null" {
		return ext, nil
	}
	if err := json.Unmarshal(raw, ext); err != nil {
		return variantOf(class), fmt.Errorf("decode %s extraction: %w", class, err)
	}
	return ext, nil
}

func variantOf(class Classification) Extraction {
	switch class {
	case ClassCharter:
		return &CharterExtraction{}
	case ClassStockPurchase:
		return &StockPurchaseExtraction{}
	case ClassSAFE:
		return &SAFEExtraction{}
	case ClassConvertibleNote:
		return &ConvertibleNoteExtraction{}
	case ClassOptionGrant:
		return &OptionGrantExtraction{}
	case ClassRepurchase:
		return &RepurchaseExtraction{}
	case ClassBoardMinutes, ClassBoardConsent:
		return &MinutesExtraction{}
	case ClassElection83b:
		return &Election83bExtraction{}
	case ClassEquityPlan:
		return &EquityPlanExtraction{}
	}
	return nil
}

type CharterExtraction struct {
	CompanyName         string    `json:"company_name"`
	IncorporationDate   string    `json:"incorporation_date"`
	AuthorizedShares    RawNumber `json:"authorized_shares"`
	AuthorizedCommon    RawNumber `json:"authorized_common"`
	AuthorizedPreferred RawNumber `json:"authorized_preferred"`
	ShareClasses        []string  `json:"share_classes,omitempty"`
	SourceQuote         string    `json:"source_quote,omitempty"`
}

func (*CharterExtraction) Kind() Classification { return ClassCharter }

type StockIssuance struct {
	Date            string    `json:"date"`
	Shareholder     string    `json:"shareholder"`
	Shares          RawNumber `json:"shares"`
	SharesIssued    RawNumber `json:"shares_issued"`
	ShareClass      string    `json:"share_class,omitempty"`
	PricePerShare   RawNumber `json:"price_per_share"`
	VestingSchedule string    `json:"vesting_schedule,omitempty"`
	Restricted      bool      `json:"restricted,omitempty"`
	SourceQuote     string    `json:"source_quote,omitempty"`
}

// ShareCount returns whichever of shares / shares_issued was extracted.
func (s StockIssuance) ShareCount() RawNumber { return firstPresent(s.SharesIssued, s.Shares) }

func (s StockIssuance) empty() bool {
	return s.Date == "" && s.Shareholder == "" && s.ShareCount().IsEmpty()
}

// StockPurchaseExtraction accepts either {"stock_issuances": [...]} or a single flat issuance.
type StockPurchaseExtraction struct {
	Issuances []StockIssuance `json:"stock_issuances"`
}

func (*StockPurchaseExtraction) Kind() Classification { return ClassStockPurchase }

func (s *StockPurchaseExtraction) UnmarshalJSON(b []byte) error {
	var list struct {
		Issuances []StockIssuance `json:"stock_issuances"`
	}
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	if len(list.Issuances) > 0 {
		s.Issuances = list.Issuances
		return nil
	}
	var single StockIssuance
	if err := json.Unmarshal(b, &single); err != nil {
		return err
	}
	if !single.empty() {
		s.Issuances = []StockIssuance{single}
	}
	return nil
}

type SAFEExtraction struct {
	Date         string    `json:"date"`
	Investor     string    `json:"investor"`
	Amount       RawNumber `json:"amount"`
	ValuationCap RawNumber `json:"valuation_cap"`
	DiscountRate RawNumber `json:"discount_rate"`
	SourceQuote  string    `json:"source_quote,omitempty"`
}

func (*SAFEExtraction) Kind() Classification { return ClassSAFE }

type ConvertibleNoteExtraction struct {
	Date         string    `json:"date"`
	Investor     string    `json:"investor"`
	Principal    RawNumber `json:"principal"`
	InterestRate RawNumber `json:"interest_rate"`
	MaturityDate string    `json:"maturity_date,omitempty"`
	ValuationCap RawNumber `json:"valuation_cap"`
	DiscountRate RawNumber `json:"discount_rate"`
	SourceQuote  string    `json:"source_quote,omitempty"`
}

func (*ConvertibleNoteExtraction) Kind() Classification { return ClassConvertibleNote }

type OptionGrantExtraction struct {
	GrantDate       string    `json:"grant_date"`
	Recipient       string    `json:"recipient"`
	Shares          RawNumber `json:"shares"`
	SharesGranted   RawNumber `json:"shares_granted"`
	StrikePrice     RawNumber `json:"strike_price"`
	VestingSchedule string    `json:"vesting_schedule,omitempty"`
	ExpirationDate  string    `json:"expiration_date,omitempty"`
	EarlyExercise   bool      `json:"early_exercise,omitempty"`
	SourceQuote     string    `json:"source_quote,omitempty"`
}

func (*OptionGrantExtraction) Kind() Classification { return ClassOptionGrant }

// ShareCount returns whichever of shares / shares_granted was extracted.
func (o *OptionGrantExtraction) ShareCount() RawNumber { return firstPresent(o.SharesGranted, o.Shares) }

type RepurchaseExtraction struct {
	Date              string    `json:"date"`
	Shareholder       string    `json:"shareholder"`
	Shares            RawNumber `json:"shares"`
	SharesRepurchased RawNumber `json:"shares_repurchased"`
	ShareClass        string    `json:"share_class,omitempty"`
	PricePerShare     RawNumber `json:"price_per_share"`
	SourceQuote       string    `json:"source_quote,omitempty"`
}

func (*RepurchaseExtraction) Kind() Classification { return ClassRepurchase }

// ShareCount returns whichever of shares / shares_repurchased was extracted.
func (r *RepurchaseExtraction) ShareCount() RawNumber {
	return firstPresent(r.SharesRepurchased, r.Shares)
}

// MinutesExtraction covers board and shareholder minutes as well as written consents.
type MinutesExtraction struct {
	MeetingDate  string   `json:"meeting_date"`
	DecisionDate string   `json:"decision_date,omitempty"`
	MeetingType  string   `json:"meeting_type,omitempty"`
	KeyDecisions []string `json:"key_decisions"`
	SourceQuote  string   `json:"source_quote,omitempty"`
}

func (*MinutesExtraction) Kind() Classification { return ClassBoardMinutes }

// EffectiveDate is the decision date when extracted, else the meeting date.
func (m *MinutesExtraction) EffectiveDate() string {
	if strings.TrimSpace(m.DecisionDate) != "" {
		return m.DecisionDate
	}
	return m.MeetingDate
}

type Election83bExtraction struct {
	FilingDate string    `json:"filing_date"`
	Taxpayer   string    `json:"taxpayer"`
	Shares     RawNumber `json:"shares"`
	GrantDate  string    `json:"grant_date,omitempty"`
}

func (*Election83bExtraction) Kind() Classification { return ClassElection83b }

type EquityPlanExtraction struct {
	PlanName     string    `json:"plan_name"`
	AdoptionDate string    `json:"adoption_date"`
	PoolSize     RawNumber `json:"pool_size"`
}

func (*EquityPlanExtraction) Kind() Classification { return ClassEquityPlan }

// Unclassified carries the payload of any class the ledger does not model.
type Unclassified struct {
	Class Classification
	Raw   json.RawMessage
}

func (u *Unclassified) Kind() Classification { return u.Class }

func (u Unclassified) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return []byte("null"), nil
	}
	return u.Raw, nil
}
