package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bryanwahyu/equity-ledger/internal/application"
	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
)

// Normalizer turns per-document extractions into ledger drafts. A malformed
// extraction only drops that document's event; the rest of the set proceeds.
type Normalizer struct {
	Logger application.Logger
}

// Normalized is the outcome for a whole document set.
type Normalized struct {
	Events     []*equity.EquityEvent
	Skips      []*equity.MalformedEventError
	Governance []*equity.Document
}

func (n *Normalizer) log() application.Logger {
	if n.Logger == nil {
		return application.NopLogger{}
	}
	return n.Logger
}

// NormalizeAll normalizes every document. Only the earliest charter yields a formation
// event. Events come back sorted by date with document order kept on ties.
func (n *Normalizer) NormalizeAll(docs []*equity.Document) Normalized {
	var out Normalized
	var formation *equity.EquityEvent
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if doc.Classification.IsGovernance() {
			if _, ok := doc.Extracted.(*equity.MinutesExtraction); ok && doc.ParseStatus != equity.ParseError {
				out.Governance = append(out.Governance, doc)
			}
			continue
		}

		events, skips := n.Normalize(doc)
		for _, s := range skips {
			n.log().Warn("extraction skipped", "file", s.File, "field", s.Field, "reason", s.Reason)
		}
		out.Skips = append(out.Skips, skips...)
		for _, e := range events {
			if e.EventType == equity.EventFormation {
				if formation == nil || e.EventDate.Before(formation.EventDate) {
					formation = e
				}
				continue
			}
			out.Events = append(out.Events, e)
		}
	}
	if formation != nil {
		out.Events = append([]*equity.EquityEvent{formation}, out.Events...)
	}
	SortByDate(out.Events)
	return out
}

// SortByDate orders events by event date, stable on ties.
func SortByDate(events []*equity.EquityEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].EventDate.Before(events[j].EventDate)
	})
}

// Normalize maps one document onto zero or more event drafts. Unknown classes yield nothing.
func (n *Normalizer) Normalize(doc *equity.Document) ([]*equity.EquityEvent, []*equity.MalformedEventError) {
	if !producesEvents(doc.Extracted) {
		return nil, nil
	}
	if doc.ParseStatus == equity.ParseError || doc.ExtractionError != "" {
		reason := doc.ExtractionError
		if reason == "" {
			reason = "document failed to parse"
		}
		return nil, []*equity.MalformedEventError{{File: doc.Filename, Reason: reason}}
	}

	switch ext := doc.Extracted.(type) {
	case *equity.CharterExtraction:
		e, err := charterEvent(doc, ext)
		return one(e, err)
	case *equity.StockPurchaseExtraction:
		if len(ext.Issuances) == 0 {
			return nil, []*equity.MalformedEventError{{File: doc.Filename, Field: "shares_issued", Reason: "no issuance extracted"}}
		}
		var events []*equity.EquityEvent
		var skips []*equity.MalformedEventError
		for _, iss := range ext.Issuances {
			e, err := issuanceEvent(doc, iss)
			if err != nil {
				skips = append(skips, err)
				continue
			}
			events = append(events, e)
		}
		return events, skips
	case *equity.SAFEExtraction:
		e, err := safeEvent(doc, ext)
		return one(e, err)
	case *equity.ConvertibleNoteExtraction:
		e, err := noteEvent(doc, ext)
		return one(e, err)
	case *equity.OptionGrantExtraction:
		e, err := optionEvent(doc, ext)
		return one(e, err)
	case *equity.RepurchaseExtraction:
		e, err := repurchaseEvent(doc, ext)
		return one(e, err)
	}
	return nil, nil
}

func producesEvents(ext equity.Extraction) bool {
	switch ext.(type) {
	case *equity.CharterExtraction, *equity.StockPurchaseExtraction, *equity.SAFEExtraction,
		*equity.ConvertibleNoteExtraction, *equity.OptionGrantExtraction, *equity.RepurchaseExtraction:
		return true
	}
	return false
}

func one(e *equity.EquityEvent, err *equity.MalformedEventError) ([]*equity.EquityEvent, []*equity.MalformedEventError) {
	if err != nil {
		return nil, []*equity.MalformedEventError{err}
	}
	return []*equity.EquityEvent{e}, nil
}

func malformed(doc *equity.Document, field string, err error) *equity.MalformedEventError {
	return &equity.MalformedEventError{File: doc.Filename, Field: field, Reason: err.Error()}
}

func requireDate(doc *equity.Document, field, raw string) (equity.Date, *equity.MalformedEventError) {
	d, err := ParseExtractedDate(raw)
	if err != nil {
		return equity.Date{}, malformed(doc, field, err)
	}
	return d, nil
}

func requireName(doc *equity.Document, field, raw string) (string, *equity.MalformedEventError) {
	name := CanonicalName(raw)
	if name == "" {
		return "", malformed(doc, field, fmt.Errorf("missing value"))
	}
	return name, nil
}

func requirePositive(doc *equity.Document, field string, raw equity.RawNumber) (decimal.Decimal, *equity.MalformedEventError) {
	d, err := raw.Decimal()
	if err != nil {
		return decimal.Zero, malformed(doc, field, err)
	}
	if d.Sign() <= 0 {
		return decimal.Zero, malformed(doc, field, fmt.Errorf("must be greater than zero, got %s", d))
	}
	return d, nil
}

func newEvent(doc *equity.Document, t equity.EventType, date equity.Date, quote, fallback string) *equity.EquityEvent {
	snippet := strings.TrimSpace(quote)
	if snippet == "" {
		snippet = fallback
	}
	return &equity.EquityEvent{
		EventDate:     date,
		EventType:     t,
		ShareDelta:    decimal.Zero,
		SourceDocID:   doc.ID,
		SourceSnippet: snippet,
		Details:       map[string]any{},
	}
}

func putNumber(details map[string]any, key string, raw equity.RawNumber) {
	if d, err := raw.Decimal(); err == nil {
		details[key] = d.String()
	}
}

func putString(details map[string]any, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		details[key] = v
	}
}

func charterEvent(doc *equity.Document, c *equity.CharterExtraction) (*equity.EquityEvent, *equity.MalformedEventError) {
	date, err := requireDate(doc, "incorporation_date", c.IncorporationDate)
	if err != nil {
		return nil, err
	}
	e := newEvent(doc, equity.EventFormation, date, c.SourceQuote, "Company incorporated: "+c.CompanyName)
	putString(e.Details, "company_name", c.CompanyName)
	putNumber(e.Details, "authorized_shares", c.AuthorizedShares)
	putNumber(e.Details, "authorized_common", c.AuthorizedCommon)
	putNumber(e.Details, "authorized_preferred", c.AuthorizedPreferred)
	if len(c.ShareClasses) > 0 {
		e.Details["share_classes"] = strings.Join(c.ShareClasses, "; ")
	}
	return e, nil
}

func issuanceEvent(doc *equity.Document, iss equity.StockIssuance) (*equity.EquityEvent, *equity.MalformedEventError) {
	date, err := requireDate(doc, "date", iss.Date)
	if err != nil {
		return nil, err
	}
	holder, err := requireName(doc, "shareholder", iss.Shareholder)
	if err != nil {
		return nil, err
	}
	shares, err := requirePositive(doc, "shares_issued", iss.ShareCount())
	if err != nil {
		return nil, err
	}
	e := newEvent(doc, equity.EventIssuance, date, iss.SourceQuote, fmt.Sprintf("%s - %s shares", holder, shares))
	e.ShareholderName = holder
	e.ShareClass = ShareClass(iss.ShareClass)
	e.ShareDelta = shares
	putNumber(e.Details, "price_per_share", iss.PricePerShare)
	putString(e.Details, "vesting_schedule", iss.VestingSchedule)
	if iss.Restricted {
		e.Details["restricted"] = true
	}
	return e, nil
}

func safeEvent(doc *equity.Document, s *equity.SAFEExtraction) (*equity.EquityEvent, *equity.MalformedEventError) {
	date, err := requireDate(doc, "date", s.Date)
	if err != nil {
		return nil, err
	}
	investor, err := requireName(doc, "investor", s.Investor)
	if err != nil {
		return nil, err
	}
	e := newEvent(doc, equity.EventSAFE, date, s.SourceQuote, "SAFE investment by "+investor)
	e.ShareholderName = investor
	e.ShareClass = "SAFE"
	putNumber(e.Details, "amount", s.Amount)
	putNumber(e.Details, "valuation_cap", s.ValuationCap)
	putNumber(e.Details, "discount_rate", s.DiscountRate)
	return e, nil
}

func noteEvent(doc *equity.Document, c *equity.ConvertibleNoteExtraction) (*equity.EquityEvent, *equity.MalformedEventError) {
	date, err := requireDate(doc, "date", c.Date)
	if err != nil {
		return nil, err
	}
	investor, err := requireName(doc, "investor", c.Investor)
	if err != nil {
		return nil, err
	}
	e := newEvent(doc, equity.EventConvertibleNote, date, c.SourceQuote, "Convertible note from "+investor)
	e.ShareholderName = investor
	e.ShareClass = "Convertible Note"
	putNumber(e.Details, "principal", c.Principal)
	putNumber(e.Details, "interest_rate", c.InterestRate)
	putNumber(e.Details, "valuation_cap", c.ValuationCap)
	putNumber(e.Details, "discount_rate", c.DiscountRate)
	if d, derr := ParseExtractedDate(c.MaturityDate); derr == nil {
		e.Details["maturity_date"] = d.String()
	}
	return e, nil
}

func optionEvent(doc *equity.Document, o *equity.OptionGrantExtraction) (*equity.EquityEvent, *equity.MalformedEventError) {
	date, err := requireDate(doc, "grant_date", o.GrantDate)
	if err != nil {
		return nil, err
	}
	recipient, err := requireName(doc, "recipient", o.Recipient)
	if err != nil {
		return nil, err
	}
	shares, err := requirePositive(doc, "shares_granted", o.ShareCount())
	if err != nil {
		return nil, err
	}
	e := newEvent(doc, equity.EventOptionGrant, date, o.SourceQuote, "Option grant to "+recipient)
	e.ShareholderName = recipient
	e.ShareClass = "Option"
	e.ShareDelta = shares
	putNumber(e.Details, "strike_price", o.StrikePrice)
	putString(e.Details, "vesting_schedule", o.VestingSchedule)
	if d, derr := ParseExtractedDate(o.ExpirationDate); derr == nil {
		e.Details["expiration_date"] = d.String()
	}
	if o.EarlyExercise {
		e.Details["early_exercise"] = true
	}
	return e, nil
}

func repurchaseEvent(doc *equity.Document, r *equity.RepurchaseExtraction) (*equity.EquityEvent, *equity.MalformedEventError) {
	date, err := requireDate(doc, "date", r.Date)
	if err != nil {
		return nil, err
	}
	holder, err := requireName(doc, "shareholder", r.Shareholder)
	if err != nil {
		return nil, err
	}
	raw, perr := r.ShareCount().Decimal()
	if perr != nil {
		return nil, malformed(doc, "shares_repurchased", perr)
	}
	if raw.IsZero() {
		return nil, malformed(doc, "shares_repurchased", fmt.Errorf("must be non-zero"))
	}
	e := newEvent(doc, equity.EventRepurchase, date, r.SourceQuote, "Repurchase from "+holder)
	e.ShareholderName = holder
	e.ShareClass = ShareClass(r.ShareClass)
	e.ShareDelta = raw.Abs().Neg()
	putNumber(e.Details, "price_per_share", r.PricePerShare)
	return e, nil
}
