package reconcile

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
)

const (
	NoteIndirectApproval = "Approval found but does not explicitly reference this transaction."
	NoteUnmatched        = "Approval evidence not matched automatically. Manual review required."
	NoteFormation        = "Formation evidence sourced from charter document."
	NoteFinancing        = "Approval linkage not required but evidence should be reviewed."

	defaultProximityDays = 365
	maxSnippet           = 500
)

// NoApprovalNote is the compliance note for an event with no candidate approval at all.
func NoApprovalNote(d equity.Date) string {
	return fmt.Sprintf("No board approval found for transaction dated %s.", d)
}

// TextMatcher is the deterministic approval matcher: one pass over every event
// against every decision line of the governance documents.
type TextMatcher struct {
	// ProximityDays bounds how far before an event an unrelated consent still counts as plausible.
	ProximityDays int
}

var _ equity.ApprovalMatcher = (*TextMatcher)(nil)

// decision is one approval candidate: a single decision of a governance document.
type decision struct {
	doc     *equity.Document
	date    equity.Date
	text    string
	words   []string
	numbers []decimal.Decimal
}

func (m *TextMatcher) Match(ctx context.Context, events []*equity.EquityEvent, governance []*equity.Document) ([]*equity.EquityEvent, error) {
	window := m.ProximityDays
	if window <= 0 {
		window = defaultProximityDays
	}
	cands := decisionsOf(governance)

	out := make([]*equity.EquityEvent, 0, len(events))
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := ev.Clone()
		ApplyDefault(e)
		out = append(out, e)
		if !e.EventType.RequiresApproval() {
			continue
		}

		var best, nearest *decision
		for i := range cands {
			c := &cands[i]
			if c.date.After(e.EventDate) {
				continue
			}
			if nearest == nil || c.date.After(nearest.date) {
				nearest = c
			}
			if mentions(c, e) && (best == nil || c.date.After(best.date)) {
				best = c
			}
		}

		switch {
		case best != nil:
			setApproval(e, best)
			e.ComplianceStatus = equity.StatusVerified
			e.ComplianceNote = fmt.Sprintf("Approved by %s dated %s.", best.doc.Filename, best.date)
		case nearest != nil && nearest.date.DaysUntil(e.EventDate) <= window:
			setApproval(e, nearest)
			e.ComplianceStatus = equity.StatusWarning
			e.ComplianceNote = NoteIndirectApproval
		default:
			e.ApprovalDocID, e.ApprovalSnippet, e.ApprovalDate = "", "", equity.Date{}
			e.ComplianceStatus = equity.StatusCritical
			e.ComplianceNote = NoApprovalNote(e.EventDate)
		}
	}
	return out, nil
}

func setApproval(e *equity.EquityEvent, d *decision) {
	e.ApprovalDocID = d.doc.ID
	e.ApprovalSnippet = truncate(d.text, maxSnippet)
	e.ApprovalDate = d.date
}

func decisionsOf(governance []*equity.Document) []decision {
	var out []decision
	for _, doc := range governance {
		m, ok := doc.Extracted.(*equity.MinutesExtraction)
		if !ok {
			continue
		}
		date, err := ParseExtractedDate(m.EffectiveDate())
		if err != nil {
			// an approval with no usable date cannot be shown to precede anything
			continue
		}
		texts := nonEmpty(m.KeyDecisions)
		if len(texts) == 0 {
			texts = nonEmpty([]string{m.SourceQuote, doc.Text})
		}
		for _, t := range texts {
			out = append(out, decision{doc: doc, date: date, text: t, words: wordsOf(t), numbers: numbersIn(t)})
		}
	}
	return out
}

// mentions reports whether the decision names the holder as whole words or cites the
// share count or dollar amount.
func mentions(d *decision, e *equity.EquityEvent) bool {
	if containsWords(d.words, wordsOf(e.ShareholderName)) {
		return true
	}
	for _, want := range transactionFigures(e) {
		for _, got := range d.numbers {
			if got.Equal(want) {
				return true
			}
		}
	}
	return false
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`)

// wordsOf lowercases and splits text into words, dropping possessive endings.
func wordsOf(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	for i, w := range words {
		w = strings.TrimSuffix(w, "'s")
		words[i] = strings.TrimSuffix(w, "’s")
	}
	return words
}

// containsWords reports whether needle occurs as a contiguous run of whole words in hay.
func containsWords(hay, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(hay) {
		return false
	}
	for i := 0; i+len(needle) <= len(hay); i++ {
		match := true
		for j, w := range needle {
			if hay[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func transactionFigures(e *equity.EquityEvent) []decimal.Decimal {
	var out []decimal.Decimal
	if !e.ShareDelta.IsZero() {
		out = append(out, e.ShareDelta.Abs())
	}
	for _, key := range []string{"amount", "principal"} {
		if d, err := decimal.NewFromString(e.DetailString(key)); err == nil && d.Sign() > 0 {
			out = append(out, d)
		}
	}
	if price, err := decimal.NewFromString(e.DetailString("price_per_share")); err == nil && price.Sign() > 0 && !e.ShareDelta.IsZero() {
		out = append(out, price.Mul(e.ShareDelta.Abs()))
	}
	return out
}

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b`),
		regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
		regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?,?\s+\d{4}\b`),
	}
	// a figure only counts next to a currency sign or a share unit, and never as part of a label like "A-1"
	figurePattern = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}\-./])(\$|\busd\b)?\s*(\d[\d,]*(?:\.\d+)?)(\s+(?:shares?|options?|units?|common|preferred|dollars)\b)?`)
)

func numbersIn(text string) []decimal.Decimal {
	for _, p := range datePatterns {
		text = p.ReplaceAllString(text, " ")
	}
	var out []decimal.Decimal
	for _, m := range figurePattern.FindAllStringSubmatch(text, -1) {
		if m[1] == "" && m[3] == "" {
			continue
		}
		if d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimRight(m[2], ","), ",", "")); err == nil {
			out = append(out, d)
		}
	}
	return out
}

// ApplyDefault sets the conservative status an event carries before any matching evidence.
func ApplyDefault(e *equity.EquityEvent) {
	switch {
	case e.EventType == equity.EventFormation:
		e.ComplianceStatus = equity.StatusVerified
		e.ComplianceNote = NoteFormation
	case e.EventType.RequiresApproval():
		e.ComplianceStatus = equity.StatusWarning
		e.ComplianceNote = NoteUnmatched
	default:
		e.ComplianceStatus = equity.StatusWarning
		e.ComplianceNote = NoteFinancing
	}
	e.ApprovalDocID, e.ApprovalSnippet, e.ApprovalDate = "", "", equity.Date{}
}

// EnforceApprovalInvariants re-checks matcher output against the governance set: an approval
// must be a governance document and a VERIFIED approval must not postdate the event. The
// approval date is always taken from the document, never from the matcher.
func EnforceApprovalInvariants(events []*equity.EquityEvent, governance []*equity.Document) []*equity.EquityEvent {
	dates := make(map[string]equity.Date, len(governance))
	for _, doc := range governance {
		if m, ok := doc.Extracted.(*equity.MinutesExtraction); ok {
			d, _ := ParseExtractedDate(m.EffectiveDate())
			dates[doc.ID] = d
		}
	}

	for _, e := range events {
		if e.ComplianceStatus == "" {
			ApplyDefault(e)
		}
		if e.ApprovalDocID == "" {
			e.ApprovalDate = equity.Date{}
			if e.ComplianceStatus == equity.StatusVerified && e.EventType.RequiresApproval() {
				e.ComplianceStatus = equity.StatusWarning
				e.ComplianceNote = strings.TrimSpace(e.ComplianceNote + " [Auto-corrected: verified without approval evidence]")
			}
			continue
		}

		date, known := dates[e.ApprovalDocID]
		switch {
		case !known:
			e.ApprovalDocID, e.ApprovalSnippet, e.ApprovalDate = "", "", equity.Date{}
			if e.ComplianceStatus == equity.StatusVerified {
				e.ComplianceStatus = equity.StatusWarning
			}
			e.ComplianceNote = strings.TrimSpace(e.ComplianceNote + " [Auto-corrected: approval reference is not a governance document]")
		case date.IsZero():
			e.ApprovalDate = equity.Date{}
			if e.ComplianceStatus == equity.StatusVerified {
				e.ComplianceStatus = equity.StatusWarning
				e.ComplianceNote = strings.TrimSpace(e.ComplianceNote + " [Auto-corrected: approval document has no decision date]")
			}
		case date.After(e.EventDate):
			e.ApprovalDate = date
			if e.ComplianceStatus == equity.StatusVerified {
				e.ComplianceStatus = equity.StatusWarning
				e.ComplianceNote = fmt.Sprintf("Approval dated %s postdates the transaction dated %s; later ratification is not prior approval.", date, e.EventDate)
			}
		default:
			e.ApprovalDate = date
		}
	}
	return events
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
