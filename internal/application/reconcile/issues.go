package reconcile

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
)

// RuleInput is the read-only view every rule receives.
type RuleInput struct {
	Events    []*equity.EquityEvent
	Documents []*equity.Document
	Skips     []*equity.MalformedEventError
}

// Rule inspects the ledger and documents and reports findings. Rules must not
// mutate their input; Detect runs them concurrently.
type Rule func(in RuleInput) []equity.Issue

// DefaultRules is the deterministic rule set, in report order.
var DefaultRules = []Rule{
	UnapprovedEvents,
	ExceedsAuthorized,
	Missing83bElections,
	MissingCharter,
	EventsBeforeFormation,
	OptionPoolIntegrity,
	NonPositivePositions,
	BoardGovernance,
	LowConfidenceExtractions,
	IncompleteExtractions,
}

const electionWindowDays = 30

// Detect evaluates rules in parallel and merges their findings, de-duplicated by
// (category, description) and ordered by severity.
func Detect(in RuleInput, rules ...Rule) []equity.Issue {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	results := make([][]equity.Issue, len(rules))
	var wg sync.WaitGroup
	for i, rule := range rules {
		wg.Add(1)
		go func(i int, rule Rule) {
			defer wg.Done()
			results[i] = rule(in)
		}(i, rule)
	}
	wg.Wait()

	for _, list := range results {
		for j := range list {
			if list[j].Source == "" {
				list[j].Source = equity.SourceRule
			}
		}
	}
	merged := equity.MergeIssues(results...)
	equity.SortIssues(merged)
	return merged
}

func issue(sev equity.Severity, category, format string, args ...any) equity.Issue {
	return equity.Issue{Severity: sev, Category: category, Description: fmt.Sprintf(format, args...)}
}

// UnapprovedEvents surfaces every event the approval matcher left CRITICAL.
func UnapprovedEvents(in RuleInput) []equity.Issue {
	var out []equity.Issue
	for _, e := range in.Events {
		if e.ComplianceStatus != equity.StatusCritical {
			continue
		}
		category := "Unapproved " + strings.ReplaceAll(string(e.EventType), "_", " ")
		out = append(out, issue(equity.SeverityCritical, category,
			"%s: %s shares (%s) on %s. %s", e.ShareholderName, FormatShares(e.ShareDelta.Abs()), e.ShareClass, e.EventDate, e.ComplianceNote))
	}
	return out
}

// ExceedsAuthorized compares issued common/preferred as of the latest event with the charter.
func ExceedsAuthorized(in RuleInput) []equity.Issue {
	charter := governingCharter(in.Documents)
	if charter == nil {
		return nil
	}
	latest := LatestEventDate(in.Events)
	common, preferred := decimal.Zero, decimal.Zero
	for _, e := range in.Events {
		if e.EventDate.After(latest) || (e.EventType != equity.EventIssuance && e.EventType != equity.EventRepurchase) {
			continue
		}
		switch {
		case IsPreferred(e.ShareClass):
			preferred = preferred.Add(e.ShareDelta)
		case IsCommon(e.ShareClass):
			common = common.Add(e.ShareDelta)
		}
	}

	var out []equity.Issue
	check := func(label string, issued decimal.Decimal, raw equity.RawNumber) bool {
		authorized, err := raw.Decimal()
		if err != nil {
			return false
		}
		if issued.GreaterThan(authorized) {
			out = append(out, issue(equity.SeverityCritical, "Exceeds Authorized Shares",
				"Issued %s shares (%s) exceed authorized %s shares (%s) by %s.",
				label, FormatShares(issued), label, FormatShares(authorized), FormatShares(issued.Sub(authorized))))
		}
		return true
	}
	hasCommon := check("common", common, charter.AuthorizedCommon)
	hasPreferred := check("preferred", preferred, charter.AuthorizedPreferred)
	if !hasCommon && !hasPreferred {
		check("total", common.Add(preferred), charter.AuthorizedShares)
	}
	return out
}

// governingCharter picks the latest-dated charter carrying authorized share figures,
// since amendments supersede the original certificate.
func governingCharter(docs []*equity.Document) *equity.CharterExtraction {
	var best *equity.CharterExtraction
	var bestDate equity.Date
	for _, doc := range docs {
		c, ok := doc.Extracted.(*equity.CharterExtraction)
		if !ok || (c.AuthorizedShares.IsEmpty() && c.AuthorizedCommon.IsEmpty() && c.AuthorizedPreferred.IsEmpty()) {
			continue
		}
		d, _ := ParseExtractedDate(c.IncorporationDate)
		if best == nil || d.After(bestDate) {
			best, bestDate = c, d
		}
	}
	return best
}

// Missing83bElections requires an 83(b) filing within 30 days after each restricted stock event.
func Missing83bElections(in RuleInput) []equity.Issue {
	type filing struct {
		key  string
		date equity.Date
	}
	var filings []filing
	for _, doc := range in.Documents {
		el, ok := doc.Extracted.(*equity.Election83bExtraction)
		if !ok {
			continue
		}
		d, err := ParseExtractedDate(el.FilingDate)
		if err != nil {
			continue
		}
		filings = append(filings, filing{key: equity.HolderKey(CanonicalName(el.Taxpayer)), date: d})
	}

	var out []equity.Issue
	for _, e := range in.Events {
		if !restricted(e) {
			continue
		}
		found := false
		for _, f := range filings {
			days := e.EventDate.DaysUntil(f.date)
			if f.key == e.HolderKey() && days >= 0 && days <= electionWindowDays {
				found = true
				break
			}
		}
		if !found {
			out = append(out, issue(equity.SeverityCritical, "Missing 83(b) Election",
				"No 83(b) election found for %s within %d days of the %s restricted stock %s.",
				e.ShareholderName, electionWindowDays, e.EventDate, strings.ReplaceAll(string(e.EventType), "_", " ")))
		}
	}
	return out
}

func restricted(e *equity.EquityEvent) bool {
	switch e.EventType {
	case equity.EventIssuance:
		return e.DetailBool("restricted") || e.DetailString("vesting_schedule") != ""
	case equity.EventOptionGrant:
		return e.DetailBool("early_exercise")
	}
	return false
}

// MissingCharter flags a document set without any charter.
func MissingCharter(in RuleInput) []equity.Issue {
	for _, doc := range in.Documents {
		if doc.Classification == equity.ClassCharter {
			return nil
		}
	}
	return []equity.Issue{issue(equity.SeverityCritical, "Missing Document",
		"No charter document (certificate of incorporation) found in the document set.")}
}

// EventsBeforeFormation flags events dated before the incorporation anchor.
func EventsBeforeFormation(in RuleInput) []equity.Issue {
	var formed equity.Date
	for _, e := range in.Events {
		if e.EventType == equity.EventFormation {
			formed = e.EventDate
			break
		}
	}
	if formed.IsZero() {
		return nil
	}
	var out []equity.Issue
	for _, e := range in.Events {
		if e.EventType != equity.EventFormation && e.EventDate.Before(formed) {
			out = append(out, issue(equity.SeverityCritical, "Chronological Integrity",
				"%s for %s dated %s predates incorporation on %s.",
				strings.ReplaceAll(string(e.EventType), "_", " "), e.ShareholderName, e.EventDate, formed))
		}
	}
	return out
}

// OptionPoolIntegrity compares option grants against the equity plan reserve.
func OptionPoolIntegrity(in RuleInput) []equity.Issue {
	granted := decimal.Zero
	for _, e := range in.Events {
		if e.EventType == equity.EventOptionGrant {
			granted = granted.Add(e.ShareDelta)
		}
	}
	if granted.IsZero() {
		return nil
	}

	pool, plans := decimal.Zero, 0
	for _, doc := range in.Documents {
		plan, ok := doc.Extracted.(*equity.EquityPlanExtraction)
		if !ok {
			continue
		}
		plans++
		if size, err := plan.PoolSize.Decimal(); err == nil {
			pool = pool.Add(size)
		}
	}

	switch {
	case plans == 0:
		return []equity.Issue{issue(equity.SeverityInfo, "Option Plan",
			"Option grants totaling %s shares found but no equity incentive plan document.", FormatShares(granted))}
	case pool.IsZero():
		return nil
	case granted.GreaterThan(pool):
		return []equity.Issue{issue(equity.SeverityCritical, "Option Pool Integrity",
			"Option grants (%s) exceed the plan pool (%s) by %s.", FormatShares(granted), FormatShares(pool), FormatShares(granted.Sub(pool)))}
	}
	utilization := granted.Mul(decimal.NewFromInt(100)).Div(pool)
	if utilization.GreaterThan(decimal.NewFromInt(90)) {
		return []equity.Issue{issue(equity.SeverityWarning, "Option Pool Integrity",
			"Option pool is %s%% utilized (%s of %s).", utilization.StringFixed(1), FormatShares(granted), FormatShares(pool))}
	}
	return nil
}

// NonPositivePositions reports holders whose repurchases netted them to zero or below.
func NonPositivePositions(in RuleInput) []equity.Issue {
	snap := Project(in.Events, LatestEventDate(in.Events))
	var out []equity.Issue
	for _, row := range snap.Inactive {
		if row.Shares.IsZero() {
			out = append(out, issue(equity.SeverityInfo, "Cap Table",
				"%s has 0 net shares (%s) after repurchase.", row.Shareholder, row.ShareClass))
			continue
		}
		out = append(out, issue(equity.SeverityCritical, "Data Integrity",
			"%s has negative net shares (%s) of %s: repurchases exceed issuances.",
			row.Shareholder, FormatShares(row.Shares), row.ShareClass))
	}
	return out
}

// BoardGovernance expects at least three board meetings over three or more years of history.
func BoardGovernance(in RuleInput) []equity.Issue {
	if len(in.Events) == 0 {
		return nil
	}
	first := in.Events[0].EventDate
	for _, e := range in.Events {
		if e.EventDate.Before(first) {
			first = e.EventDate
		}
	}
	span := first.DaysUntil(LatestEventDate(in.Events))
	if span < 3*365 {
		return nil
	}
	meetings := 0
	for _, doc := range in.Documents {
		if doc.Classification.IsGovernance() {
			meetings++
		}
	}
	if meetings >= 3 {
		return nil
	}
	return []equity.Issue{issue(equity.SeverityWarning, "Board Governance",
		"Only %d board meeting record(s) across %.1f years of equity history.", meetings, float64(span)/365)}
}

// LowConfidenceExtractions surfaces documents the extractor was unsure about.
func LowConfidenceExtractions(in RuleInput) []equity.Issue {
	var out []equity.Issue
	for _, doc := range in.Documents {
		if !doc.LowConfidence {
			continue
		}
		reason := doc.ConfidenceWarning
		if reason == "" {
			reason = "low confidence extraction"
		}
		out = append(out, issue(equity.SeverityWarning, "Extraction Quality", "%s: %s", doc.Filename, reason))
	}
	return out
}

// IncompleteExtractions turns normalizer skips into low-severity findings.
func IncompleteExtractions(in RuleInput) []equity.Issue {
	var out []equity.Issue
	for _, s := range in.Skips {
		out = append(out, issue(equity.SeverityInfo, "Incomplete Extraction",
			"Extraction incomplete for file %s: %s", s.File, strings.TrimPrefix(s.Error(), s.File+": ")))
	}
	return out
}

// FormatShares renders a share count with thousands separators.
func FormatShares(d decimal.Decimal) string {
	if d.IsInteger() && d.Abs().Cmp(decimal.NewFromInt(math.MaxInt64)) <= 0 {
		return humanize.Comma(d.IntPart())
	}
	return humanize.BigCommaf(d.BigFloat())
}
