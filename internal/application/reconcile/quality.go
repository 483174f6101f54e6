package reconcile

import (
	"fmt"

	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
)

// Review builds the quality report that decides between complete and needs_review.
func Review(docs []*equity.Document, events []*equity.EquityEvent, skips []*equity.MalformedEventError, issues []equity.Issue) *equity.QualityReport {
	r := &equity.QualityReport{
		DocumentCount:   len(docs),
		SkippedEvents:   len(skips),
		EventCount:      len(events),
		BlockingReasons: []string{},
	}
	seen := map[string]bool{}
	block := func(format string, args ...any) {
		reason := fmt.Sprintf(format, args...)
		if !seen[reason] {
			seen[reason] = true
			r.BlockingReasons = append(r.BlockingReasons, reason)
		}
	}

	if len(events) == 0 {
		block("No equity events found in the document set")
	}
	for _, doc := range docs {
		if doc.ParseStatus == equity.ParseError {
			r.ParseFailures++
			block("Document parsing failed: %s", doc.Filename)
		} else {
			r.ParsedOK++
		}
		if doc.LowConfidence {
			r.LowConfidence++
			block("Low-confidence extraction requires review: %s", doc.Filename)
		}
	}
	for _, e := range events {
		if e.EventType.RequiresApproval() && e.ApprovalDocID == "" {
			r.MissingApprovals++
			block("Missing approval for %s on %s", e.EventType, e.EventDate)
		}
	}
	for _, is := range issues {
		if is.Severity == equity.SeverityCritical {
			r.CriticalIssues++
		}
	}
	if r.CriticalIssues > 0 {
		block("%d critical compliance issue(s)", r.CriticalIssues)
	}
	r.ReviewRequired = len(r.BlockingReasons) > 0
	return r
}
