package ai

import (
	"context"
	"errors"

	"github.com/bryanwahyu/equity-ledger/internal/application"
	"github.com/bryanwahyu/equity-ledger/internal/application/reconcile"
	"github.com/bryanwahyu/equity-ledger/internal/domain/ai"
	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
)

const (
	defaultBatchSize = 40
	maxExcerpt       = 1500
	maxQuote         = 500
)

// Matcher is the model-backed approval matcher. Every event starts from its conservative
// default; the model can only attach approvals that survive the same invariant checks
// the deterministic matcher goes through. Any client failure falls back to the fallback matcher.
type Matcher struct {
	client    ai.ApprovalClient
	fallback  equity.ApprovalMatcher
	logger    application.Logger
	BatchSize int
}

var _ equity.ApprovalMatcher = (*Matcher)(nil)

func NewMatcher(client ai.ApprovalClient, fallback equity.ApprovalMatcher, logger application.Logger) *Matcher {
	if fallback == nil {
		fallback = &reconcile.TextMatcher{}
	}
	if logger == nil {
		logger = application.NopLogger{}
	}
	return &Matcher{client: client, fallback: fallback, logger: logger, BatchSize: defaultBatchSize}
}

func (m *Matcher) Match(ctx context.Context, events []*equity.EquityEvent, governance []*equity.Document) ([]*equity.EquityEvent, error) {
	if m.client == nil || len(governance) == 0 {
		return m.fallback.Match(ctx, events, governance)
	}

	out := make([]*equity.EquityEvent, len(events))
	var pending []int
	for i, ev := range events {
		out[i] = ev.Clone()
		reconcile.ApplyDefault(out[i])
		if out[i].EventType.RequiresApproval() {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return reconcile.EnforceApprovalInvariants(out, governance), nil
	}

	docs := governanceManifest(governance)
	known := make(map[string]bool, len(governance))
	for _, d := range governance {
		known[d.ID] = true
	}

	size := m.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	for start := 0; start < len(pending); start += size {
		end := min(start+size, len(pending))
		batch := pending[start:end]

		req := ai.MatchRequest{Documents: docs}
		for j, idx := range batch {
			req.Transactions = append(req.Transactions, transaction(j, out[idx]))
		}
		matches, err := m.client.MatchApprovals(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			reason := "error"
			if errors.Is(err, ai.ErrQuotaExceeded) {
				reason = "quota"
			}
			m.logger.Warn("approval matching fell back to text matcher", "reason", reason, "error", err)
			return m.fallback.Match(ctx, events, governance)
		}
		for _, match := range matches {
			if match.Index < 0 || match.Index >= len(batch) {
				m.logger.Debug("ignoring out-of-range match", "tx_index", match.Index)
				continue
			}
			apply(out[batch[match.Index]], match, known)
		}
	}
	return reconcile.EnforceApprovalInvariants(out, governance), nil
}

func apply(e *equity.EquityEvent, match ai.Match, known map[string]bool) {
	e.ComplianceStatus = equity.NormalizeComplianceStatus(match.ComplianceStatus, equity.StatusWarning)
	if match.ComplianceNote != "" {
		e.ComplianceNote = match.ComplianceNote
	}
	switch {
	case match.ApprovalDocID == "":
		e.ApprovalDocID, e.ApprovalSnippet = "", ""
		if e.ComplianceStatus == equity.StatusCritical && match.ComplianceNote == "" {
			e.ComplianceNote = reconcile.NoApprovalNote(e.EventDate)
		}
	case !known[match.ApprovalDocID]:
		// left for EnforceApprovalInvariants to clear and annotate
		e.ApprovalDocID = match.ApprovalDocID
	default:
		e.ApprovalDocID = match.ApprovalDocID
		e.ApprovalSnippet = truncate(match.ApprovalQuote, maxQuote)
	}
}

func transaction(i int, e *equity.EquityEvent) ai.Transaction {
	return ai.Transaction{
		Index:       i,
		EventDate:   e.EventDate.String(),
		EventType:   string(e.EventType),
		Shareholder: e.ShareholderName,
		Shares:      e.ShareDelta.Abs().String(),
		Snippet:     truncate(e.SourceSnippet, maxQuote),
	}
}

func governanceManifest(governance []*equity.Document) []ai.Governance {
	out := make([]ai.Governance, 0, len(governance))
	for _, doc := range governance {
		g := ai.Governance{DocID: doc.ID, Filename: doc.Filename, Excerpt: truncate(doc.Text, maxExcerpt)}
		if m, ok := doc.Extracted.(*equity.MinutesExtraction); ok {
			if d, err := reconcile.ParseExtractedDate(m.EffectiveDate()); err == nil {
				g.DecisionDate = d.String()
			}
			g.Decisions = m.KeyDecisions
			if g.Excerpt == "" {
				g.Excerpt = truncate(m.SourceQuote, maxExcerpt)
			}
		}
		out = append(out, g)
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
