package audits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bryanwahyu/equity-ledger/internal/application"
	"github.com/bryanwahyu/equity-ledger/internal/application/reconcile"
	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
)

// LatestAsOf is the explicit as_of_date value that resolves to the newest event in the ledger.
const LatestAsOf = "latest"

// Progress labels shown while an audit reconciles.
const (
	ProgressQueued      = "Queued for synthesis"
	ProgressNormalizing = "Normalizing documents"
	ProgressMatching    = "Matching approvals"
	ProgressDetecting   = "Detecting issues"
	ProgressWriting     = "Writing ledger"
	ProgressDone        = "Completed"
	ProgressFailed      = "Failed"
)

// Service implements the audit use-cases: lifecycle, synthesis and time-travel queries.
// It is safe for concurrent use.
type Service struct {
	Store      equity.Store
	Matcher    equity.ApprovalMatcher
	Archive    equity.Archiver // optional
	Normalizer *reconcile.Normalizer
	Rules      []reconcile.Rule
	Clock      application.Clock
	IDs        application.IDGenerator
	Logger     application.Logger

	issuesMu sync.Mutex
}

func (s *Service) log() application.Logger {
	if s.Logger == nil {
		return application.NopLogger{}
	}
	return s.Logger
}

func (s *Service) matcher() equity.ApprovalMatcher {
	if s.Matcher == nil {
		return &reconcile.TextMatcher{}
	}
	return s.Matcher
}

func (s *Service) normalizer() *reconcile.Normalizer {
	if s.Normalizer == nil {
		return &reconcile.Normalizer{Logger: s.log()}
	}
	return s.Normalizer
}

//
// ==== USE CASES ====
//

type CreateAuditCommand struct {
	CompanyName string `json:"company_name"`
}

// Create registers a pending audit.
func (s *Service) Create(ctx context.Context, cmd CreateAuditCommand) (*equity.Audit, error) {
	now := s.Clock.Now()
	a := &equity.Audit{
		ID:          s.IDs.New(),
		CompanyName: strings.TrimSpace(cmd.CompanyName),
		State:       equity.AuditPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (*equity.Audit, error) {
	return s.Store.Get(ctx, id)
}

// Delete removes the audit with its documents, ledger and issues.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.Store.Delete(ctx, id)
}

// SynthesisResult summarizes one committed synthesis.
type SynthesisResult struct {
	AuditID   string                `json:"audit_id"`
	State     equity.AuditState     `json:"state"`
	Events    int                   `json:"events"`
	Issues    int                   `json:"issues"`
	Skipped   int                   `json:"skipped"`
	HeadHash  string                `json:"head_hash,omitempty"`
	Quality   *equity.QualityReport `json:"quality"`
	ArchiveAt string                `json:"archive_location,omitempty"`
}

// StartSynthesis claims the audit for reconciliation. It fails with ErrAuditBusy while
// another synthesis runs and with ErrLedgerWriteConflict once a ledger is committed.
func (s *Service) StartSynthesis(ctx context.Context, auditID string) error {
	return s.Store.BeginReconcile(ctx, auditID, ProgressQueued)
}

// Synthesize is StartSynthesis followed by RunSynthesis.
func (s *Service) Synthesize(ctx context.Context, auditID string, docs []*equity.Document) (*SynthesisResult, error) {
	if err := s.StartSynthesis(ctx, auditID); err != nil {
		return nil, err
	}
	return s.RunSynthesis(ctx, auditID, docs)
}

// RunSynthesis builds and commits the ledger for a claimed audit. Any failure before the
// commit moves the audit to error; nothing of a failed run is persisted.
func (s *Service) RunSynthesis(ctx context.Context, auditID string, docs []*equity.Document) (*SynthesisResult, error) {
	res, err := s.synthesize(ctx, auditID, docs)
	if err != nil {
		s.log().Error("synthesis failed", "audit", auditID, "error", err)
		if ferr := s.Store.Finish(context.Background(), auditID, equity.AuditError, ProgressFailed, err.Error(), nil); ferr != nil {
			s.log().Error("mark audit failed", "audit", auditID, "error", ferr)
		}
		return nil, err
	}
	return res, nil
}

func (s *Service) synthesize(ctx context.Context, auditID string, input []*equity.Document) (*SynthesisResult, error) {
	docs := make([]*equity.Document, 0, len(input))
	for _, d := range input {
		if d == nil {
			continue
		}
		c := *d
		c.AuditID = auditID
		if c.ID == "" {
			c.ID = s.IDs.New()
		}
		docs = append(docs, &c)
	}

	s.progress(ctx, auditID, ProgressNormalizing)
	normalized := s.normalizer().NormalizeAll(docs)

	s.progress(ctx, auditID, ProgressMatching)
	matched, err := s.matcher().Match(ctx, normalized.Events, normalized.Governance)
	if err != nil {
		return nil, fmt.Errorf("match approvals: %w", err)
	}
	if len(matched) != len(normalized.Events) {
		return nil, fmt.Errorf("match approvals: got %d events back, sent %d", len(matched), len(normalized.Events))
	}
	events := reconcile.EnforceApprovalInvariants(matched, normalized.Governance)
	reconcile.SortByDate(events)
	for _, e := range events {
		if !e.SignValid() {
			return nil, fmt.Errorf("%s event on %s has share delta %s: %w", e.EventType, e.EventDate, e.ShareDelta, equity.ErrMalformedEvent)
		}
	}

	s.progress(ctx, auditID, ProgressDetecting)
	issues := reconcile.Detect(reconcile.RuleInput{Events: events, Documents: docs, Skips: normalized.Skips}, s.Rules...)
	quality := reconcile.Review(docs, events, normalized.Skips, issues)

	s.progress(ctx, auditID, ProgressWriting)
	head, err := s.commit(ctx, auditID, docs, events, issues)
	if err != nil {
		return nil, err
	}

	state := equity.AuditComplete
	if quality.ReviewRequired {
		state = equity.AuditNeedsReview
	}
	// the ledger is committed from here on; a failed state write must not turn it into error
	if err := s.Store.Finish(ctx, auditID, state, ProgressDone, "", quality); err != nil {
		s.log().Error("finish audit after commit", "audit", auditID, "state", state, "error", err)
	}
	s.log().Info("synthesis complete", "audit", auditID, "state", state, "events", len(events),
		"issues", len(issues), "skipped", len(normalized.Skips))

	res := &SynthesisResult{
		AuditID:  auditID,
		State:    state,
		Events:   len(events),
		Issues:   len(issues),
		Skipped:  len(normalized.Skips),
		HeadHash: head,
		Quality:  quality,
	}
	res.ArchiveAt = s.archive(ctx, auditID, events, issues)
	return res, nil
}

// commit appends the whole ledger in one transaction, chaining each event onto the previous hash.
func (s *Service) commit(ctx context.Context, auditID string, docs []*equity.Document, events []*equity.EquityEvent, issues []equity.Issue) (string, error) {
	tx, err := s.Store.Begin(ctx, auditID)
	if err != nil {
		return "", err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := tx.SaveDocuments(ctx, docs); err != nil {
		return "", fmt.Errorf("save documents: %w", err)
	}
	now := s.Clock.Now()
	prev := ""
	for i, e := range events {
		e.ID = equity.EventID(s.IDs.New())
		e.AuditID = auditID
		e.Sequence = int64(i + 1)
		e.CreatedAt = now
		e.PrevHash = prev
		e.Hash = e.Digest(prev)
		if _, err := tx.Append(ctx, e); err != nil {
			return "", fmt.Errorf("append event %d: %w", e.Sequence, err)
		}
		prev = e.Hash
	}
	if err := tx.SaveIssues(ctx, issues); err != nil {
		return "", fmt.Errorf("save issues: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit ledger: %w", err)
	}
	committed = true
	return prev, nil
}

func (s *Service) progress(ctx context.Context, auditID, label string) {
	if err := s.Store.UpdateProgress(ctx, auditID, label); err != nil {
		s.log().Warn("update progress", "audit", auditID, "progress", label, "error", err)
	}
}

// Export is the archived form of a synthesized audit.
type Export struct {
	Audit    *equity.Audit           `json:"audit"`
	Events   []*equity.EquityEvent   `json:"events"`
	Issues   []equity.Issue          `json:"issues"`
	CapTable equity.CapTableSnapshot `json:"cap_table"`
}

func (s *Service) archive(ctx context.Context, auditID string, events []*equity.EquityEvent, issues []equity.Issue) string {
	if s.Archive == nil {
		return ""
	}
	a, err := s.Store.Get(ctx, auditID)
	if err != nil {
		s.log().Warn("archive skipped", "audit", auditID, "error", err)
		return ""
	}
	payload, err := json.Marshal(Export{
		Audit:    a,
		Events:   events,
		Issues:   issues,
		CapTable: reconcile.Project(events, reconcile.LatestEventDate(events)),
	})
	if err != nil {
		s.log().Warn("archive skipped", "audit", auditID, "error", err)
		return ""
	}
	loc, err := s.Archive.Archive(ctx, auditID, "ledger.json", payload)
	if err != nil {
		s.log().Warn("archive failed", "audit", auditID, "error", err)
		return ""
	}
	s.log().Info("ledger archived", "audit", auditID, "location", loc)
	return loc
}

//
// ==== QUERIES ====
//

// Events returns the audit's ledger ordered by (event_date, sequence).
func (s *Service) Events(ctx context.Context, auditID string) ([]*equity.EquityEvent, error) {
	if _, err := s.Store.Get(ctx, auditID); err != nil {
		return nil, err
	}
	events, err := s.Store.ListByAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*equity.EquityEvent{}
	}
	return events, nil
}

func (s *Service) Event(ctx context.Context, auditID string, id equity.EventID) (*equity.EquityEvent, error) {
	return s.Store.GetEvent(ctx, auditID, id)
}

// VerifyLedger re-walks the audit's hash chain.
func (s *Service) VerifyLedger(ctx context.Context, auditID string) (equity.ChainReport, error) {
	events, err := s.Events(ctx, auditID)
	if err != nil {
		return equity.ChainReport{}, err
	}
	bySeq := append([]*equity.EquityEvent(nil), events...)
	sort.Slice(bySeq, func(i, j int) bool { return bySeq[i].Sequence < bySeq[j].Sequence })
	return equity.VerifyChain(auditID, bySeq), nil
}

// ResolveAsOf parses an as_of_date query value. "latest" resolves to the newest event
// date; anything else must be YYYY-MM-DD.
func ResolveAsOf(raw string, events []*equity.EquityEvent) (equity.Date, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return equity.Date{}, fmt.Errorf("as_of_date is required: %w", equity.ErrProjectionInput)
	case strings.EqualFold(raw, LatestAsOf):
		return reconcile.LatestEventDate(events), nil
	}
	d, err := equity.ParseDate(raw)
	if err != nil {
		return equity.Date{}, fmt.Errorf("as_of_date: %v: %w", err, equity.ErrProjectionInput)
	}
	return d, nil
}

func (s *Service) ledgerAsOf(ctx context.Context, auditID, asOf string) ([]*equity.EquityEvent, equity.Date, error) {
	events, err := s.Events(ctx, auditID)
	if err != nil {
		return nil, equity.Date{}, err
	}
	d, err := ResolveAsOf(asOf, events)
	if err != nil {
		return nil, equity.Date{}, err
	}
	return events, d, nil
}

// CapTable projects issued-and-outstanding ownership as of asOf.
func (s *Service) CapTable(ctx context.Context, auditID, asOf string) (equity.CapTableSnapshot, error) {
	events, d, err := s.ledgerAsOf(ctx, auditID, asOf)
	if err != nil {
		return equity.CapTableSnapshot{}, err
	}
	return reconcile.Project(events, d), nil
}

// FullyDiluted projects ownership including outstanding option grants as of asOf.
func (s *Service) FullyDiluted(ctx context.Context, auditID, asOf string) (equity.FullyDilutedSnapshot, error) {
	events, d, err := s.ledgerAsOf(ctx, auditID, asOf)
	if err != nil {
		return equity.FullyDilutedSnapshot{}, err
	}
	return reconcile.ProjectFullyDiluted(events, d), nil
}

// Options lists option grants outstanding as of asOf.
func (s *Service) Options(ctx context.Context, auditID, asOf string) ([]equity.OptionGrantView, error) {
	events, d, err := s.ledgerAsOf(ctx, auditID, asOf)
	if err != nil {
		return nil, err
	}
	return reconcile.ActiveOptions(events, d), nil
}

func (s *Service) Issues(ctx context.Context, auditID string) ([]equity.Issue, error) {
	if _, err := s.Store.Get(ctx, auditID); err != nil {
		return nil, err
	}
	issues, err := s.Store.Issues(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if issues == nil {
		issues = []equity.Issue{}
	}
	return issues, nil
}

// MergeExternalIssues folds findings from an outside reviewer into the cached list,
// dropping repeats of (category, description).
func (s *Service) MergeExternalIssues(ctx context.Context, auditID string, external []equity.Issue) ([]equity.Issue, error) {
	for i := range external {
		external[i].Category = strings.TrimSpace(external[i].Category)
		external[i].Description = strings.TrimSpace(external[i].Description)
		if external[i].Category == "" || external[i].Description == "" {
			return nil, fmt.Errorf("issue %d: category and description are required: %w", i, equity.ErrProjectionInput)
		}
		if external[i].Source == "" {
			external[i].Source = equity.SourceExternal
		}
	}

	s.issuesMu.Lock()
	defer s.issuesMu.Unlock()

	current, err := s.Issues(ctx, auditID)
	if err != nil {
		return nil, err
	}
	merged := equity.MergeIssues(current, external)
	equity.SortIssues(merged)
	if err := s.Store.ReplaceIssues(ctx, auditID, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *Service) Documents(ctx context.Context, auditID string) ([]*equity.Document, error) {
	if _, err := s.Store.Get(ctx, auditID); err != nil {
		return nil, err
	}
	docs, err := s.Store.Documents(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*equity.Document{}
	}
	return docs, nil
}

// IsClientError reports whether err is caused by the request rather than the server.
func IsClientError(err error) bool {
	return errors.Is(err, equity.ErrProjectionInput) || errors.Is(err, equity.ErrNotFound) ||
		errors.Is(err, equity.ErrAuditBusy) || errors.Is(err, equity.ErrLedgerWriteConflict)
}
