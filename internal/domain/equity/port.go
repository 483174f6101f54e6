package equity

import "context"

// LedgerRepository port. The ledger is append-only: rows are written through a
// LedgerTx exactly once per audit and are never updated afterwards.
type LedgerRepository interface {
	// Begin opens the single write transaction for an audit. It fails with
	// ErrLedgerWriteConflict when a ledger was already committed for auditID.
	Begin(ctx context.Context, auditID string) (LedgerTx, error)
	// ListByAudit returns events ordered by (event_date, sequence).
	ListByAudit(ctx context.Context, auditID string) ([]*EquityEvent, error)
	GetEvent(ctx context.Context, auditID string, id EventID) (*EquityEvent, error)
}

// LedgerTx writes one audit's synthesis atomically.
type LedgerTx interface {
	Append(ctx context.Context, e *EquityEvent) (EventID, error)
	SaveDocuments(ctx context.Context, docs []*Document) error
	SaveIssues(ctx context.Context, issues []Issue) error
	Commit() error
	Rollback() error
}

// AuditRepository port (audit lifecycle, cached issues, document inventory)
type AuditRepository interface {
	Create(ctx context.Context, a *Audit) error
	Get(ctx context.Context, id string) (*Audit, error)
	// BeginReconcile moves a pending or errored audit to reconciling. It returns
	// ErrAuditBusy when the audit is already reconciling and ErrLedgerWriteConflict
	// when its ledger has been committed.
	BeginReconcile(ctx context.Context, id, progress string) error
	Finish(ctx context.Context, id string, state AuditState, progress, errMsg string, q *QualityReport) error
	UpdateProgress(ctx context.Context, id, progress string) error
	Issues(ctx context.Context, id string) ([]Issue, error)
	// ReplaceIssues overwrites the cached issue list after a merge.
	ReplaceIssues(ctx context.Context, id string, issues []Issue) error
	Documents(ctx context.Context, id string) ([]*Document, error)
	// Delete removes the audit and cascades to documents, events and issues.
	Delete(ctx context.Context, id string) error
}

// Store is what every persistence adapter provides.
type Store interface {
	LedgerRepository
	AuditRepository
}

// ApprovalMatcher annotates events with compliance fields in one batched pass
// over all events and all governance documents of an audit.
type ApprovalMatcher interface {
	Match(ctx context.Context, events []*EquityEvent, governance []*Document) ([]*EquityEvent, error)
}

// Archiver stores an export of a synthesized audit and returns its location.
type Archiver interface {
	Archive(ctx context.Context, auditID, name string, payload []byte) (string, error)
}
