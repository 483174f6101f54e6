package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
)

// Store is an in-memory implementation of equity.Store.
// Ledger writes are buffered in the transaction and published on Commit.
// This implementation is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	audits    map[string]*equity.Audit
	events    map[string][]*equity.EquityEvent // audit id -> ledger
	documents map[string][]*equity.Document
	issues    map[string][]equity.Issue
	committed map[string]bool
	now       func() time.Time
}

var _ equity.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		audits:    make(map[string]*equity.Audit),
		events:    make(map[string][]*equity.EquityEvent),
		documents: make(map[string][]*equity.Document),
		issues:    make(map[string][]equity.Issue),
		committed: make(map[string]bool),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Create(_ context.Context, a *equity.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.audits[a.ID]; ok {
		return fmt.Errorf("audit %s already exists", a.ID)
	}
	c := *a
	s.audits[a.ID] = &c
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*equity.Audit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.audits[id]
	if !ok {
		return nil, fmt.Errorf("audit %s: %w", id, equity.ErrNotFound)
	}
	c := *a
	return &c, nil
}

func (s *Store) BeginReconcile(_ context.Context, id, progress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.audits[id]
	switch {
	case !ok:
		return fmt.Errorf("audit %s: %w", id, equity.ErrNotFound)
	case a.State == equity.AuditReconciling:
		return fmt.Errorf("audit %s: %w", id, equity.ErrAuditBusy)
	case s.committed[id] || a.State.Terminal():
		return fmt.Errorf("audit %s: %w", id, equity.ErrLedgerWriteConflict)
	}
	a.State = equity.AuditReconciling
	a.Progress = progress
	a.ErrorMessage = ""
	a.UpdatedAt = s.now()
	return nil
}

func (s *Store) Finish(_ context.Context, id string, state equity.AuditState, progress, errMsg string, q *equity.QualityReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.audits[id]
	if !ok {
		return fmt.Errorf("audit %s: %w", id, equity.ErrNotFound)
	}
	a.State = state
	a.Progress = progress
	a.ErrorMessage = errMsg
	a.Quality = q
	a.UpdatedAt = s.now()
	return nil
}

func (s *Store) UpdateProgress(_ context.Context, id, progress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.audits[id]
	if !ok {
		return fmt.Errorf("audit %s: %w", id, equity.ErrNotFound)
	}
	a.Progress = progress
	a.UpdatedAt = s.now()
	return nil
}

func (s *Store) Issues(_ context.Context, id string) ([]equity.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]equity.Issue{}, s.issues[id]...), nil
}

func (s *Store) ReplaceIssues(_ context.Context, id string, issues []equity.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.audits[id]; !ok {
		return fmt.Errorf("audit %s: %w", id, equity.ErrNotFound)
	}
	s.issues[id] = append([]equity.Issue{}, issues...)
	return nil
}

func (s *Store) Documents(_ context.Context, id string) ([]*equity.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*equity.Document, 0, len(s.documents[id]))
	for _, d := range s.documents[id] {
		c := *d
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.audits[id]; !ok {
		return fmt.Errorf("audit %s: %w", id, equity.ErrNotFound)
	}
	delete(s.audits, id)
	delete(s.events, id)
	delete(s.documents, id)
	delete(s.issues, id)
	delete(s.committed, id)
	return nil
}

func (s *Store) Begin(_ context.Context, auditID string) (equity.LedgerTx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.audits[auditID]; !ok {
		return nil, fmt.Errorf("audit %s: %w", auditID, equity.ErrNotFound)
	}
	if s.committed[auditID] {
		return nil, fmt.Errorf("audit %s: %w", auditID, equity.ErrLedgerWriteConflict)
	}
	return &tx{store: s, auditID: auditID}, nil
}

// ListByAudit returns copies ordered by (event_date, sequence).
func (s *Store) ListByAudit(_ context.Context, auditID string) ([]*equity.EquityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*equity.EquityEvent, 0, len(s.events[auditID]))
	for _, e := range s.events[auditID] {
		out = append(out, e.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EventDate.Equal(out[j].EventDate) {
			return out[i].EventDate.Before(out[j].EventDate)
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

func (s *Store) GetEvent(_ context.Context, auditID string, id equity.EventID) (*equity.EquityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events[auditID] {
		if e.ID == id {
			return e.Clone(), nil
		}
	}
	return nil, fmt.Errorf("event %s: %w", id, equity.ErrNotFound)
}

type tx struct {
	store   *Store
	auditID string
	events  []*equity.EquityEvent
	docs    []*equity.Document
	issues  []equity.Issue
	done    bool
}

func (t *tx) Append(_ context.Context, e *equity.EquityEvent) (equity.EventID, error) {
	if t.done {
		return "", fmt.Errorf("transaction already closed")
	}
	for _, prev := range t.events {
		if prev.ID == e.ID || prev.Sequence == e.Sequence {
			return "", fmt.Errorf("event %s sequence %d: %w", e.ID, e.Sequence, equity.ErrLedgerWriteConflict)
		}
	}
	t.events = append(t.events, e.Clone())
	return e.ID, nil
}

func (t *tx) SaveDocuments(_ context.Context, docs []*equity.Document) error {
	for _, d := range docs {
		c := *d
		t.docs = append(t.docs, &c)
	}
	return nil
}

func (t *tx) SaveIssues(_ context.Context, issues []equity.Issue) error {
	t.issues = append(t.issues, issues...)
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.audits[t.auditID]; !ok {
		return fmt.Errorf("audit %s: %w", t.auditID, equity.ErrNotFound)
	}
	if s.committed[t.auditID] {
		return fmt.Errorf("audit %s: %w", t.auditID, equity.ErrLedgerWriteConflict)
	}
	s.events[t.auditID] = t.events
	s.documents[t.auditID] = t.docs
	s.issues[t.auditID] = t.issues
	s.committed[t.auditID] = true
	return nil
}

func (t *tx) Rollback() error {
	t.done = true
	return nil
}
