package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
)

// Dialect carries what differs between the SQL engines behind Store.
type Dialect struct {
	Name string
	// Numbered reports whether placeholders are $1, $2... instead of ?.
	Numbered bool
	// IsUniqueViolation recognizes the driver's unique/primary key violation error.
	IsUniqueViolation func(error) bool
}

// Store implements equity.Store on database/sql. Queries are written with ? placeholders
// and rebound per dialect.
type Store struct {
	db  *sql.DB
	d   Dialect
	now func() time.Time
}

var _ equity.Store = (*Store)(nil)

func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, d: d, now: func() time.Time { return time.Now().UTC() }}
}

// DB exposes the handle for health checks and migrations.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) q(query string) string {
	if !s.d.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) unique(err error) bool {
	return err != nil && s.d.IsUniqueViolation != nil && s.d.IsUniqueViolation(err)
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, equity.ErrNotFound)
	}
	return err
}

//
// audits
//

func (s *Store) Create(ctx context.Context, a *equity.Audit) error {
	const q = `
INSERT INTO audits (id, company_name, state, progress, error_message, quality, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?)`
	quality, err := encodeQuality(a.Quality)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(q),
		a.ID, a.CompanyName, string(a.State), a.Progress, a.ErrorMessage, quality, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*equity.Audit, error) {
	const q = `
SELECT id, company_name, state, progress, error_message, quality, created_at, updated_at
FROM audits WHERE id=?`
	var a equity.Audit
	var state string
	var quality sql.NullString
	err := s.db.QueryRowContext(ctx, s.q(q), id).Scan(
		&a.ID, &a.CompanyName, &state, &a.Progress, &a.ErrorMessage, &quality, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, notFound("audit", id, err)
	}
	a.State = equity.AuditState(state)
	if quality.Valid && quality.String != "" {
		a.Quality = &equity.QualityReport{}
		if err := json.Unmarshal([]byte(quality.String), a.Quality); err != nil {
			return nil, fmt.Errorf("decode quality of audit %s: %w", id, err)
		}
	}
	return &a, nil
}

func (s *Store) BeginReconcile(ctx context.Context, id, progress string) error {
	const q = `
UPDATE audits SET state=?, progress=?, error_message='', updated_at=?
WHERE id=? AND state IN (?, ?)
  AND NOT EXISTS (SELECT 1 FROM ledger_commits WHERE audit_id=?)`
	res, err := s.db.ExecContext(ctx, s.q(q),
		string(equity.AuditReconciling), progress, s.now(), id,
		string(equity.AuditPending), string(equity.AuditError), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n == 1 {
		return err
	}

	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.State == equity.AuditReconciling {
		return fmt.Errorf("audit %s: %w", id, equity.ErrAuditBusy)
	}
	return fmt.Errorf("audit %s is %s: %w", id, a.State, equity.ErrLedgerWriteConflict)
}

func (s *Store) Finish(ctx context.Context, id string, state equity.AuditState, progress, errMsg string, q *equity.QualityReport) error {
	const stmt = `UPDATE audits SET state=?, progress=?, error_message=?, quality=?, updated_at=? WHERE id=?`
	quality, err := encodeQuality(q)
	if err != nil {
		return err
	}
	return s.execOne(ctx, "audit", id, stmt, string(state), progress, errMsg, quality, s.now(), id)
}

func (s *Store) UpdateProgress(ctx context.Context, id, progress string) error {
	const stmt = `UPDATE audits SET progress=?, updated_at=? WHERE id=?`
	return s.execOne(ctx, "audit", id, stmt, progress, s.now(), id)
}

// execOne runs an update that must touch exactly one row.
func (s *Store) execOne(ctx context.Context, kind, id, stmt string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.q(stmt), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// MySQL reports 0 for an update that changes nothing; confirm the row exists.
		if _, gerr := s.Get(ctx, id); gerr != nil {
			return gerr
		}
	}
	return nil
}

func (s *Store) Issues(ctx context.Context, id string) ([]equity.Issue, error) {
	const q = `SELECT severity, category, description, source FROM issues WHERE audit_id=? ORDER BY position`
	rows, err := s.db.QueryContext(ctx, s.q(q), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []equity.Issue{}
	for rows.Next() {
		var is equity.Issue
		var sev string
		if err := rows.Scan(&sev, &is.Category, &is.Description, &is.Source); err != nil {
			return nil, err
		}
		is.Severity = equity.Severity(sev)
		out = append(out, is)
	}
	return out, rows.Err()
}

func (s *Store) ReplaceIssues(ctx context.Context, id string, issues []equity.Issue) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM issues WHERE audit_id=?`), id); err != nil {
		return err
	}
	if err := s.insertIssues(ctx, tx, id, issues); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) insertIssues(ctx context.Context, tx *sql.Tx, id string, issues []equity.Issue) error {
	const q = `INSERT INTO issues (audit_id, position, severity, category, description, source) VALUES (?,?,?,?,?,?)`
	stmt, err := tx.PrepareContext(ctx, s.q(q))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, is := range issues {
		if _, err := stmt.ExecContext(ctx, id, i, string(is.Severity), is.Category, is.Description, is.Source); err != nil {
			return fmt.Errorf("insert issue %d: %w", i, err)
		}
	}
	return nil
}

func (s *Store) Documents(ctx context.Context, id string) ([]*equity.Document, error) {
	const q = `SELECT payload FROM documents WHERE audit_id=? ORDER BY position`
	rows, err := s.db.QueryContext(ctx, s.q(q), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*equity.Document{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var d equity.Document
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// Delete removes the audit and everything hanging off it in one transaction.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"issues", "equity_events", "documents", "ledger_commits"} {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM `+table+` WHERE audit_id=?`), id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM audits WHERE id=?`), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("audit %s: %w", id, equity.ErrNotFound)
	}
	return tx.Commit()
}

//
// ledger
//

const eventColumns = `id, audit_id, sequence, event_date, event_type, shareholder_name, share_class, share_delta,
 source_doc_id, source_snippet, approval_doc_id, approval_snippet, approval_date,
 compliance_status, compliance_note, details, prev_hash, hash, created_at`

// Begin claims the audit's single ledger write by inserting its commit marker.
func (s *Store) Begin(ctx context.Context, auditID string) (equity.LedgerTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	var one int
	if err := tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM audits WHERE id=?`), auditID).Scan(&one); err != nil {
		_ = tx.Rollback()
		return nil, notFound("audit", auditID, err)
	}
	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO ledger_commits (audit_id, committed_at) VALUES (?,?)`), auditID, s.now())
	if err != nil {
		_ = tx.Rollback()
		if s.unique(err) {
			return nil, fmt.Errorf("audit %s: %w", auditID, equity.ErrLedgerWriteConflict)
		}
		return nil, err
	}
	return &ledgerTx{s: s, tx: tx, auditID: auditID}, nil
}

func (s *Store) ListByAudit(ctx context.Context, auditID string) ([]*equity.EquityEvent, error) {
	q := `SELECT ` + eventColumns + ` FROM equity_events WHERE audit_id=? ORDER BY event_date, sequence`
	rows, err := s.db.QueryContext(ctx, s.q(q), auditID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*equity.EquityEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetEvent(ctx context.Context, auditID string, id equity.EventID) (*equity.EquityEvent, error) {
	q := `SELECT ` + eventColumns + ` FROM equity_events WHERE audit_id=? AND id=?`
	e, err := scanEvent(s.db.QueryRowContext(ctx, s.q(q), auditID, string(id)))
	if err != nil {
		return nil, notFound("event", string(id), err)
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*equity.EquityEvent, error) {
	var e equity.EquityEvent
	var id, typ, status, details string
	if err := row.Scan(
		&id, &e.AuditID, &e.Sequence, &e.EventDate, &typ, &e.ShareholderName, &e.ShareClass, &e.ShareDelta,
		&e.SourceDocID, &e.SourceSnippet, &e.ApprovalDocID, &e.ApprovalSnippet, &e.ApprovalDate,
		&status, &e.ComplianceNote, &details, &e.PrevHash, &e.Hash, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.ID = equity.EventID(id)
	e.EventType = equity.EventType(typ)
	e.ComplianceStatus = equity.ComplianceStatus(status)
	if details != "" && details != "{}" {
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, fmt.Errorf("decode details of event %s: %w", id, err)
		}
	}
	return &e, nil
}

type ledgerTx struct {
	s       *Store
	tx      *sql.Tx
	auditID string
}

func (t *ledgerTx) Append(ctx context.Context, e *equity.EquityEvent) (equity.EventID, error) {
	q := `INSERT INTO equity_events (` + eventColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	details := "{}"
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return "", fmt.Errorf("encode details: %w", err)
		}
		details = string(b)
	}
	_, err := t.tx.ExecContext(ctx, t.s.q(q),
		string(e.ID), t.auditID, e.Sequence, e.EventDate, string(e.EventType), e.ShareholderName, e.ShareClass,
		e.ShareDelta.String(), e.SourceDocID, e.SourceSnippet, e.ApprovalDocID, e.ApprovalSnippet, e.ApprovalDate,
		string(e.ComplianceStatus), e.ComplianceNote, details, e.PrevHash, e.Hash, e.CreatedAt.UTC(),
	)
	if err != nil {
		if t.s.unique(err) {
			return "", fmt.Errorf("event %s sequence %d: %w", e.ID, e.Sequence, equity.ErrLedgerWriteConflict)
		}
		return "", err
	}
	return e.ID, nil
}

func (t *ledgerTx) SaveDocuments(ctx context.Context, docs []*equity.Document) error {
	const q = `
INSERT INTO documents (audit_id, id, position, filename, classification, parse_status, payload)
VALUES (?,?,?,?,?,?,?)`
	stmt, err := t.tx.PrepareContext(ctx, t.s.q(q))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, d := range docs {
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encode document %s: %w", d.Filename, err)
		}
		if _, err := stmt.ExecContext(ctx, t.auditID, d.ID, i, d.Filename, string(d.Classification), string(d.ParseStatus), string(payload)); err != nil {
			return fmt.Errorf("insert document %s: %w", d.Filename, err)
		}
	}
	return nil
}

func (t *ledgerTx) SaveIssues(ctx context.Context, issues []equity.Issue) error {
	return t.s.insertIssues(ctx, t.tx, t.auditID, issues)
}

func (t *ledgerTx) Commit() error   { return t.tx.Commit() }
func (t *ledgerTx) Rollback() error { return t.tx.Rollback() }

func encodeQuality(q *equity.QualityReport) (any, error) {
	if q == nil {
		return nil, nil
	}
	b, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode quality: %w", err)
	}
	return string(b), nil
}
