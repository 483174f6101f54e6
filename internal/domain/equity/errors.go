package equity

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by repositories for unknown audits or events.
	ErrNotFound = errors.New("not found")

	// ErrMalformedEvent marks a document whose extracted data cannot become an event.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrLedgerWriteConflict is returned when an audit's ledger is written a second time.
	ErrLedgerWriteConflict = errors.New("ledger already written for audit")

	// ErrAuditBusy is returned when synthesis is requested while the audit is reconciling.
	ErrAuditBusy = errors.New("audit is already reconciling")

	// ErrProjectionInput is returned for an unusable as-of date.
	ErrProjectionInput = errors.New("invalid projection input")
)

// MalformedEventError describes one skipped extraction.
type MalformedEventError struct {
	File   string
	Field  string
	Reason string
}

func (e *MalformedEventError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.File, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Reason)
}

func (e *MalformedEventError) Is(target error) bool { return target == ErrMalformedEvent }
