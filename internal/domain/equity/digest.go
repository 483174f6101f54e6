package equity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// Digest chains the event onto prevHash. Only persisted content takes part, so a
// row read back from any store produces the same digest.
func (e *EquityEvent) Digest(prevHash string) string {
	details := []byte("{}")
	if len(e.Details) > 0 {
		if b, err := json.Marshal(e.Details); err == nil {
			details = b
		}
	}
	h := sha256.New()
	for _, part := range []string{
		prevHash,
		e.AuditID,
		strconv.FormatInt(e.Sequence, 10),
		e.EventDate.String(),
		string(e.EventType),
		e.ShareholderName,
		e.ShareClass,
		e.ShareDelta.String(),
		e.SourceDocID,
		e.SourceSnippet,
		e.ApprovalDocID,
		e.ApprovalSnippet,
		e.ApprovalDate.String(),
		string(e.ComplianceStatus),
		e.ComplianceNote,
		string(details),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ChainReport is the result of re-walking an audit's hash chain.
type ChainReport struct {
	AuditID      string `json:"audit_id"`
	OK           bool   `json:"ok"`
	Total        int    `json:"total"`
	BrokenAt     int64  `json:"broken_at,omitempty"`
	BrokenReason string `json:"broken_reason,omitempty"`
	HeadHash     string `json:"head_hash,omitempty"`
}

// VerifyChain checks sequence continuity and hash links for events sorted by sequence.
func VerifyChain(auditID string, events []*EquityEvent) ChainReport {
	report := ChainReport{AuditID: auditID, OK: true, Total: len(events)}
	prev := ""
	for i, e := range events {
		switch {
		case e.Sequence != int64(i+1):
			report.OK, report.BrokenAt = false, e.Sequence
			report.BrokenReason = "sequence gap"
		case e.PrevHash != prev:
			report.OK, report.BrokenAt = false, e.Sequence
			report.BrokenReason = "prev_hash mismatch"
		case e.Hash != e.Digest(prev):
			report.OK, report.BrokenAt = false, e.Sequence
			report.BrokenReason = "hash mismatch"
		}
		if !report.OK {
			return report
		}
		prev = e.Hash
	}
	report.HeadHash = prev
	return report
}
