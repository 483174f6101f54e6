package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"filippo.io/age"

	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
)

// SealedArchiver encrypts exports to a set of age X25519 recipients before
// handing them to the next archiver. Objects gain the ".age" suffix.
type SealedArchiver struct {
	next       equity.Archiver
	recipients []age.Recipient
}

var _ equity.Archiver = (*SealedArchiver)(nil)

// NewSealedArchiver parses "age1..." public keys. At least one is required.
func NewSealedArchiver(next equity.Archiver, publicKeys ...string) (*SealedArchiver, error) {
	var recipients []age.Recipient
	for _, k := range publicKeys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		r, err := age.ParseX25519Recipient(k)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient: %w", err)
		}
		recipients = append(recipients, r)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no age recipients configured")
	}
	return &SealedArchiver{next: next, recipients: recipients}, nil
}

// Seal encrypts payload for every recipient.
func (s *SealedArchiver) Seal(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("encrypting data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *SealedArchiver) Archive(ctx context.Context, auditID, name string, payload []byte) (string, error) {
	sealed, err := s.Seal(payload)
	if err != nil {
		return "", err
	}
	return s.next.Archive(ctx, auditID, name+".age", sealed)
}
