package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditReport summarizes one pass of the ledger audit
type AuditReport struct {
	StartedAt    time.Time
	CardsChecked int
	Expired      []uuid.UUID
	// Corrupted lists cards whose stored number cannot be decrypted or no
	// longer matches its last four digits
	Corrupted []uuid.UUID
}

// Clean reports whether the audit found nothing to act on
func (r *AuditReport) Clean() bool {
	return len(r.Expired) == 0 && len(r.Corrupted) == 0
}
