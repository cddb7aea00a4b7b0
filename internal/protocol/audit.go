package protocol

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AuditEntry records a single administrative action, independent of the
// stable event stream, mirroring how the original system's route handlers
// call log_audit(...) on every admin action in addition to emitting
// on-chain events.
type AuditEntry struct {
	Action    string         `json:"action"`
	Actor     common.Address `json:"actor"`
	Target    string         `json:"target,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Detail    string         `json:"detail,omitempty"`
}

// AuditLog is embedded by every aggregate that performs admin-gated
// mutations. It is backed by a hash-chained auditLedger so history cannot
// be silently rewritten.
type AuditLog struct {
	ledger auditLedger
}

func (a *AuditLog) record(clock Clock, action string, actor common.Address, target, detail string) {
	now := clock.Now()
	a.ledger.append(now.Unix(), AuditEntry{
		Action:    action,
		Actor:     actor,
		Target:    target,
		Timestamp: now,
		Detail:    detail,
	})
}

// Entries returns every recorded audit entry in append order.
func (a *AuditLog) Entries() []AuditEntry {
	return a.ledger.entries()
}

// Valid reports whether the underlying hash chain is intact.
func (a *AuditLog) Valid() bool {
	return a.ledger.Valid()
}
