package model

import "time"

// ScanProgress is the durable checkpoint for a long-running mailbox scan,
// keyed by (account email, scanner kind). It is written after every batch
// and read at scan start to resume or short-circuit a completed scan.
type ScanProgress struct {
	// AccountEmail is the mailbox owner's address.
	AccountEmail string `db:"account_email"`

	// ScannerKind identifies which backend produced this checkpoint
	// ("imap" or "gmail-api"). Checkpoints for different backends never
	// collide.
	ScannerKind string `db:"scanner_kind"`

	// LastSeq is the resume position for sequence-number backends
	// (1-based; 0 means the scan has not advanced past the start).
	LastSeq int64 `db:"last_seq"`

	// LastToken is the opaque resume token for paginated REST backends.
	// The engine never inspects it, only forwards it.
	LastToken string `db:"last_token"`

	// TotalMessages is the cumulative number of messages scanned across
	// all invocations that contributed to this checkpoint.
	TotalMessages int `db:"total_messages"`

	// ContactsFound is the merged contact count reported by the most
	// recent invocation.
	ContactsFound int `db:"contacts_found"`

	// ChunksCompleted counts the batches completed so far.
	ChunksCompleted int `db:"chunks_completed"`

	// IsComplete is set only after a batch reports no further data. A
	// consumer observing it may skip scanning and return the stored
	// summary.
	IsComplete bool `db:"is_complete"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
