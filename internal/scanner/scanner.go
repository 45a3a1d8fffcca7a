// Package scanner defines the batch contract that mailbox scanning
// backends implement and the shared orchestration engine that drives any
// backend to completion with checkpointing, cancellation, and job-status
// reporting.
package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/inboxgraph/inboxgraph/internal/auth"
	"github.com/inboxgraph/inboxgraph/internal/model"
)

// Kind identifies one of the interchangeable mailbox-access backends.
type Kind string

const (
	// KindIMAP is the stateful metadata-protocol backend.
	KindIMAP Kind = "imap"

	// KindGmailAPI is the paginated REST backend.
	KindGmailAPI Kind = "gmail-api"
)

// AuthError indicates that authentication has failed or expired for a
// mailbox backend.
type AuthError struct {
	Kind    Kind
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Kind, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Offset is a backend-specific resume position. The IMAP backend uses Seq
// (a 1-based message sequence number; 0 means start from the beginning).
// The REST backend uses Token, an opaque page token the engine forwards
// without inspecting. Exactly one of the two is meaningful per backend.
type Offset struct {
	Seq   int64
	Token string
}

// IsZero reports whether the offset carries no resume position.
func (o Offset) IsZero() bool {
	return o.Seq == 0 && o.Token == ""
}

// BatchRequest carries the tuning configuration and resume position for
// one bounded unit of scan work.
type BatchRequest struct {
	Config Config
	Offset Offset
}

// BatchResult is what a backend returns for one batch. When HasMore is
// true, Next must strictly advance the scan position; when false, Next is
// left at its zero value.
type BatchResult struct {
	// Senders holds normalized From addresses, duplicates included.
	Senders []string

	// Recipients holds normalized To/Cc/Bcc addresses, duplicates included.
	Recipients []string

	// Processed is the number of messages this batch actually yielded.
	Processed int

	// HasMore reports whether the backend has further data.
	HasMore bool

	// Next is the resume position for the following batch.
	Next Offset
}

// Scanner is the contract every mailbox backend implements. Backends are
// a closed set; the engine dispatches over this interface and never
// depends on backend identity.
type Scanner interface {
	// Kind returns the backend identifier.
	Kind() Kind

	// ScanBatch reads one bounded window of mailbox metadata. Errors
	// returned here fail the whole scan; recoverable per-window faults
	// are absorbed by the backend and reported as an empty batch.
	ScanBatch(ctx context.Context, client *auth.MailClient, req BatchRequest) (*BatchResult, error)
}

// ProgressStore is the checkpoint persistence capability. Implementations:
// the durable SQLite store, an in-memory store for tests, and a no-op
// store when persistence is disabled.
type ProgressStore interface {
	// SaveProgress writes a checkpoint keyed by (account, scanner kind).
	SaveProgress(ctx context.Context, progress model.ScanProgress) error

	// LoadProgress returns the checkpoint for (account, scanner kind),
	// or nil when none exists.
	LoadProgress(ctx context.Context, accountEmail, scannerKind string) (*model.ScanProgress, error)
}

// ScanResult is the summary returned by a finished (or cancelled, or
// short-circuited) scan. Any new backend and any status consumer must
// honor this shape.
type ScanResult struct {
	// Senders and Recipients are the deduplicated, sorted address sets
	// accumulated across all batches.
	Senders    []string
	Recipients []string

	// Merged is the union of Senders and Recipients.
	Merged []string

	// Scanned is the cumulative number of messages processed, including
	// messages counted by resumed checkpoints.
	Scanned int

	// Contacts is len(Merged).
	Contacts int

	// Message is a human-readable outcome description.
	Message string

	// LastScanned is the final scan position.
	LastScanned Offset
}
