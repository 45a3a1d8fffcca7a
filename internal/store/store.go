package store

import (
	"context"

	"github.com/inboxgraph/inboxgraph/internal/model"
)

// Store defines the persistence interface for scan checkpoints, contact
// snapshots, and per-account alternate-credential settings.
type Store interface {
	// === Scan progress checkpoints ===

	// SaveProgress upserts the checkpoint for (account, scanner kind).
	SaveProgress(ctx context.Context, progress model.ScanProgress) error

	// LoadProgress returns the checkpoint for (account, scanner kind),
	// or nil when none exists.
	LoadProgress(ctx context.Context, accountEmail, scannerKind string) (*model.ScanProgress, error)

	// DeleteProgress removes a checkpoint so the next scan starts fresh.
	DeleteProgress(ctx context.Context, accountEmail, scannerKind string) error

	// === Contact snapshots ===

	// MergeContactSnapshot unions the given address sets into the
	// account's stored snapshot. Repeated merges of the same run are
	// idempotent.
	MergeContactSnapshot(ctx context.Context, snapshot model.ContactSnapshot) error

	// GetContactSnapshot returns the account's snapshot, or nil when the
	// account has never completed a scan.
	GetContactSnapshot(ctx context.Context, accountEmail string) (*model.ContactSnapshot, error)

	// === Alternate-credential settings ===

	// UpsertAltCredentialSettings stores an account's alternate-credential
	// configuration (the password itself goes to the keyring, not here).
	UpsertAltCredentialSettings(ctx context.Context, settings model.AltCredentialSettings) error

	// AltCredentialSettings returns an account's configuration, or nil
	// when none exists.
	AltCredentialSettings(ctx context.Context, accountEmail string) (*model.AltCredentialSettings, error)
}
