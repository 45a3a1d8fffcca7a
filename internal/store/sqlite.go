package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/inboxgraph/inboxgraph/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
//
// Checkpoint and snapshot writes are serialized per key with an advisory
// mutex: two scans checkpointing the same (account, kind) pair in one
// process cannot interleave. Across processes the write is still
// last-write-wins.
type SQLiteStore struct {
	db *sqlx.DB

	mu      sync.Mutex
	keyLock map[string]*sync.Mutex
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		keyLock: make(map[string]*sync.Mutex),
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// lockKey returns the advisory mutex for a composite key, creating it on
// first use.
func (s *SQLiteStore) lockKey(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.keyLock[key]
	if !ok {
		l = &sync.Mutex{}
		s.keyLock[key] = l
	}
	return l
}

// SaveProgress upserts a scan checkpoint keyed by (account, scanner kind).
func (s *SQLiteStore) SaveProgress(ctx context.Context, p model.ScanProgress) error {
	l := s.lockKey("progress:" + p.AccountEmail + ":" + p.ScannerKind)
	l.Lock()
	defer l.Unlock()

	const query = `
		INSERT INTO scan_progress (
			account_email, scanner_kind, last_seq, last_token,
			total_messages, contacts_found, chunks_completed, is_complete,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_email, scanner_kind) DO UPDATE SET
			last_seq         = excluded.last_seq,
			last_token       = excluded.last_token,
			total_messages   = excluded.total_messages,
			contacts_found   = excluded.contacts_found,
			chunks_completed = excluded.chunks_completed,
			is_complete      = excluded.is_complete,
			updated_at       = excluded.updated_at`

	now := time.Now().UTC()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.ExecContext(ctx, query,
		p.AccountEmail, p.ScannerKind, p.LastSeq, p.LastToken,
		p.TotalMessages, p.ContactsFound, p.ChunksCompleted, p.IsComplete,
		createdAt.UTC(), now,
	)
	if err != nil {
		return fmt.Errorf("saving scan progress for %s/%s: %w",
			p.AccountEmail, p.ScannerKind, err)
	}
	return nil
}

// LoadProgress returns the checkpoint for (account, scanner kind), or nil
// when none exists.
func (s *SQLiteStore) LoadProgress(
	ctx context.Context,
	accountEmail, scannerKind string,
) (*model.ScanProgress, error) {
	const query = `
		SELECT account_email, scanner_kind, last_seq, last_token,
		       total_messages, contacts_found, chunks_completed, is_complete,
		       created_at, updated_at
		FROM scan_progress
		WHERE account_email = ? AND scanner_kind = ?`

	var p model.ScanProgress
	err := s.db.GetContext(ctx, &p, query, accountEmail, scannerKind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading scan progress for %s/%s: %w",
			accountEmail, scannerKind, err)
	}
	return &p, nil
}

// DeleteProgress removes a checkpoint so the next scan starts fresh.
func (s *SQLiteStore) DeleteProgress(
	ctx context.Context,
	accountEmail, scannerKind string,
) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM scan_progress WHERE account_email = ? AND scanner_kind = ?",
		accountEmail, scannerKind,
	)
	if err != nil {
		return fmt.Errorf("deleting scan progress for %s/%s: %w",
			accountEmail, scannerKind, err)
	}
	return nil
}

// snapshotRow is the storage shape of a contact snapshot; address sets
// are JSON-encoded.
type snapshotRow struct {
	AccountEmail       string    `db:"account_email"`
	Senders            string    `db:"senders"`
	Recipients         string    `db:"recipients"`
	Merged             string    `db:"merged"`
	MessageSampleCount int       `db:"message_sample_count"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// MergeContactSnapshot unions the given address sets into the stored
// snapshot for the account. The union makes repeated merges of the same
// scan output converge instead of duplicating.
func (s *SQLiteStore) MergeContactSnapshot(ctx context.Context, snap model.ContactSnapshot) error {
	l := s.lockKey("snapshot:" + snap.AccountEmail)
	l.Lock()
	defer l.Unlock()

	existing, err := s.GetContactSnapshot(ctx, snap.AccountEmail)
	if err != nil {
		return err
	}

	senders := snap.Senders
	recipients := snap.Recipients
	sampleCount := snap.MessageSampleCount
	if existing != nil {
		senders = unionSorted(existing.Senders, snap.Senders)
		recipients = unionSorted(existing.Recipients, snap.Recipients)
		if existing.MessageSampleCount > sampleCount {
			sampleCount = existing.MessageSampleCount
		}
	}
	merged := unionSorted(senders, recipients)

	sendersJSON, err := json.Marshal(emptyIfNil(senders))
	if err != nil {
		return fmt.Errorf("marshaling senders: %w", err)
	}
	recipientsJSON, err := json.Marshal(emptyIfNil(recipients))
	if err != nil {
		return fmt.Errorf("marshaling recipients: %w", err)
	}
	mergedJSON, err := json.Marshal(emptyIfNil(merged))
	if err != nil {
		return fmt.Errorf("marshaling merged contacts: %w", err)
	}

	const query = `
		INSERT INTO contact_snapshots (
			account_email, senders, recipients, merged,
			message_sample_count, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_email) DO UPDATE SET
			senders              = excluded.senders,
			recipients           = excluded.recipients,
			merged               = excluded.merged,
			message_sample_count = excluded.message_sample_count,
			updated_at           = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		snap.AccountEmail, string(sendersJSON), string(recipientsJSON),
		string(mergedJSON), sampleCount, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving contact snapshot for %s: %w", snap.AccountEmail, err)
	}
	return nil
}

// GetContactSnapshot returns the stored snapshot for an account, or nil
// when the account has never completed a scan.
func (s *SQLiteStore) GetContactSnapshot(
	ctx context.Context,
	accountEmail string,
) (*model.ContactSnapshot, error) {
	const query = `
		SELECT account_email, senders, recipients, merged,
		       message_sample_count, updated_at
		FROM contact_snapshots
		WHERE account_email = ?`

	var row snapshotRow
	err := s.db.GetContext(ctx, &row, query, accountEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading contact snapshot for %s: %w", accountEmail, err)
	}

	snap := model.ContactSnapshot{
		AccountEmail:       row.AccountEmail,
		MessageSampleCount: row.MessageSampleCount,
		UpdatedAt:          row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.Senders), &snap.Senders); err != nil {
		return nil, fmt.Errorf("unmarshaling senders for %s: %w", accountEmail, err)
	}
	if err := json.Unmarshal([]byte(row.Recipients), &snap.Recipients); err != nil {
		return nil, fmt.Errorf("unmarshaling recipients for %s: %w", accountEmail, err)
	}
	if err := json.Unmarshal([]byte(row.Merged), &snap.Merged); err != nil {
		return nil, fmt.Errorf("unmarshaling merged contacts for %s: %w", accountEmail, err)
	}

	return &snap, nil
}

// UpsertAltCredentialSettings stores an account's alternate-credential
// configuration.
func (s *SQLiteStore) UpsertAltCredentialSettings(
	ctx context.Context,
	settings model.AltCredentialSettings,
) error {
	const query = `
		INSERT INTO alt_credentials (
			account_email, enabled, setup_completed, mailbox,
			max_messages, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_email) DO UPDATE SET
			enabled         = excluded.enabled,
			setup_completed = excluded.setup_completed,
			mailbox         = excluded.mailbox,
			max_messages    = excluded.max_messages,
			updated_at      = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		settings.AccountEmail, settings.Enabled, settings.SetupCompleted,
		settings.Mailbox, settings.MaxMessages, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving alternate credential settings for %s: %w",
			settings.AccountEmail, err)
	}
	return nil
}

// AltCredentialSettings returns an account's alternate-credential
// configuration, or nil when none exists.
func (s *SQLiteStore) AltCredentialSettings(
	ctx context.Context,
	accountEmail string,
) (*model.AltCredentialSettings, error) {
	const query = `
		SELECT account_email, enabled, setup_completed, mailbox,
		       max_messages, updated_at
		FROM alt_credentials
		WHERE account_email = ?`

	var settings model.AltCredentialSettings
	err := s.db.GetContext(ctx, &settings, query, accountEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading alternate credential settings for %s: %w",
			accountEmail, err)
	}
	return &settings, nil
}

// unionSorted merges two address slices into a sorted, deduplicated set.
func unionSorted(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		set[v] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
