package model

import "time"

// AltCredentialSettings describes an account's optional alternate-credential
// mailbox access (an app password used for direct IMAP login instead of an
// OAuth bearer token). The password itself never lands in the database; it
// lives in the system keyring, keyed by account email.
type AltCredentialSettings struct {
	AccountEmail string `db:"account_email"`

	// Enabled is the user's opt-in flag.
	Enabled bool `db:"enabled"`

	// SetupCompleted reports whether the password has been stored and
	// verified. The IMAP backend only attempts the alternate credential
	// when both Enabled and SetupCompleted are set.
	SetupCompleted bool `db:"setup_completed"`

	// Mailbox optionally overrides the mailbox candidate list with a
	// user-chosen folder.
	Mailbox string `db:"mailbox"`

	// MaxMessages optionally caps scans for this account.
	MaxMessages int `db:"max_messages"`

	UpdatedAt time.Time `db:"updated_at"`
}
