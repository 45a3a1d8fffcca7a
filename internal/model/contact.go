package model

import "time"

// ContactSnapshot is the convergent output of mailbox scanning for one
// account: the deduplicated sender/recipient address sets observed so far.
// Snapshots are merged incrementally (set union) after each completed run,
// so repeated scans converge rather than duplicate.
type ContactSnapshot struct {
	// AccountEmail is the mailbox owner's address.
	AccountEmail string `db:"account_email"`

	// Senders holds the normalized addresses seen in From headers.
	Senders []string

	// Recipients holds the normalized addresses seen in To/Cc/Bcc headers.
	Recipients []string

	// Merged is the union of Senders and Recipients.
	Merged []string

	// MessageSampleCount is the number of messages that contributed to
	// this snapshot.
	MessageSampleCount int `db:"message_sample_count"`

	UpdatedAt time.Time `db:"updated_at"`
}
