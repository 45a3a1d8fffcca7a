// Package credential stores per-account mailbox passwords in the system
// keyring. This is the opaque secret capability the IMAP scanner uses for
// alternate-credential login: secrets are keyed by account email and never
// touch the database.
package credential

import (
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "inboxgraph"

// keyPrefix namespaces mailbox passwords within the service keyring.
const keyPrefix = "mailbox-password:"

// Store reads and writes mailbox passwords keyed by account email.
type Store struct{}

// NewStore creates a keyring-backed secret store.
func NewStore() *Store {
	return &Store{}
}

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/inboxgraph/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("inboxgraph-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves the mailbox password for an account from the system keyring.
func (s *Store) Get(accountEmail string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(keyPrefix + accountEmail)
	if err != nil {
		return "", fmt.Errorf("getting mailbox password for %q: %w", accountEmail, err)
	}

	return string(item.Data), nil
}

// Set stores the mailbox password for an account in the system keyring.
func (s *Store) Set(accountEmail, password string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  keyPrefix + accountEmail,
		Data: []byte(password),
	})
	if err != nil {
		return fmt.Errorf("setting mailbox password for %q: %w", accountEmail, err)
	}

	return nil
}

// Delete removes the mailbox password for an account from the system keyring.
func (s *Store) Delete(accountEmail string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(keyPrefix + accountEmail)
	if err != nil {
		return fmt.Errorf("deleting mailbox password for %q: %w", accountEmail, err)
	}

	return nil
}
