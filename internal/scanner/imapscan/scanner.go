// Package imapscan implements the mailbox scanner contract over a
// stateful IMAP session. It reads envelope metadata only — never message
// bodies — and resumes from a 1-based message sequence number.
package imapscan

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"

	"github.com/inboxgraph/inboxgraph/internal/auth"
	"github.com/inboxgraph/inboxgraph/internal/extract"
	"github.com/inboxgraph/inboxgraph/internal/model"
	"github.com/inboxgraph/inboxgraph/internal/scanner"
)

// allMailCandidates is the prioritized mailbox list tried at session
// start: the Gmail all-mail folder under its localized and alternate
// vendor spellings, then the inbox, then a generic archive folder. The
// first candidate that selects successfully wins; exhausting the list is
// a hard scan failure.
var allMailCandidates = []string{
	"[Gmail]/All Mail",
	"[Google Mail]/All Mail",
	"[Gmail]/Alle Nachrichten",
	"[Gmail]/Tous les messages",
	"[Gmail]/Todos",
	"INBOX",
	"Archive",
}

// windowRetryDelay is the pause before a failed envelope window is
// reported back. The engine retries a held offset immediately under a
// zero inter-batch delay; without this pause a persistently failing
// window would reconnect and re-login in a hot loop.
const windowRetryDelay = 2 * time.Second

// SettingsProvider loads an account's alternate-credential configuration.
// A nil result means the account has no alternate credential set up.
type SettingsProvider interface {
	AltCredentialSettings(ctx context.Context, accountEmail string) (*model.AltCredentialSettings, error)
}

// SecretStore resolves the alternate mailbox password for an account.
type SecretStore interface {
	Get(accountEmail string) (string, error)
}

// Scanner walks a mailbox over IMAP in contiguous sequence-number windows.
type Scanner struct {
	host     string
	port     string
	settings SettingsProvider
	secrets  SecretStore
	log      *slog.Logger
}

// New creates an IMAP scanner for the given server endpoint.
func New(host, port string, settings SettingsProvider, secrets SecretStore, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{
		host:     host,
		port:     port,
		settings: settings,
		secrets:  secrets,
		log:      log,
	}
}

// Kind returns the backend identifier.
func (s *Scanner) Kind() scanner.Kind {
	return scanner.KindIMAP
}

// ScanBatch opens a session, selects the first working mailbox, and reads
// the envelope window [offset, offset+batchSize-1] clamped to the mailbox
// size. A fetch error inside the window is absorbed: it is logged and
// reported as an empty batch with the offset unchanged, so the checkpoint
// stays at the last good position and a later invocation retries the
// window. Connection, authentication, and mailbox-selection errors are
// fatal and fail the scan.
func (s *Scanner) ScanBatch(
	ctx context.Context,
	client *auth.MailClient,
	req scanner.BatchRequest,
) (*scanner.BatchResult, error) {
	c, authMethod, err := s.connect(ctx, client)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Logout().Wait() }()

	mailbox, total, err := s.selectMailbox(ctx, c, client.AccountEmail)
	if err != nil {
		return nil, err
	}

	start := req.Offset.Seq
	if start < 1 {
		start = 1
	}
	if total == 0 || start > total {
		return &scanner.BatchResult{HasMore: false}, nil
	}

	batchSize := int64(req.Config.BatchSize)
	if batchSize < 1 {
		batchSize = 1
	}
	end := start + batchSize - 1
	if end > total {
		end = total
	}

	senders, recipients, fetched, err := s.fetchEnvelopeWindow(c, start, end)
	if err != nil {
		// Recoverable per-window fault: zero messages found, offset held.
		s.log.Warn("envelope window fetch failed, treating as empty batch",
			"account", client.AccountEmail,
			"mailbox", mailbox,
			"auth_method", authMethod,
			"range_start", start,
			"range_end", end,
			"err", err,
		)
		return s.holdWindow(ctx, req.Offset), nil
	}

	res := &scanner.BatchResult{
		Senders:    senders,
		Recipients: recipients,
		Processed:  fetched,
		HasMore:    end < total,
	}
	if res.HasMore {
		res.Next = scanner.Offset{Seq: end + 1}
	}
	return res, nil
}

// holdWindow reports a failed window as an empty batch whose next offset
// is the request offset, after a retry pause. The checkpoint stays at the
// last good position and a later batch retries the same window.
func (s *Scanner) holdWindow(ctx context.Context, offset scanner.Offset) *scanner.BatchResult {
	select {
	case <-ctx.Done():
	case <-time.After(windowRetryDelay):
	}
	return &scanner.BatchResult{
		HasMore: true,
		Next:    offset,
	}
}

// connect dials the server and authenticates. When the account has a
// completed alternate-credential setup, the stored mailbox password is
// tried first; any failure there falls back to an OAuth bearer token
// minted from the primary credential. The fallback leaves no partial
// session state behind, so it is safe to try on every batch.
func (s *Scanner) connect(
	ctx context.Context,
	client *auth.MailClient,
) (*imapclient.Client, string, error) {
	addr := s.host + ":" + s.port

	c, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return nil, "", fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if password, ok := s.alternatePassword(ctx, client.AccountEmail); ok {
		if err := c.Login(client.AccountEmail, password).Wait(); err == nil {
			return c, "app-password", nil
		}
		s.log.Warn("alternate credential login failed, falling back to bearer token",
			"account", client.AccountEmail,
		)
	}

	token, err := client.Token(ctx)
	if err != nil {
		_ = c.Logout().Wait()
		return nil, "", err
	}

	port, _ := strconv.Atoi(s.port)
	saslClient := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: client.AccountEmail,
		Token:    token,
		Host:     s.host,
		Port:     port,
	})

	if err := c.Authenticate(saslClient); err != nil {
		_ = c.Logout().Wait()
		return nil, "", &scanner.AuthError{
			Kind: scanner.KindIMAP,
			Message: fmt.Sprintf(
				"bearer authentication failed for %s: %v",
				client.AccountEmail, err,
			),
		}
	}

	return c, "oauth-bearer", nil
}

// alternatePassword returns the alternate mailbox password when the
// account opted in and completed setup. Lookup failures are logged and
// treated as "no alternate credential".
func (s *Scanner) alternatePassword(ctx context.Context, accountEmail string) (string, bool) {
	if s.settings == nil || s.secrets == nil {
		return "", false
	}

	settings, err := s.settings.AltCredentialSettings(ctx, accountEmail)
	if err != nil {
		s.log.Warn("loading alternate credential settings failed",
			"account", accountEmail, "err", err)
		return "", false
	}
	if settings == nil || !settings.Enabled || !settings.SetupCompleted {
		return "", false
	}

	password, err := s.secrets.Get(accountEmail)
	if err != nil {
		s.log.Warn("reading mailbox password from keyring failed",
			"account", accountEmail, "err", err)
		return "", false
	}
	return password, true
}

// selectMailbox opens the first working mailbox from the candidate list,
// with an account-configured mailbox tried first when present. It returns
// the selected mailbox name and its message count.
func (s *Scanner) selectMailbox(
	ctx context.Context,
	c *imapclient.Client,
	accountEmail string,
) (string, int64, error) {
	candidates := allMailCandidates
	if s.settings != nil {
		if settings, err := s.settings.AltCredentialSettings(ctx, accountEmail); err == nil &&
			settings != nil && settings.Mailbox != "" {
			candidates = append([]string{settings.Mailbox}, candidates...)
		}
	}

	var lastErr error
	for _, name := range candidates {
		data, err := c.Select(name, nil).Wait()
		if err != nil {
			lastErr = err
			continue
		}
		return name, int64(data.NumMessages), nil
	}

	return "", 0, fmt.Errorf("no scannable mailbox found (tried %d candidates): %w",
		len(candidates), lastErr)
}

// fetchEnvelopeWindow reads envelopes for the sequence range [start, end]
// and extracts sender/recipient addresses. Messages whose envelope fails
// to collect are skipped; they reduce the window's yield without failing it.
func (s *Scanner) fetchEnvelopeWindow(
	c *imapclient.Client,
	start, end int64,
) (senders, recipients []string, fetched int, err error) {
	var seqSet imap.SeqSet
	seqSet.AddRange(uint32(start), uint32(end))

	fetchCmd := c.Fetch(seqSet, &imap.FetchOptions{Envelope: true})
	defer fetchCmd.Close()

	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, collectErr := msg.Collect()
		if collectErr != nil {
			continue
		}
		fetched++

		if buf.Envelope == nil {
			continue
		}
		senders = append(senders, extract.FromAddresses(buf.Envelope.From)...)
		recipients = append(recipients, extract.FromAddresses(buf.Envelope.To)...)
		recipients = append(recipients, extract.FromAddresses(buf.Envelope.Cc)...)
		recipients = append(recipients, extract.FromAddresses(buf.Envelope.Bcc)...)
	}

	if closeErr := fetchCmd.Close(); closeErr != nil {
		return nil, nil, 0, fmt.Errorf("fetching envelopes %d:%d: %w", start, end, closeErr)
	}

	return senders, recipients, fetched, nil
}
