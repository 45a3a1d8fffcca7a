// Package gmailapi implements the mailbox scanner contract against the
// quota-limited, paginated Gmail REST API. The resume position is the
// API's opaque page token, forwarded untouched by the orchestration loop.
package gmailapi

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/inboxgraph/inboxgraph/internal/auth"
	"github.com/inboxgraph/inboxgraph/internal/extract"
	"github.com/inboxgraph/inboxgraph/internal/scanner"
)

// defaultStagger spaces out the start of per-message metadata fetches
// within a batch to smooth the burst request rate.
const defaultStagger = 25 * time.Millisecond

// Scanner pages through the mailbox one message-list call at a time and
// fetches each message's address headers individually.
type Scanner struct {
	client  *Client
	stagger time.Duration
	log     *slog.Logger
}

// New creates a Gmail API scanner.
func New(client *Client, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{
		client:  client,
		stagger: defaultStagger,
		log:     log,
	}
}

// Kind returns the backend identifier.
func (s *Scanner) Kind() scanner.Kind {
	return scanner.KindGmailAPI
}

// ScanBatch lists one page of message ids, then fetches each message's
// metadata concurrently with staggered starts. An individual metadata
// fetch failure is logged and skipped — it reduces the batch's yield but
// does not fail the batch. A list failure fails the scan.
func (s *Scanner) ScanBatch(
	ctx context.Context,
	client *auth.MailClient,
	req scanner.BatchRequest,
) (*scanner.BatchResult, error) {
	token, err := client.Token(ctx)
	if err != nil {
		return nil, err
	}

	pageSize := req.Config.BatchSize
	if pageSize < 1 {
		pageSize = 50
	}

	list, err := s.client.ListMessages(ctx, token, req.Offset.Token, pageSize)
	if err != nil {
		return nil, err
	}

	var (
		mu         sync.Mutex
		senders    []string
		recipients []string
		processed  int
	)

	var wg sync.WaitGroup
	for i, ref := range list.Messages {
		wg.Add(1)
		go func(delay time.Duration, messageID string) {
			defer wg.Done()

			if delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}

			meta, err := s.client.GetMessageMetadata(ctx, token, messageID)
			if err != nil {
				s.log.Warn("message metadata fetch failed, skipping",
					"account", client.AccountEmail,
					"message_id", messageID,
					"err", err,
				)
				return
			}

			from := extract.FromHeader(meta.HeaderValue("From"))
			var to []string
			to = append(to, extract.FromHeader(meta.HeaderValue("To"))...)
			to = append(to, extract.FromHeader(meta.HeaderValue("Cc"))...)
			to = append(to, extract.FromHeader(meta.HeaderValue("Bcc"))...)

			mu.Lock()
			senders = append(senders, from...)
			recipients = append(recipients, to...)
			processed++
			mu.Unlock()
		}(time.Duration(i)*s.stagger, ref.ID)
	}
	wg.Wait()

	res := &scanner.BatchResult{
		Senders:    senders,
		Recipients: recipients,
		Processed:  processed,
		HasMore:    list.NextPageToken != "",
	}
	if res.HasMore {
		res.Next = scanner.Offset{Token: list.NextPageToken}
	}
	return res, nil
}
