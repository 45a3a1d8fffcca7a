// Package sync keeps contact snapshots fresh by re-running scans for
// registered accounts on an interval. Each account gets its own polling
// goroutine; manual refreshes are folded into the same loop.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/inboxgraph/inboxgraph/internal/auth"
	"github.com/inboxgraph/inboxgraph/internal/model"
	"github.com/inboxgraph/inboxgraph/internal/scanner"
)

// State represents the current state of an account's rescan loop.
type State int

const (
	Idle State = iota
	Running
	Error
)

// Status holds the rescan state for a single registered account.
type Status struct {
	AccountEmail string
	ScannerKind  scanner.Kind
	State        State
	LastScan     time.Time
	Error        error
}

// SnapshotStore is the slice of the persistence layer the poller needs:
// folding finished scan results into the account's contact snapshot.
type SnapshotStore interface {
	MergeContactSnapshot(ctx context.Context, snapshot model.ContactSnapshot) error
}

// scanTimeout is the maximum time allowed for a single rescan.
const scanTimeout = 10 * time.Minute

// accountEntry holds a registered account and its scan setup.
type accountEntry struct {
	client   *auth.MailClient
	backend  scanner.Scanner
	cfg      scanner.Config
	interval time.Duration
}

// Poller orchestrates background rescans of registered accounts.
type Poller struct {
	engine    *scanner.Engine
	snapshots SnapshotStore
	log       *slog.Logger

	entries   []accountEntry
	statuses  map[string]*Status
	triggerCh chan string
	stopCh    chan struct{}
	mu        gosync.Mutex
	running   bool
}

// New creates a poller that drives scans through the given engine and
// merges results into the snapshot store.
func New(engine *scanner.Engine, snapshots SnapshotStore, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		engine:    engine,
		snapshots: snapshots,
		log:       log,
		statuses:  make(map[string]*Status),
		triggerCh: make(chan string, 16),
		stopCh:    make(chan struct{}),
	}
}

// RegisterAccount adds an account to the rescan rotation. A non-positive
// interval falls back to hourly.
func (p *Poller) RegisterAccount(
	client *auth.MailClient,
	backend scanner.Scanner,
	cfg scanner.Config,
	interval time.Duration,
) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = append(p.entries, accountEntry{
		client:   client,
		backend:  backend,
		cfg:      cfg,
		interval: interval,
	})
	p.statuses[statusKey(client.AccountEmail, backend.Kind())] = &Status{
		AccountEmail: client.AccountEmail,
		ScannerKind:  backend.Kind(),
		State:        Idle,
	}
}

// Start launches one polling goroutine per registered account. Calling
// Start twice is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	entries := make([]accountEntry, len(p.entries))
	copy(entries, p.entries)
	p.mu.Unlock()

	for _, entry := range entries {
		go p.pollAccount(entry)
	}
}

// Stop halts all polling goroutines.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	close(p.stopCh)
	p.running = false
}

// RefreshAccount triggers an immediate rescan of one account without
// waiting for its ticker. A full trigger channel drops the request rather
// than blocking the caller.
func (p *Poller) RefreshAccount(accountEmail string) {
	select {
	case p.triggerCh <- accountEmail:
	default:
	}
}

// Statuses returns the current rescan status of all registered accounts.
func (p *Poller) Statuses() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]Status, 0, len(p.statuses))
	for _, s := range p.statuses {
		statuses = append(statuses, *s)
	}
	return statuses
}

// pollAccount runs the rescan loop for a single account.
func (p *Poller) pollAccount(entry accountEntry) {
	interval := entry.interval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.scanOnce(entry)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.scanOnce(entry)
		case account := <-p.triggerCh:
			if account == entry.client.AccountEmail {
				p.scanOnce(entry)
			}
		}
	}
}

// scanOnce performs one rescan and merges the result into the account's
// contact snapshot.
func (p *Poller) scanOnce(entry accountEntry) {
	account := entry.client.AccountEmail
	kind := entry.backend.Kind()
	p.setStatus(account, kind, Running, nil)

	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	jobID := "rescan-" + uuid.NewString()
	result, err := p.engine.ScanAsync(ctx, entry.client, jobID, entry.backend, entry.cfg)
	if err != nil {
		p.setStatus(account, kind, Error, err)
		if scanner.IsAuthError(err) {
			p.log.Warn("rescan authentication expired, reconnect required",
				"account", account, "scanner_kind", string(kind))
		}
		return
	}

	err = p.snapshots.MergeContactSnapshot(ctx, model.ContactSnapshot{
		AccountEmail:       account,
		Senders:            result.Senders,
		Recipients:         result.Recipients,
		Merged:             result.Merged,
		MessageSampleCount: result.Scanned,
	})
	if err != nil {
		p.setStatus(account, kind, Error, fmt.Errorf("merging contact snapshot: %w", err))
		return
	}

	p.setStatus(account, kind, Idle, nil)
	p.log.Info("rescan complete",
		"account", account,
		"scanner_kind", string(kind),
		"scanned", result.Scanned,
		"contacts", result.Contacts,
	)
}

// setStatus updates the rescan status for an account.
func (p *Poller) setStatus(account string, kind scanner.Kind, state State, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[statusKey(account, kind)]
	if !ok {
		return
	}

	status.State = state
	status.Error = err
	if state == Idle && err == nil {
		status.LastScan = time.Now()
	}
}

func statusKey(account string, kind scanner.Kind) string {
	return account + ":" + string(kind)
}
