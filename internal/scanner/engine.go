package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/inboxgraph/inboxgraph/internal/auth"
	"github.com/inboxgraph/inboxgraph/internal/model"
)

// Engine drives any Scanner backend to exhaustion. It owns the shared
// orchestration concerns: resume-or-short-circuit from the progress
// store, cooperative cancellation via the job registry, per-batch
// checkpointing, and status reporting. Batches for one job are strictly
// sequential; each offset is derived from the previous batch's result.
type Engine struct {
	jobs     *Jobs
	progress ProgressStore
	log      *slog.Logger
}

// NewEngine creates an engine with its injected collaborators.
func NewEngine(jobs *Jobs, progress ProgressStore, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{jobs: jobs, progress: progress, log: log}
}

// Jobs returns the job registry, the polling surface status endpoints
// read directly.
func (e *Engine) Jobs() *Jobs {
	return e.jobs
}

// ScanAsync runs a full scan for jobID using the given backend and
// configuration. It returns the result summary, or an error when a batch
// call or setup fails; in that case the job is marked failed with the
// error message before the error is returned. Callers retry by invoking
// ScanAsync again, which resumes from the last checkpoint when
// persistence is enabled.
func (e *Engine) ScanAsync(
	ctx context.Context,
	client *auth.MailClient,
	jobID string,
	backend Scanner,
	cfg Config,
) (*ScanResult, error) {
	result, err := e.scan(ctx, client, jobID, backend, cfg)
	if err != nil {
		msg := fmt.Sprintf("scan failed: %v", err)
		e.jobs.Update(jobID, model.JobUpdate{
			State:   jobStatePtr(model.JobStateFailed),
			Message: &msg,
			Error:   strPtr(err.Error()),
		})
		e.log.Error("scan failed",
			"job_id", jobID,
			"account", client.AccountEmail,
			"scanner_kind", string(backend.Kind()),
			"err", err,
		)
		return nil, err
	}
	return result, nil
}

func (e *Engine) scan(
	ctx context.Context,
	client *auth.MailClient,
	jobID string,
	backend Scanner,
	cfg Config,
) (*ScanResult, error) {
	account := client.AccountEmail
	kind := string(backend.Kind())

	var offset Offset
	var processed, chunks int

	if cfg.UsePersistence {
		prev, err := e.progress.LoadProgress(ctx, account, kind)
		if err != nil {
			return nil, fmt.Errorf("loading scan progress: %w", err)
		}
		if prev != nil {
			if prev.IsComplete {
				// Idempotence short-circuit: a completed checkpoint makes
				// repeated scan-start requests cheap no-ops. No backend
				// call is made.
				msg := fmt.Sprintf(
					"scan already completed: %d messages, %d contacts",
					prev.TotalMessages, prev.ContactsFound,
				)
				e.jobs.Update(jobID, model.JobUpdate{
					State:             jobStatePtr(model.JobStateRunning),
					ProcessedMessages: &prev.TotalMessages,
					PercentComplete:   intPtr(100),
					ContactsFound:     &prev.ContactsFound,
					Message:           &msg,
				})
				return &ScanResult{
					Scanned:     prev.TotalMessages,
					Contacts:    prev.ContactsFound,
					Message:     msg,
					LastScanned: Offset{Seq: prev.LastSeq, Token: prev.LastToken},
				}, nil
			}

			offset = Offset{Seq: prev.LastSeq, Token: prev.LastToken}
			processed = prev.TotalMessages
			chunks = prev.ChunksCompleted
			e.log.Info("resuming scan from checkpoint",
				"job_id", jobID,
				"account", account,
				"scanner_kind", kind,
				"last_seq", prev.LastSeq,
				"chunks_completed", prev.ChunksCompleted,
			)
		}
	}

	startedAt := time.Now()
	startMsg := "scan started"
	e.jobs.Update(jobID, model.JobUpdate{
		State:     jobStatePtr(model.JobStateRunning),
		StartedAt: &startedAt,
		Message:   &startMsg,
	})

	senders := make(map[string]struct{})
	recipients := make(map[string]struct{})
	lastScanned := offset

	for {
		if job, ok := e.jobs.Get(jobID); ok && job.State == model.JobStateCancelled {
			// Partial success is preserved, not discarded.
			result := e.buildResult(senders, recipients, processed, lastScanned,
				fmt.Sprintf("scan cancelled after %d messages", processed))
			e.jobs.Update(jobID, model.JobUpdate{
				ProcessedMessages: &processed,
				ContactsFound:     intPtr(result.Contacts),
				Message:           &result.Message,
			})
			e.log.Info("scan cancelled",
				"job_id", jobID, "account", account, "scanner_kind", kind,
				"scanned", processed,
			)
			return result, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		batch, err := backend.ScanBatch(ctx, client, BatchRequest{
			Config: cfg,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("scanning batch at offset %+v: %w", offset, err)
		}

		for _, addr := range batch.Senders {
			senders[addr] = struct{}{}
		}
		for _, addr := range batch.Recipients {
			recipients[addr] = struct{}{}
		}
		processed += batch.Processed
		if batch.Processed > 0 || (batch.HasMore && batch.Next != offset) {
			// A failed window reported as an empty batch holding its
			// offset is a retry, not a completed chunk.
			chunks++
		}

		hasMore := batch.HasMore
		if cfg.MaxMessages > 0 && processed >= cfg.MaxMessages {
			hasMore = false
		}

		if batch.HasMore {
			lastScanned = batch.Next
		} else if batch.Processed > 0 {
			lastScanned = finalPosition(offset, batch.Processed)
		}

		contacts := unionSize(senders, recipients)

		if cfg.UsePersistence {
			// Complete only when the backend itself reported no further
			// data. A scan ended by the message cap leaves the checkpoint
			// open so an uncapped invocation resumes the rest of the
			// mailbox instead of short-circuiting.
			now := time.Now()
			err := e.progress.SaveProgress(ctx, model.ScanProgress{
				AccountEmail:    account,
				ScannerKind:     kind,
				LastSeq:         lastScanned.Seq,
				LastToken:       lastScanned.Token,
				TotalMessages:   processed,
				ContactsFound:   contacts,
				ChunksCompleted: chunks,
				IsComplete:      !batch.HasMore,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
			if err != nil {
				return nil, fmt.Errorf("saving scan progress: %w", err)
			}
		}

		msg := fmt.Sprintf("scanned %d messages, %d contacts found", processed, contacts)
		e.jobs.Update(jobID, model.JobUpdate{
			ProcessedMessages: &processed,
			PercentComplete:   intPtr(percentComplete(processed, cfg.MaxMessages)),
			ContactsFound:     &contacts,
			Message:           &msg,
		})

		if !hasMore {
			break
		}

		offset = batch.Next

		if cfg.DelayBetweenBatches > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.DelayBetweenBatches):
			}
		}
	}

	result := e.buildResult(senders, recipients, processed, lastScanned,
		fmt.Sprintf("scan complete: %d messages, %d contacts", processed,
			unionSize(senders, recipients)))

	e.jobs.Update(jobID, model.JobUpdate{
		PercentComplete: intPtr(100),
		Message:         &result.Message,
	})
	e.log.Info("scan complete",
		"job_id", jobID, "account", account, "scanner_kind", kind,
		"scanned", processed, "contacts", result.Contacts,
		"duration", time.Since(startedAt),
	)
	return result, nil
}

// buildResult assembles the result contract: sorted sender/recipient sets
// and their union.
func (e *Engine) buildResult(
	senders, recipients map[string]struct{},
	scanned int,
	lastScanned Offset,
	message string,
) *ScanResult {
	merged := make(map[string]struct{}, len(senders)+len(recipients))
	for addr := range senders {
		merged[addr] = struct{}{}
	}
	for addr := range recipients {
		merged[addr] = struct{}{}
	}

	return &ScanResult{
		Senders:     sortedKeys(senders),
		Recipients:  sortedKeys(recipients),
		Merged:      sortedKeys(merged),
		Scanned:     scanned,
		Contacts:    len(merged),
		Message:     message,
		LastScanned: lastScanned,
	}
}

// finalPosition computes the position of the last scanned message when a
// batch reports no more data and therefore carries no next offset. Only
// sequence-number offsets can be advanced arithmetically; token offsets
// keep the last known token.
func finalPosition(offset Offset, batchProcessed int) Offset {
	if offset.Token != "" {
		return offset
	}
	start := offset.Seq
	if start < 1 {
		start = 1
	}
	return Offset{Seq: start + int64(batchProcessed) - 1}
}

// percentComplete reports progress against the configured cap. Without a
// cap it stays 0 rather than guessing.
func percentComplete(processed, maxMessages int) int {
	if maxMessages <= 0 {
		return 0
	}
	pct := processed * 100 / maxMessages
	if pct > 100 {
		pct = 100
	}
	return pct
}

func unionSize(a, b map[string]struct{}) int {
	n := len(a)
	for k := range b {
		if _, ok := a[k]; !ok {
			n++
		}
	}
	return n
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func jobStatePtr(s model.JobState) *model.JobState { return &s }
func strPtr(s string) *string                      { return &s }
