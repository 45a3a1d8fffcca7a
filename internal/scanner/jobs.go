package scanner

import (
	"sync"
	"time"

	"github.com/inboxgraph/inboxgraph/internal/model"
)

// Jobs is the process-wide registry of scan jobs, constructed once per
// process and injected into whatever needs it. Records live for the
// process lifetime; there is no TTL at this layer. Each job id is driven
// by exactly one scan loop by calling convention; the registry itself only
// guarantees safe concurrent access.
type Jobs struct {
	mu   sync.RWMutex
	jobs map[string]*model.ScanJob
}

// NewJobs creates an empty job registry.
func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[string]*model.ScanJob)}
}

// Update merges the non-nil fields of u into the job record, creating the
// record with default pending state if it does not exist yet. It returns
// a copy of the resulting record.
func (j *Jobs) Update(jobID string, u model.JobUpdate) model.ScanJob {
	j.mu.Lock()
	defer j.mu.Unlock()

	job, ok := j.jobs[jobID]
	if !ok {
		job = &model.ScanJob{
			ID:        jobID,
			State:     model.JobStatePending,
			CreatedAt: time.Now(),
		}
		j.jobs[jobID] = job
	}

	if u.State != nil {
		job.State = *u.State
	}
	if u.StartedAt != nil {
		job.StartedAt = u.StartedAt
	}
	if u.ProcessedMessages != nil {
		job.ProcessedMessages = *u.ProcessedMessages
	}
	if u.PercentComplete != nil {
		job.PercentComplete = *u.PercentComplete
	}
	if u.ContactsFound != nil {
		job.ContactsFound = *u.ContactsFound
	}
	if u.Message != nil {
		job.Message = *u.Message
	}
	if u.Error != nil {
		job.Error = *u.Error
	}

	return *job
}

// Get returns a copy of the job record, or false when no record exists.
func (j *Jobs) Get(jobID string) (model.ScanJob, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	job, ok := j.jobs[jobID]
	if !ok {
		return model.ScanJob{}, false
	}
	return *job, true
}
