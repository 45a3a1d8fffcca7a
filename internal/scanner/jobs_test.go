package scanner_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxgraph/inboxgraph/internal/model"
	"github.com/inboxgraph/inboxgraph/internal/scanner"
)

func TestJobsUpdateCreatesPendingRecord(t *testing.T) {
	jobs := scanner.NewJobs()

	job := jobs.Update("job-1", model.JobUpdate{})
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, model.JobStatePending, job.State)
	assert.False(t, job.CreatedAt.IsZero())
}

func TestJobsUpdateMergesPartialFields(t *testing.T) {
	jobs := scanner.NewJobs()

	state := model.JobStateRunning
	processed := 10
	msg := "scanning"
	jobs.Update("job-1", model.JobUpdate{
		State:             &state,
		ProcessedMessages: &processed,
		Message:           &msg,
	})

	// A later update touching one field leaves the rest intact.
	contacts := 4
	job := jobs.Update("job-1", model.JobUpdate{ContactsFound: &contacts})

	assert.Equal(t, model.JobStateRunning, job.State)
	assert.Equal(t, 10, job.ProcessedMessages)
	assert.Equal(t, 4, job.ContactsFound)
	assert.Equal(t, "scanning", job.Message)
}

func TestJobsGetUnknown(t *testing.T) {
	jobs := scanner.NewJobs()

	_, ok := jobs.Get("missing")
	assert.False(t, ok)
}

func TestJobsGetReturnsCopy(t *testing.T) {
	jobs := scanner.NewJobs()
	jobs.Update("job-1", model.JobUpdate{})

	job, ok := jobs.Get("job-1")
	require.True(t, ok)
	job.Message = "mutated locally"

	fresh, _ := jobs.Get("job-1")
	assert.Empty(t, fresh.Message)
}

func TestJobsConcurrentUpdates(t *testing.T) {
	jobs := scanner.NewJobs()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			jobs.Update(fmt.Sprintf("job-%d", n%5), model.JobUpdate{
				ProcessedMessages: &n,
			})
			jobs.Get(fmt.Sprintf("job-%d", n%5))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		_, ok := jobs.Get(fmt.Sprintf("job-%d", i))
		assert.True(t, ok)
	}
}
