package model

import "time"

// JobState identifies the lifecycle state of a scan job.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateCancelled JobState = "cancelled"
	JobStateFailed    JobState = "failed"
)

// ScanJob tracks one invocation attempt of the scan loop. Jobs live in
// process memory for the lifetime of the process and are read by the
// status-polling endpoint.
type ScanJob struct {
	// ID is the unique identifier for this job.
	ID string

	// State is the current lifecycle state. Once a job is cancelled or
	// failed, the scan loop stops issuing further batches.
	State JobState

	// CreatedAt is when the job record was first created.
	CreatedAt time.Time

	// StartedAt is when the scan loop began executing, if it has.
	StartedAt *time.Time

	// ProcessedMessages is the cumulative number of messages scanned.
	ProcessedMessages int

	// PercentComplete is the estimated completion percentage. It stays 0
	// when no message cap is configured; a guess would be false precision.
	PercentComplete int

	// ContactsFound is the current size of the merged contact set.
	ContactsFound int

	// Message is a human-readable progress description.
	Message string

	// Error holds the failure reason when State is failed.
	Error string
}

// JobUpdate is a partial update applied to a ScanJob. Nil fields are
// left unchanged; a missing job is created with default pending state.
type JobUpdate struct {
	State             *JobState
	StartedAt         *time.Time
	ProcessedMessages *int
	PercentComplete   *int
	ContactsFound     *int
	Message           *string
	Error             *string
}
