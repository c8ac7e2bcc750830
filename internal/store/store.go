// Package store defines persistence for computation jobs and confidential
// records. Implementations include PostgreSQL (source of truth), Redis
// (read-through record cache), and in-memory (for testing).
package store

import (
	"context"

	"github.com/sentinel/mpc-engine/internal/model"
)

// Store is the persistence interface. Records are only written as part of a
// job's terminal transition.
type Store interface {
	// --- Jobs ---

	// CreateJob persists a queued job. A job with the same key, pending or
	// terminal, fails with model.ErrDuplicateComputation.
	CreateJob(ctx context.Context, job *model.Job) error

	// GetJob retrieves a job by key.
	GetJob(ctx context.Context, key model.JobKey) (*model.Job, error)

	// ListJobs returns jobs in state, or all jobs when state is empty,
	// oldest first.
	ListJobs(ctx context.Context, state model.JobState) ([]model.Job, error)

	// MarkExecuting moves a queued job to executing. It is a no-op for a
	// job that is already executing.
	MarkExecuting(ctx context.Context, key model.JobKey) error

	// FinishJob atomically retires a non-terminal job and applies its record
	// write, if any. It returns the written record. A terminal job fails with
	// model.ErrDuplicateCallback and nothing is written.
	FinishJob(ctx context.Context, key model.JobKey, fin model.Finish) (*model.Record, error)

	// --- Confidential records ---

	// GetRecord retrieves a ciphertext record.
	GetRecord(ctx context.Context, ref model.RecordRef) (*model.Record, error)
}
