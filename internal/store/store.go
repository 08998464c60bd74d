// Package store persists the status records of cleaning jobs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/saldang/grezzi/internal/model"
)

// ErrNotFound is returned when a job id is unknown.
var ErrNotFound = errors.New("store: job not found")

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	State        model.JobState `json:"state,omitempty"`
	CreatedAfter time.Time      `json:"created_after,omitempty"`
	Limit        int            `json:"limit,omitempty"`
	Offset       int            `json:"offset,omitempty"`
}

// Store defines the persistence interface for job status records.
type Store interface {
	CreateJob(ctx context.Context, file, tableID string) (*model.Job, error)
	UpdateJobState(ctx context.Context, id string, state model.JobState) error
	// CompleteJob records the counts and marks the job forwarded.
	CompleteJob(ctx context.Context, id string, res model.JobResult) error
	// FailJob records the counts reached and the error text.
	FailJob(ctx context.Context, id string, res model.JobResult, msg string) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100
