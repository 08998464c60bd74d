package model

import "time"

// JobState is a pipeline state of one uploaded file.
type JobState string

const (
	JobStateQueued       JobState = "queued"
	JobStateLoaded       JobState = "loaded"
	JobStateNormalized   JobState = "normalized"
	JobStateSplit        JobState = "split"
	JobStatePersistedRaw JobState = "persisted_raw"
	JobStatePersistedMid JobState = "persisted_clean_intermediate"
	JobStateReconciled   JobState = "reconciled"
	JobStateFinalized    JobState = "finalized"
	JobStateForwarded    JobState = "forwarded"
	JobStateFailed       JobState = "failed"
)

// Terminal reports whether no further transition can follow s.
func (s JobState) Terminal() bool {
	return s == JobStateForwarded || s == JobStateFailed
}

// Job is the status record of one file run, keyed by ID.
type Job struct {
	ID          string    `json:"id" yaml:"id"`
	File        string    `json:"file" yaml:"file"`
	TableID     string    `json:"table_id,omitempty" yaml:"table_id,omitempty"`
	State       JobState  `json:"state" yaml:"state"`
	RawRows     int       `json:"raw_rows" yaml:"raw_rows"`
	CleanRows   int       `json:"clean_rows" yaml:"clean_rows"`
	RemovedRows int       `json:"removed_rows" yaml:"removed_rows"`
	FinalPath   string    `json:"final_path,omitempty" yaml:"final_path,omitempty"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// JobResult carries the counts and paths recorded when a job ends.
type JobResult struct {
	RawRows     int    `json:"raw_rows"`
	CleanRows   int    `json:"clean_rows"`
	RemovedRows int    `json:"removed_rows"`
	FinalPath   string `json:"final_path,omitempty"`
}
