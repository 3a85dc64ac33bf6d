package domain

import (
	"encoding/json"
	"time"
)

// SubsystemState is the single process-wide status of the dispatcher.
type SubsystemState int

const (
	StateUninitialized SubsystemState = iota
	StateReady
	StateNoJobs
	StateAwaitingInstance
	StateCompletedJob
	StateShutdown
)

var stateNames = map[SubsystemState]string{
	StateUninitialized:    "uninitialized",
	StateReady:            "ready",
	StateNoJobs:           "no_jobs",
	StateAwaitingInstance: "awaiting_instance",
	StateCompletedJob:     "completed_job",
	StateShutdown:         "shutdown",
}

func (s SubsystemState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s SubsystemState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Accepting reports whether submissions are allowed in this state.
func (s SubsystemState) Accepting() bool {
	return s != StateUninitialized && s != StateShutdown
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobResult is the per-job outcome kept after a job leaves the queue.
type JobResult struct {
	ID           JobID     `json:"job_id"`
	Type         JobType   `json:"job_type"`
	Status       JobStatus `json:"status"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	Error        string    `json:"error,omitempty"`
	ArtifactName string    `json:"artifact_name,omitempty"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
}

// Artifact identifies a generated file written through the storage gateway.
type Artifact struct {
	Name string
	Path string
}
