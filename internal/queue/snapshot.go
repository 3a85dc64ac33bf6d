package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iago/assessment-dispatch/internal/domain"
)

// SnapshotStore persists the pending queue across restarts.
type SnapshotStore interface {
	Save(ctx context.Context, jobs []domain.Job) error
	// Load returns the saved jobs in their original order. A missing snapshot is an empty queue.
	Load(ctx context.Context) ([]domain.Job, error)
}

// EncodeSnapshot serializes jobs as a JSON list of (id, type, payload) tuples.
func EncodeSnapshot(jobs []domain.Job) ([]byte, error) {
	if jobs == nil {
		jobs = []domain.Job{}
	}
	encoded, err := json.Marshal(jobs)
	if err != nil {
		return nil, fmt.Errorf("encode queue snapshot: %w", err)
	}
	return encoded, nil
}

func DecodeSnapshot(data []byte) ([]domain.Job, error) {
	var jobs []domain.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("decode queue snapshot: %w", err)
	}
	if err := checkOrder(jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// NextID returns the first ID that may be allocated after restoring jobs.
func NextID(jobs []domain.Job) domain.JobID {
	next := domain.JobID(0)
	for _, job := range jobs {
		if job.ID >= next {
			next = job.ID + 1
		}
	}
	return next
}

var errSnapshotOrder = errors.New("queue snapshot ids are not strictly increasing")

func checkOrder(jobs []domain.Job) error {
	for i := 1; i < len(jobs); i++ {
		if jobs[i].ID <= jobs[i-1].ID {
			return fmt.Errorf("%w: %d after %d", errSnapshotOrder, jobs[i].ID, jobs[i-1].ID)
		}
	}
	return nil
}
