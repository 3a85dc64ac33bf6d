package queue

import (
	"github.com/iago/assessment-dispatch/internal/domain"
)

// FIFO is an ordered job queue. It does no locking of its own; the owner
// guards it together with the rest of its shared state.
type FIFO struct {
	jobs []domain.Job
}

func NewFIFO(jobs ...domain.Job) *FIFO {
	q := &FIFO{jobs: make([]domain.Job, 0, len(jobs))}
	q.jobs = append(q.jobs, jobs...)
	return q
}

func (q *FIFO) Push(job domain.Job) {
	q.jobs = append(q.jobs, job)
}

// Pop removes and returns the head of the queue.
func (q *FIFO) Pop() (domain.Job, bool) {
	if len(q.jobs) == 0 {
		return domain.Job{}, false
	}
	head := q.jobs[0]
	q.jobs[0] = domain.Job{}
	q.jobs = q.jobs[1:]
	return head, true
}

func (q *FIFO) Len() int {
	return len(q.jobs)
}

// Snapshot returns a copy of the pending jobs in service order.
func (q *FIFO) Snapshot() []domain.Job {
	out := make([]domain.Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// Find returns the pending job with the given ID.
func (q *FIFO) Find(id domain.JobID) (domain.Job, bool) {
	for _, job := range q.jobs {
		if job.ID == id {
			return job, true
		}
	}
	return domain.Job{}, false
}

func (q *FIFO) Clear() int {
	n := len(q.jobs)
	q.jobs = q.jobs[:0]
	return n
}
