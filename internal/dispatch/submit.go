package dispatch

import (
	"context"

	"github.com/iago/assessment-dispatch/internal/domain"
	"github.com/iago/assessment-dispatch/internal/policy"
)

func (d *Dispatcher) SubmitVivaGenerate(ctx context.Context, payload *domain.VivaGeneratePayload) (domain.JobID, error) {
	return d.submit(ctx, payload)
}

func (d *Dispatcher) SubmitVivaRegenerate(ctx context.Context, payload *domain.VivaRegeneratePayload) (domain.JobID, error) {
	return d.submit(ctx, payload)
}

func (d *Dispatcher) SubmitRubricGenerate(ctx context.Context, payload *domain.RubricGeneratePayload) (domain.JobID, error) {
	return d.submit(ctx, payload)
}

func (d *Dispatcher) SubmitRubricConvert(ctx context.Context, payload *domain.RubricConvertPayload) (domain.JobID, error) {
	return d.submit(ctx, payload)
}

// submit allocates the next job ID and queues the job. In synchronous mode the
// job runs to completion before submit returns and its failure is returned.
func (d *Dispatcher) submit(ctx context.Context, payload domain.Payload) (domain.JobID, error) {
	d.mu.Lock()
	switch {
	case d.state == domain.StateUninitialized:
		d.mu.Unlock()
		return NoJob, domain.NewJobError(domain.KindNotInitialized, "submit", nil)
	case d.state == domain.StateShutdown || d.closing:
		d.mu.Unlock()
		return NoJob, domain.NewJobError(domain.KindShuttingDown, "submit", nil)
	}
	if payload == nil {
		d.mu.Unlock()
		return NoJob, domain.InvalidInput("payload is required")
	}
	if err := payload.Validate(); err != nil {
		d.mu.Unlock()
		return NoJob, domain.InvalidInput("%s: %v", payload.JobType(), err)
	}

	job := domain.Job{ID: d.nextID, Payload: payload}
	d.nextID++

	if d.synchronous {
		d.results.Set(job.ID, domain.JobResult{ID: job.ID, Type: job.Type(), Status: domain.JobStatusRunning})
		d.state = domain.StateAwaitingInstance
		d.mu.Unlock()
		d.logSubmitted(job)
		return job.ID, d.process(context.WithoutCancel(ctx), job)
	}

	d.queue.Push(job)
	depth := d.queue.Len()
	d.mu.Unlock()

	d.logSubmitted(job)
	d.log.Debugw("job queued", "job_id", job.ID, "queue_depth", depth)
	d.signal()
	return job.ID, nil
}

func (d *Dispatcher) logSubmitted(job domain.Job) {
	encoded, err := job.MarshalJSON()
	if err != nil {
		d.log.Infow("job submitted", "job_id", job.ID, "job_type", job.Type())
		return
	}
	d.log.Infow("job submitted",
		"job_id", job.ID,
		"job_type", job.Type(),
		"job", string(policy.MaskPIIJSON(encoded)),
	)
}
