package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/iago/assessment-dispatch/internal/domain"
)

// run is the dispatch loop. It exits when stop is closed, never in the middle of a job.
func (d *Dispatcher) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	d.log.Info("dispatch worker started")

	for {
		select {
		case <-stop:
			d.mu.Lock()
			d.markShutdown()
			d.mu.Unlock()
			d.log.Info("dispatch worker stopped")
			return
		default:
		}

		job, ok := d.next()
		if !ok {
			d.idle(stop)
			continue
		}
		_ = d.process(ctx, job)
	}
}

// next pops the queue head unless dispatch is suppressed or closing, and marks it running.
func (d *Dispatcher) next() (domain.Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.suppressed || d.closing {
		return domain.Job{}, false
	}
	job, ok := d.queue.Pop()
	if !ok {
		d.state = domain.StateNoJobs
		return domain.Job{}, false
	}
	d.state = domain.StateAwaitingInstance
	d.results.Set(job.ID, domain.JobResult{ID: job.ID, Type: job.Type(), Status: domain.JobStatusRunning})
	return job, true
}

func (d *Dispatcher) idle(stop <-chan struct{}) {
	d.mu.Lock()
	interval := d.pollInterval
	d.mu.Unlock()

	var tick <-chan time.Time
	if interval > 0 {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		tick = timer.C
	}

	select {
	case <-stop:
	case <-d.wake:
	case <-tick:
	}
}

// process runs one job through every stage and records its result. Failures
// stay with the job: they are logged, stored and returned, never propagated
// to the loop.
func (d *Dispatcher) process(ctx context.Context, job domain.Job) error {
	started := time.Now()
	log := d.log.With("job_id", job.ID, "job_type", job.Type())
	log.Infow("job dispatched")

	artifact, err := d.executeRecovered(ctx, job)

	result := domain.JobResult{
		ID:           job.ID,
		Type:         job.Type(),
		Status:       domain.JobStatusSucceeded,
		FinishedAt:   d.now().UTC(),
		ArtifactName: artifact.Name,
		ArtifactPath: artifact.Path,
	}
	if err != nil {
		result.Status = domain.JobStatusFailed
		result.ErrorKind = domain.KindOf(err)
		result.Error = err.Error()
		log.Errorw("job failed", "error_kind", result.ErrorKind, "error", err, "elapsed", time.Since(started))
	} else {
		log.Infow("job completed", "artifact", artifact.Path, "elapsed", time.Since(started))
	}

	d.mu.Lock()
	d.results.Set(job.ID, result)
	d.mu.Unlock()
	return err
}

// executeRecovered turns a panic in any stage into a failure of this job only.
func (d *Dispatcher) executeRecovered(ctx context.Context, job domain.Job) (artifact domain.Artifact, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			d.log.Errorw("job panicked", "job_id", job.ID, "panic", recovered, "stack", string(debug.Stack()))
			err = domain.NewJobError(domain.KindUnknown, "process job", fmt.Errorf("panic: %v", recovered))
		}
	}()
	return d.execute(ctx, job)
}

func (d *Dispatcher) execute(ctx context.Context, job domain.Job) (domain.Artifact, error) {
	prepared, err := d.prepare(ctx, job)
	if err != nil {
		return domain.Artifact{}, err
	}

	output, err := d.generate(ctx, prepared)
	d.setState(domain.StateCompletedJob)
	if err != nil {
		return domain.Artifact{}, err
	}

	return d.postprocess(ctx, prepared, output)
}
