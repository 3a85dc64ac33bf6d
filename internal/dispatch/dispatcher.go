package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iago/assessment-dispatch/internal/cache"
	"github.com/iago/assessment-dispatch/internal/domain"
	"github.com/iago/assessment-dispatch/internal/formatting"
	"github.com/iago/assessment-dispatch/internal/generation"
	"github.com/iago/assessment-dispatch/internal/quality"
	"github.com/iago/assessment-dispatch/internal/queue"
	"github.com/iago/assessment-dispatch/internal/repository"
	"github.com/iago/assessment-dispatch/internal/storage"
	"go.uber.org/zap"
)

// NoJob is returned in place of a job ID when a submission is rejected.
const NoJob domain.JobID = -1

var ErrAlreadyInitialized = errors.New("dispatcher already initialized")

type Dependencies struct {
	Storage   storage.Gateway
	Generator generation.Capability
	Recorder  repository.ArtifactRecorder
	Catalog   repository.QuestionCatalog
	// Snapshots persists the queue across restarts; nil disables persist and reload.
	Snapshots  queue.SnapshotStore
	Similarity formatting.Similarity
	Validator  *quality.OutputValidator
	// StreamInput reads source artifacts through Get instead of downloading them first.
	StreamInput bool
	// Results bounds how long and how many finished job results stay queryable.
	Results cache.Config
	Logger  *zap.SugaredLogger
	Now     func() time.Time
}

type Options struct {
	PollInterval time.Duration
	// Reload restores the queue saved by the last persisting shutdown.
	Reload bool
	// Synchronous runs every submitted job inline on the caller instead of queueing it.
	Synchronous bool
}

// Status is a point-in-time view of the dispatcher.
type Status struct {
	State        domain.SubsystemState `json:"state"`
	QueueDepth   int                   `json:"queue_depth"`
	PollInterval time.Duration         `json:"-"`
	Suppressed   bool                  `json:"suppressed"`
	Synchronous  bool                  `json:"synchronous"`
}

// Dispatcher owns the job queue, the subsystem state and the job ID counter,
// all guarded by one mutex, and drives jobs through preparation, generation
// and postprocessing one at a time.
type Dispatcher struct {
	storage     storage.Gateway
	generator   generation.Capability
	recorder    repository.ArtifactRecorder
	catalog     repository.QuestionCatalog
	snapshots   queue.SnapshotStore
	similarity  formatting.Similarity
	validator   *quality.OutputValidator
	streamInput bool
	log         *zap.SugaredLogger
	now         func() time.Time

	mu           sync.Mutex
	state        domain.SubsystemState
	closing      bool
	synchronous  bool
	queue        *queue.FIFO
	nextID       domain.JobID
	pollInterval time.Duration
	suppressed   bool
	results      *cache.Store[domain.JobID, domain.JobResult]

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func New(deps Dependencies) (*Dispatcher, error) {
	if deps.Storage == nil {
		return nil, errors.New("storage gateway is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("generation capability is required")
	}
	if deps.Recorder == nil {
		return nil, errors.New("artifact recorder is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("question catalog is required")
	}
	if deps.Similarity == nil {
		deps.Similarity = formatting.DiffRatio{}
	}
	if deps.Validator == nil {
		deps.Validator = quality.NewOutputValidator()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Results.Now == nil {
		deps.Results.Now = deps.Now
	}

	return &Dispatcher{
		storage:     deps.Storage,
		generator:   deps.Generator,
		recorder:    deps.Recorder,
		catalog:     deps.Catalog,
		snapshots:   deps.Snapshots,
		similarity:  deps.Similarity,
		validator:   deps.Validator,
		streamInput: deps.StreamInput,
		log:         deps.Logger,
		now:         deps.Now,
		state:       domain.StateUninitialized,
		queue:       queue.NewFIFO(),
		results:     cache.New[domain.JobID, domain.JobResult](deps.Results),
		wake:        make(chan struct{}, 1),
	}, nil
}

// Initialize moves the dispatcher to Ready and, outside synchronous mode,
// starts the worker. Calling it again before Shutdown is an error.
func (d *Dispatcher) Initialize(ctx context.Context, opts Options) (domain.SubsystemState, error) {
	if opts.PollInterval < 0 {
		return d.State(), domain.InvalidInput("poll interval must not be negative, got %s", opts.PollInterval)
	}
	if opts.Reload && d.snapshots == nil {
		return d.State(), domain.InvalidInput("reload requested without a queue snapshot store")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != domain.StateUninitialized && d.state != domain.StateShutdown {
		return d.state, ErrAlreadyInitialized
	}

	pending := queue.NewFIFO()
	if opts.Reload {
		jobs, err := d.snapshots.Load(ctx)
		if err != nil {
			return d.state, domain.NewJobError(domain.KindFileSystem, "reload queue", err)
		}
		pending = queue.NewFIFO(jobs...)
		if next := queue.NextID(jobs); next > d.nextID {
			d.nextID = next
		}
		d.log.Infow("queue restored", "jobs", len(jobs), "next_job_id", d.nextID)
	}

	d.queue = pending
	d.pollInterval = opts.PollInterval
	d.synchronous = opts.Synchronous
	d.closing = false
	d.state = domain.StateReady

	if !opts.Synchronous {
		d.stop = make(chan struct{})
		d.done = make(chan struct{})
		go d.run(context.WithoutCancel(ctx), d.stop, d.done)
	}

	d.log.Infow("dispatcher initialized",
		"poll_interval", d.pollInterval,
		"synchronous", d.synchronous,
		"queue_depth", d.queue.Len(),
	)
	return d.state, nil
}

// Shutdown stops the worker, optionally saves the pending queue and waits for
// the worker to exit. A job already in flight runs to completion first. The
// queue is frozen as soon as the worker is told to stop, so it is saved even
// when ctx expires before the in-flight job finishes; the worker then marks
// the dispatcher Shutdown on its own way out.
func (d *Dispatcher) Shutdown(ctx context.Context, persist bool) (domain.SubsystemState, error) {
	d.mu.Lock()
	switch {
	case d.state == domain.StateUninitialized:
		d.mu.Unlock()
		return domain.StateUninitialized, domain.NewJobError(domain.KindNotInitialized, "shutdown", nil)
	case d.state == domain.StateShutdown:
		d.mu.Unlock()
		return domain.StateShutdown, nil
	}
	if persist && d.snapshots == nil {
		d.mu.Unlock()
		return d.state, domain.InvalidInput("persist requested without a queue snapshot store")
	}

	first := !d.closing
	d.closing = true
	stop, done := d.stop, d.done
	var pending []domain.Job
	if first {
		if stop != nil {
			close(stop)
		}
		pending = d.queue.Snapshot()
		d.queue.Clear()
	}
	d.mu.Unlock()

	var persistErr error
	if first && persist {
		if err := d.snapshots.Save(context.WithoutCancel(ctx), pending); err != nil {
			persistErr = domain.NewJobError(domain.KindFileSystem, "persist queue", err)
			d.log.Errorw("persist queue", "jobs", len(pending), "error", err)
		} else {
			d.log.Infow("queue persisted", "jobs", len(pending))
		}
	}

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			d.log.Warnw("dispatch worker still busy, it will finish shutdown on exit", "error", ctx.Err())
			return d.State(), errors.Join(persistErr, fmt.Errorf("wait for dispatch worker: %w", ctx.Err()))
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.markShutdown()
	return d.state, persistErr
}

// markShutdown must be called with d.mu held.
func (d *Dispatcher) markShutdown() {
	if d.state == domain.StateShutdown {
		return
	}
	d.state = domain.StateShutdown
	d.stop, d.done = nil, nil
	d.log.Info("dispatcher shut down")
}

func (d *Dispatcher) State() domain.SubsystemState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		State:        d.state,
		QueueDepth:   d.queue.Len(),
		PollInterval: d.pollInterval,
		Suppressed:   d.suppressed,
		Synchronous:  d.synchronous,
	}
}

// SetPollInterval changes how long the idle worker sleeps between queue checks.
// Zero makes the worker wait for the next submission instead.
func (d *Dispatcher) SetPollInterval(interval time.Duration) error {
	if interval < 0 {
		return domain.InvalidInput("poll interval must not be negative, got %s", interval)
	}
	d.mu.Lock()
	d.pollInterval = interval
	d.mu.Unlock()
	d.signal()
	return nil
}

// SetSuppressDispatch pauses or resumes queue consumption without closing the dispatcher.
func (d *Dispatcher) SetSuppressDispatch(suppress bool) {
	d.mu.Lock()
	d.suppressed = suppress
	d.mu.Unlock()
	d.signal()
}

func (d *Dispatcher) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Len()
}

// WipeQueue drops every pending job and returns how many were removed.
func (d *Dispatcher) WipeQueue() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := d.queue.Clear()
	if removed > 0 {
		d.log.Warnw("queue wiped", "jobs", removed)
	}
	return removed
}

// Result reports the outcome of a job, or its queued status while it waits.
func (d *Dispatcher) Result(id domain.JobID) (domain.JobResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if result, ok := d.results.Get(id); ok {
		return result, true
	}
	if job, ok := d.queue.Find(id); ok {
		return domain.JobResult{ID: id, Type: job.Type(), Status: domain.JobStatusQueued}, true
	}
	return domain.JobResult{}, false
}

func (d *Dispatcher) setState(state domain.SubsystemState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != domain.StateShutdown {
		d.state = state
	}
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}
