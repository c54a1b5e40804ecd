package trim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"github.com/yeti47/screenrec/ccc/logging"
	filemanagement "github.com/yeti47/screenrec/file-management"
)

var (
	// ErrQueueFull is returned when no more jobs can be buffered.
	ErrQueueFull = errors.New("trim queue is full")
	// ErrOutputBusy is returned when another queued or running job writes the same output.
	ErrOutputBusy = errors.New("another trim is writing this output")
)

const jobTimeout = 30 * time.Minute

// Callbacks are invoked from worker goroutines when a job finishes.
type Callbacks struct {
	OnSuccess func(job Job)
	OnFailure func(job Job, err error)
}

// Queue runs trim jobs on a bounded pool of workers.
type Queue interface {
	// Queue validates job, assigns an ID and buffers it
	Queue(job *Job) error

	// Start processes jobs until stopChan is closed, then drains the remaining ones
	Start(stopChan <-chan struct{}, wg *sync.WaitGroup, callbacks Callbacks)

	// Drain runs remaining jobs during shutdown with timeout
	Drain(timeout time.Duration)

	// Status returns a snapshot of a job known to the queue
	Status(id string) (Job, bool)
}

type trimQueue struct {
	logger       logging.Logger
	trimmer      Trimmer
	files        filemanagement.FileTracker
	jobs         chan *Job
	workers      int
	drainTimeout time.Duration

	mu      sync.Mutex
	known   map[string]*Job
	outputs map[string]string // output path -> job ID while queued or running
}

// NewQueue creates a trim queue buffering up to bufferSize jobs and running up to workers at once.
func NewQueue(logger logging.Logger, trimmer Trimmer, files filemanagement.FileTracker, workers, bufferSize int, drainTimeout time.Duration) Queue {
	if logger == nil {
		logger = logging.NopLogger
	}
	if workers < 1 {
		workers = 1
	}
	return &trimQueue{
		logger:       logger,
		trimmer:      trimmer,
		files:        files,
		jobs:         make(chan *Job, bufferSize),
		workers:      workers,
		drainTimeout: drainTimeout,
		known:        make(map[string]*Job),
		outputs:      make(map[string]string),
	}
}

func (q *trimQueue) Queue(job *Job) error {
	if job.StartMs < 0 || job.EndMs <= job.StartMs {
		return fmt.Errorf("%w: start %dms, end %dms", ErrInvalidRange, job.StartMs, job.EndMs)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if owner, busy := q.outputs[job.OutputPath]; busy {
		return fmt.Errorf("%w: %s (job %s)", ErrOutputBusy, job.OutputPath, owner)
	}

	job.ID = uuid.NewString()
	job.State = JobQueued
	job.CreatedAt = time.Now().UTC()

	select {
	case q.jobs <- job:
		q.known[job.ID] = job
		q.outputs[job.OutputPath] = job.ID
		q.logger.Info("Queued trim", "job", job.ID, "input", job.InputPath, "output", job.OutputPath)
		return nil
	default:
		q.logger.Warn("Trim queue full, rejecting job", "input", job.InputPath)
		return ErrQueueFull
	}
}

func (q *trimQueue) Start(stopChan <-chan struct{}, wg *sync.WaitGroup, callbacks Callbacks) {
	defer wg.Done()

	// a conc pool must be waited on exactly once
	workers := pool.New().WithMaxGoroutines(q.workers)

	for {
		select {
		case job := <-q.jobs:
			workers.Go(func() {
				q.run(job, callbacks)
			})
		case <-stopChan:
			workers.Wait()
			q.drain(q.drainTimeout, callbacks)
			return
		}
	}
}

func (q *trimQueue) Drain(timeout time.Duration) {
	q.drain(timeout, Callbacks{})
}

func (q *trimQueue) drain(timeout time.Duration, callbacks Callbacks) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case job := <-q.jobs:
			q.run(job, callbacks)
		case <-timer.C:
			q.logger.Warn("Trim queue drain timeout, forcing shutdown")
			return
		default:
			return
		}
	}
}

func (q *trimQueue) run(job *Job, callbacks Callbacks) {
	q.setState(job, JobRunning, nil)
	q.logger.Info("Trimming", "job", job.ID, "start_ms", job.StartMs, "end_ms", job.EndMs)

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	err := q.trimmer.TrimContext(ctx, job.InputPath, job.OutputPath, job.StartMs, job.EndMs)
	if err != nil {
		q.logger.Error("Trim failed", "job", job.ID, "error", err)
		// the output is unusable after a failure
		q.files.DeleteFile(job.OutputPath)
		snapshot := q.setState(job, JobFailed, err)
		if callbacks.OnFailure != nil {
			callbacks.OnFailure(snapshot, err)
		}
		return
	}

	snapshot := q.setState(job, JobSucceeded, nil)
	if callbacks.OnSuccess != nil {
		callbacks.OnSuccess(snapshot)
	}
}

func (q *trimQueue) setState(job *Job, state JobState, err error) Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	job.State = state
	if err != nil {
		job.Error = err.Error()
	}
	if state == JobSucceeded || state == JobFailed {
		job.FinishedAt = time.Now().UTC()
		delete(q.outputs, job.OutputPath)
	}
	return *job
}

func (q *trimQueue) Status(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.known[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}
