// Package queue implements the in-process FIFO job queue with retry and
// exponential backoff. A single worker goroutine drains the queue, so job
// processing and completion callbacks are serialized.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentforge/engine/common/logger"
	"github.com/agentforge/engine/common/models"
)

// Processor executes one job attempt and returns its result. A nil result
// with a nil error is treated as a processor bug and fails the job.
type Processor func(ctx context.Context, job *models.Job) (*models.JobResult, error)

// CompletionHandler observes terminal job results. Handlers run on the
// worker goroutine, in registration order.
type CompletionHandler func(job *models.Job, result *models.JobResult)

// RetryHandler observes retry decisions before the backoff sleep
type RetryHandler func(job *models.Job, backoff time.Duration, failure string)

// JobQueue is a FIFO queue of node execution jobs with bounded retries.
// Enqueue order is dispatch order; a retried job re-enters at the tail.
type JobQueue struct {
	mu        sync.Mutex
	order     []string               // job ids in FIFO order
	jobs      map[string]*models.Job // by id, including terminal jobs
	processor Processor
	onDone    []CompletionHandler
	onRetry   []RetryHandler

	runningID     string
	runningCancel context.CancelFunc

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	log *logger.Logger
}

// New creates an empty queue that runs jobs through processor
func New(processor Processor, log *logger.Logger) *JobQueue {
	return &JobQueue{
		jobs:      make(map[string]*models.Job),
		processor: processor,
		wake:      make(chan struct{}, 1),
		log:       log,
	}
}

// OnCompleted registers a handler for terminal job results. Must be called
// before StartWorker.
func (q *JobQueue) OnCompleted(h CompletionHandler) {
	q.onDone = append(q.onDone, h)
}

// OnRetry registers a handler called when a failed job is about to be
// retried. Must be called before StartWorker.
func (q *JobQueue) OnRetry(h RetryHandler) {
	q.onRetry = append(q.onRetry, h)
}

// Add enqueues a job at the tail and wakes the worker
func (q *JobQueue) Add(job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job has no id")
	}

	q.mu.Lock()
	if _, exists := q.jobs[job.ID]; exists {
		q.mu.Unlock()
		return fmt.Errorf("job already enqueued: %s", job.ID)
	}
	job.Status = models.JobPending
	job.CreatedAt = time.Now().UTC()
	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	q.mu.Unlock()

	q.notify()
	return nil
}

// Get returns a job by id
func (q *JobQueue) Get(jobID string) (*models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	return job, ok
}

// Len reports how many jobs are waiting to run
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// CancelJob cancels a job. A pending job is removed from the FIFO; a
// running job has its attempt context cancelled and settles without
// notifying completion handlers.
func (q *JobQueue) CancelJob(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return false
	}
	switch job.Status {
	case models.JobPending:
		job.Status = models.JobCancelled
		q.removeFromOrder(jobID)
		return true
	case models.JobRunning:
		job.Status = models.JobCancelled
		if q.runningID == jobID && q.runningCancel != nil {
			q.runningCancel()
		}
		return true
	}
	return false
}

// CancelExecution cancels every pending and running job of an execution
// and returns the cancelled node ids
func (q *JobQueue) CancelExecution(executionID string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var cancelled []string
	for _, job := range q.jobs {
		if job.ExecutionID != executionID {
			continue
		}
		switch job.Status {
		case models.JobPending:
			job.Status = models.JobCancelled
			q.removeFromOrder(job.ID)
			cancelled = append(cancelled, job.NodeID)
		case models.JobRunning:
			job.Status = models.JobCancelled
			if q.runningID == job.ID && q.runningCancel != nil {
				q.runningCancel()
			}
			cancelled = append(cancelled, job.NodeID)
		}
	}
	return cancelled
}

// StartWorker launches the single worker goroutine. It runs until
// StopWorker is called or ctx is cancelled.
func (q *JobQueue) StartWorker(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	q.done = make(chan struct{})

	go q.run(ctx)
}

// StopWorker stops the worker and waits for the in-flight job to finish
func (q *JobQueue) StopWorker() {
	if q.cancel == nil {
		return
	}
	q.cancel()
	<-q.done
}

func (q *JobQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// removeFromOrder drops a job id from the FIFO. Caller holds q.mu.
func (q *JobQueue) removeFromOrder(jobID string) {
	for i, id := range q.order {
		if id == jobID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

func (q *JobQueue) run(ctx context.Context) {
	defer close(q.done)

	for {
		job := q.dequeue()
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		q.process(ctx, job)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// dequeue pops the head of the FIFO, or nil when the queue is empty
func (q *JobQueue) dequeue() *models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.order) > 0 {
		id := q.order[0]
		q.order = q.order[1:]
		job, ok := q.jobs[id]
		if !ok || job.Status != models.JobPending {
			continue
		}
		now := time.Now().UTC()
		job.Status = models.JobRunning
		job.StartedAt = &now
		return job
	}
	return nil
}

func (q *JobQueue) process(ctx context.Context, job *models.Job) {
	jobCtx, stop := context.WithCancel(ctx)
	q.mu.Lock()
	q.runningID = job.ID
	q.runningCancel = stop
	q.mu.Unlock()

	result, err := q.runProcessor(jobCtx, job)

	q.mu.Lock()
	q.runningID = ""
	q.runningCancel = nil
	wasCancelled := job.Status == models.JobCancelled
	q.mu.Unlock()
	stop()

	// a job cancelled mid-run settles silently: no retry, no completion
	if wasCancelled {
		now := time.Now().UTC()
		q.mu.Lock()
		job.CompletedAt = &now
		q.mu.Unlock()
		q.log.Info("running job cancelled", "job_id", job.ID, "node_id", job.NodeID)
		return
	}

	if err == nil && result != nil && result.Success {
		q.finish(job, result, models.JobCompleted)
		return
	}

	// normalize the failure into a result
	if result == nil {
		message := "processor returned no result"
		if err != nil {
			message = err.Error()
		}
		result = &models.JobResult{
			JobID:       job.ID,
			NodeID:      job.NodeID,
			ExecutionID: job.ExecutionID,
			Success:     false,
			Error:       message,
		}
	} else if err != nil && result.Error == "" {
		result.Error = err.Error()
	}

	if q.retryable(err) && job.CanRetry() {
		q.retry(ctx, job, result)
		return
	}

	job.Error = result.Error
	q.finish(job, result, models.JobFailed)
}

// runProcessor invokes the processor, converting a panic into a
// non-retryable failure
func (q *JobQueue) runProcessor(ctx context.Context, job *models.Job) (result *models.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("job processor panicked",
				"job_id", job.ID,
				"node_id", job.NodeID,
				"panic", r)
			result = nil
			err = panicError{fmt.Sprintf("job processor panicked: %v", r)}
		}
	}()
	return q.processor(ctx, job)
}

type panicError struct{ msg string }

func (e panicError) Error() string { return e.msg }

// retryable reports whether a failure may be retried. Panics are not.
func (q *JobQueue) retryable(err error) bool {
	_, panicked := err.(panicError)
	return !panicked
}

// retry backs off and re-queues the job without notifying completion.
// Backoff doubles per attempt: backoff_ms, 2x, 4x, ...
func (q *JobQueue) retry(ctx context.Context, job *models.Job, result *models.JobResult) {
	job.RetryCount++
	backoff := time.Duration(job.RetryBackoffMS) * time.Millisecond
	for i := 1; i < job.RetryCount; i++ {
		backoff *= 2
	}

	q.log.Warn("job failed, retrying",
		"job_id", job.ID,
		"node_id", job.NodeID,
		"retry_count", job.RetryCount,
		"backoff", backoff,
		"error", result.Error)

	for _, h := range q.onRetry {
		h(job, backoff, result.Error)
	}

	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		job.Error = result.Error
		q.finish(job, result, models.JobFailed)
		return
	}

	q.mu.Lock()
	// cancelled during the backoff sleep: settle instead of re-queueing
	if job.Status == models.JobCancelled {
		now := time.Now().UTC()
		job.CompletedAt = &now
		q.mu.Unlock()
		return
	}
	job.Status = models.JobPending
	job.StartedAt = nil
	q.order = append(q.order, job.ID)
	q.mu.Unlock()
	q.notify()
}

// finish marks the job terminal and runs completion handlers serially
func (q *JobQueue) finish(job *models.Job, result *models.JobResult, status models.JobStatus) {
	now := time.Now().UTC()

	q.mu.Lock()
	job.Status = status
	job.CompletedAt = &now
	job.Output = result.Output
	q.mu.Unlock()

	for _, h := range q.onDone {
		h(job, result)
	}
}
