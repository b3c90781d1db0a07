package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "git.home.luguber.info/inful/pagesmith/internal/errors"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/metrics"
	"git.home.luguber.info/inful/pagesmith/internal/trigger"
)

// RunRequest is one queued run. The debouncer may fold several webhook
// deliveries into a single request; Coalesced carries the fold count.
type RunRequest struct {
	Event      trigger.Event `json:"event"`
	Coalesced  int           `json:"coalesced,omitempty"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// RunQueue buffers run requests and hands them to workers. The default
// single worker keeps runs strictly serial; more workers are allowed, with
// the publisher's per-target lock guarding the shared output.
type RunQueue struct {
	requests chan *RunRequest
	workers  int
	execute  func(ctx context.Context, req *RunRequest)
	recorder metrics.Recorder
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewRunQueue creates a queue of the given size processed by the given
// number of workers. execute is called once per dequeued request.
func NewRunQueue(size, workers int, execute func(ctx context.Context, req *RunRequest)) *RunQueue {
	if size <= 0 {
		size = 100
	}
	if workers <= 0 {
		workers = 1
	}
	return &RunQueue{
		requests: make(chan *RunRequest, size),
		workers:  workers,
		execute:  execute,
		recorder: metrics.NoopRecorder{},
		stopChan: make(chan struct{}),
	}
}

// WithRecorder attaches a metrics recorder for queue depth tracking.
func (q *RunQueue) WithRecorder(rec metrics.Recorder) *RunQueue {
	if rec != nil {
		q.recorder = rec
	}
	return q
}

// Start launches the worker goroutines.
func (q *RunQueue) Start(ctx context.Context) {
	slog.Info("Starting run queue",
		slog.Int("workers", q.workers),
		slog.Int("capacity", cap(q.requests)))

	for i := range q.workers {
		q.wg.Add(1)
		go q.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop signals the workers and waits for in-flight runs, bounded by ctx.
// Closing the stop channel also cancels the context of any run still
// executing, so a stuck run cannot hold up shutdown indefinitely.
func (q *RunQueue) Stop(ctx context.Context) error {
	slog.Info("Stopping run queue")

	select {
	case <-q.stopChan:
	default:
		close(q.stopChan)
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Run queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("run queue stop: %w", ctx.Err())
	}
}

// Enqueue adds a request without blocking. A full queue rejects with a
// daemon-category error so HTTP callers can answer 503.
func (q *RunQueue) Enqueue(req *RunRequest) error {
	if req == nil {
		return fmt.Errorf("run request cannot be nil")
	}

	select {
	case q.requests <- req:
		q.recorder.SetQueueDepth(len(q.requests))
		slog.Info("Run request enqueued",
			logfields.Branch(req.Event.Branch),
			logfields.Trigger(string(req.Event.Kind)),
			slog.Int("queue_depth", len(q.requests)))
		return nil
	default:
		return apperrors.DaemonError("run queue is full")
	}
}

// Depth returns the number of requests waiting in the queue.
func (q *RunQueue) Depth() int {
	return len(q.requests)
}

// Capacity returns the queue's buffer size.
func (q *RunQueue) Capacity() int {
	return cap(q.requests)
}

func (q *RunQueue) worker(ctx context.Context, id string) {
	defer q.wg.Done()

	slog.Debug("Run worker started", logfields.Worker(id))

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Run worker stopped by context", logfields.Worker(id))
			return
		case <-q.stopChan:
			slog.Debug("Run worker stopped by stop signal", logfields.Worker(id))
			return
		case req := <-q.requests:
			if req == nil {
				continue
			}
			q.recorder.SetQueueDepth(len(q.requests))
			runCtx, cancel := q.stopAwareContext(ctx)
			q.execute(runCtx, req)
			cancel()
		}
	}
}

// stopAwareContext derives a context that is cancelled either by the parent
// or by queue shutdown, so an in-flight run aborts when Stop is called.
func (q *RunQueue) stopAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-q.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
