package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultQueueSize is the writer's channel buffer.
const DefaultQueueSize = 64

// DefaultJobTimeout bounds a single persisted write.
const DefaultJobTimeout = 30 * time.Second

// Job is a unit of background work.
type Job func(ctx context.Context) error

type writeRequest struct {
	name string
	fn   Job
	done chan struct{}
}

// Writer runs jobs one at a time, in submission order, on a single goroutine.
// Job errors are logged and dropped.
type Writer struct {
	jobs       chan writeRequest
	stopped    chan struct{}
	jobTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewWriter starts a writer with the given queue size.
func NewWriter(queueSize int) *Writer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	w := &Writer{
		jobs:       make(chan writeRequest, queueSize),
		stopped:    make(chan struct{}),
		jobTimeout: DefaultJobTimeout,
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	defer close(w.stopped)
	for req := range w.jobs {
		if req.fn != nil {
			w.exec(req)
		}
		if req.done != nil {
			close(req.done)
		}
	}
}

func (w *Writer) exec(req writeRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("cache_write_panic", slog.String("job", req.name), slog.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := req.fn(ctx); err != nil {
		slog.Warn("cache_write_failed",
			slog.String("job", req.name),
			slog.String("error", err.Error()))
		return
	}
	slog.Debug("cache_write_done",
		slog.String("job", req.name),
		slog.Duration("duration", time.Since(start)))
}

// Enqueue submits a job. It blocks while the queue is full and returns false
// once the writer is closed.
func (w *Writer) Enqueue(name string, fn Job) bool {
	return w.submit(writeRequest{name: name, fn: fn})
}

func (w *Writer) submit(req writeRequest) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	w.jobs <- req
	return true
}

// Flush waits until every job enqueued before the call has run.
func (w *Writer) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !w.submit(writeRequest{name: "flush", done: done}) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for the queue to drain.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	<-w.stopped
}
