package queue

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// LocalQueue runs jobs on a fixed set of in-process workers. Each worker owns a shard
// of documents (document ID modulo worker count), so a document's jobs run in order.
type LocalQueue struct {
	mu      sync.RWMutex
	shards  []chan Job
	closed  bool
	running sync.WaitGroup
	logger  *zap.Logger
}

// LocalOption configures a LocalQueue.
type LocalOption func(*LocalQueue)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) LocalOption {
	return func(q *LocalQueue) { q.logger = l }
}

// NewLocalQueue returns a queue with the given number of workers, each buffering up to
// buffer pending jobs.
func NewLocalQueue(workers, buffer int, opts ...LocalOption) *LocalQueue {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	q := &LocalQueue{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(q)
	}
	q.shards = make([]chan Job, workers)
	for i := range q.shards {
		q.shards[i] = make(chan Job, buffer)
	}
	return q
}

// Publish enqueues job, blocking while its shard is full.
func (q *LocalQueue) Publish(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.shards[q.shard(job.DocumentID)] <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the workers and blocks until ctx is done or Close has drained every shard.
func (q *LocalQueue) Run(ctx context.Context, h Handler) error {
	if h == nil {
		return fmt.Errorf("queue: nil handler")
	}
	q.running.Add(len(q.shards))
	for i, ch := range q.shards {
		go q.work(ctx, i, ch, h)
	}
	q.running.Wait()
	return ctx.Err()
}

func (q *LocalQueue) work(ctx context.Context, worker int, ch <-chan Job, h Handler) {
	defer q.running.Done()
	for {
		select {
		case job, ok := <-ch:
			if !ok {
				return
			}
			q.handle(ctx, worker, job, h)
		case <-ctx.Done():
			return
		}
	}
}

func (q *LocalQueue) handle(ctx context.Context, worker int, job Job, h Handler) {
	log := q.logger.With(zap.Int("worker", worker), zap.Int64("document_id", job.DocumentID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", zap.Any("panic", r))
		}
	}()
	if err := h(ctx, job); err != nil {
		log.Warn("job failed", zap.String("reason", job.Reason), zap.Error(err))
	}
}

// Close stops accepting jobs and waits for running workers to finish what is queued.
func (q *LocalQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for _, ch := range q.shards {
		close(ch)
	}
	q.mu.Unlock()
	q.running.Wait()
	return nil
}

func (q *LocalQueue) shard(docID int64) int {
	n := int64(len(q.shards))
	s := docID % n
	if s < 0 {
		s += n
	}
	return int(s)
}
