package pipeline

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"jackpotd/domain/errs"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Queue item priorities. Wins preempt contributions so payouts are
// never stuck behind accumulation traffic.
const (
	PriorityContributionMin = 0
	PriorityContributionMax = 5
	PriorityWin             = 10
)

// QueueItem is one unit of asynchronous work. Attempts counts handler
// failures; the item is dropped as terminal once it reaches MaxAttempts.
type QueueItem struct {
	ID          string
	Payload     any
	Priority    int
	EnqueuedAt  time.Time
	Attempts    int
	MaxAttempts int
	NotBefore   time.Time

	seq uint64
}

// TerminalFunc is invoked when an item exhausts its attempts. It runs
// on the processing goroutine, so it must not block for long.
type TerminalFunc func(item *QueueItem, err error)

// QueueConfig sizes the queue and wires its terminal-failure hook
type QueueConfig struct {
	MaxSize    int
	OnTerminal TerminalFunc
}

// QueueMetrics is a point-in-time snapshot of queue state
type QueueMetrics struct {
	Ready            int    `json:"ready"`
	Delayed          int    `json:"delayed"`
	Processed        uint64 `json:"processed"`
	Retried          uint64 `json:"retried"`
	TerminalFailures uint64 `json:"terminal_failures"`
}

// PriorityQueue holds work items in priority order, FIFO within equal
// priority. Failed items come back through a delayed heap so their
// backoff never blocks ready work.
type PriorityQueue struct {
	mu      sync.Mutex
	cfg     QueueConfig
	ready   readyHeap
	delayed delayedHeap
	seq     uint64
	now     func() time.Time

	processed        uint64
	retried          uint64
	terminalFailures uint64
}

// NewPriorityQueue creates an empty queue
func NewPriorityQueue(cfg QueueConfig) *PriorityQueue {
	q := &PriorityQueue{
		cfg: cfg,
		now: time.Now,
	}
	heap.Init(&q.ready)
	heap.Init(&q.delayed)
	return q
}

// Enqueue admits a new item, failing with QueueFullError when the
// queue is at capacity. Returns the assigned item ID.
func (q *PriorityQueue) Enqueue(payload any, priority, maxAttempts int) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cfg.MaxSize > 0 && q.ready.Len()+q.delayed.Len() >= q.cfg.MaxSize {
		return "", &errs.QueueFullError{Capacity: q.cfg.MaxSize}
	}

	item := &QueueItem{
		ID:          uuid.New().String(),
		Payload:     payload,
		Priority:    priority,
		EnqueuedAt:  q.now(),
		MaxAttempts: maxAttempts,
	}
	q.push(item)
	return item.ID, nil
}

// push assumes the lock is held. Re-enqueued items bypass the capacity
// check: they were already admitted once.
func (q *PriorityQueue) push(item *QueueItem) {
	q.seq++
	item.seq = q.seq
	if !item.NotBefore.IsZero() && item.NotBefore.After(q.now()) {
		heap.Push(&q.delayed, item)
	} else {
		heap.Push(&q.ready, item)
	}
}

// Size returns the number of items held, ready and delayed combined
func (q *PriorityQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready.Len() + q.delayed.Len()
}

// Metrics returns a snapshot of queue counters
func (q *PriorityQueue) Metrics() QueueMetrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueMetrics{
		Ready:            q.ready.Len(),
		Delayed:          q.delayed.Len(),
		Processed:        q.processed,
		Retried:          q.retried,
		TerminalFailures: q.terminalFailures,
	}
}

// dequeueBatch pops up to max ready items, promoting due delayed items
// first.
func (q *PriorityQueue) dequeueBatch(max int) []*QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	current := q.now()
	for q.delayed.Len() > 0 && !q.delayed[0].NotBefore.After(current) {
		item := heap.Pop(&q.delayed).(*QueueItem)
		heap.Push(&q.ready, item)
	}

	batch := make([]*QueueItem, 0, max)
	for len(batch) < max && q.ready.Len() > 0 {
		batch = append(batch, heap.Pop(&q.ready).(*QueueItem))
	}
	return batch
}

// ProcessAll drains every currently-ready item in fixed-size batches,
// dispatching each batch across at most concurrency goroutines. A
// failed item is re-enqueued with an exponential delay of 2^attempts
// seconds until its attempts run out, at which point the terminal hook
// fires. Items whose backoff has not yet elapsed are left for the next
// call. Returns the number of items handled.
func (q *PriorityQueue) ProcessAll(ctx context.Context, handler func(ctx context.Context, item *QueueItem) error, concurrency, batchSize int) int {
	if concurrency < 1 {
		concurrency = 1
	}
	if batchSize < 1 {
		batchSize = 1
	}

	handled := 0
	for {
		if ctx.Err() != nil {
			return handled
		}

		batch := q.dequeueBatch(batchSize)
		if len(batch) == 0 {
			return handled
		}
		handled += len(batch)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for _, item := range batch {
			g.Go(func() error {
				q.processOne(gctx, handler, item)
				return nil
			})
		}
		// Workers never return errors; failures are handled per item
		_ = g.Wait()
	}
}

func (q *PriorityQueue) processOne(ctx context.Context, handler func(ctx context.Context, item *QueueItem) error, item *QueueItem) {
	err := handler(ctx, item)

	q.mu.Lock()
	defer q.mu.Unlock()

	if err == nil {
		q.processed++
		return
	}

	item.Attempts++
	if item.Attempts < item.MaxAttempts {
		item.NotBefore = q.now().Add(time.Duration(1<<uint(item.Attempts)) * time.Second)
		q.push(item)
		q.retried++
		log.WithFields(log.Fields{
			"itemId":   item.ID,
			"attempts": item.Attempts,
			"priority": item.Priority,
		}).WithError(err).Warn("Queue item failed, re-enqueued with backoff")
		return
	}

	q.terminalFailures++
	log.WithFields(log.Fields{
		"itemId":   item.ID,
		"attempts": item.Attempts,
		"priority": item.Priority,
	}).WithError(err).Error("Queue item exhausted attempts")

	if q.cfg.OnTerminal != nil {
		// Release the lock around the hook so it may touch the queue
		q.mu.Unlock()
		q.cfg.OnTerminal(item, err)
		q.mu.Lock()
	}
}

// readyHeap orders by priority descending, then FIFO by sequence
type readyHeap []*QueueItem

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readyHeap) Push(x any) {
	*h = append(*h, x.(*QueueItem))
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// delayedHeap orders by earliest NotBefore
type delayedHeap []*QueueItem

func (h delayedHeap) Len() int { return len(h) }
func (h delayedHeap) Less(i, j int) bool {
	return h[i].NotBefore.Before(h[j].NotBefore)
}
func (h delayedHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *delayedHeap) Push(x any) {
	*h = append(*h, x.(*QueueItem))
}

func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
