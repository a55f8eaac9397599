package reading

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/arcana/internal/types"
)

// queue manages per-user lanes with a global concurrency semaphore.
// Each user gets their own FIFO channel (lane) so that sessions for one user
// are processed strictly sequentially, which closes the window where two
// concurrent requests from the same user could both pass the cooldown check
// before either records activity. The semaphore limits the total number of
// sessions narrating at once across all users.
type queue struct {
	lanes     map[types.UserID]chan *job
	semaphore *semaphore.Weighted
	processor func(*job) error
	pending   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// job is one enqueued reading request.
type job struct {
	sessionID types.SessionID
	req       Request
	ctx       context.Context
}

func newQueue(maxConcurrent int64) *queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &queue{
		lanes:     make(map[types.UserID]chan *job),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// start initialises the queue's context. Must be called before enqueue.
func (q *queue) start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// stop cancels the queue context, closes all lanes, and waits for in-flight
// sessions to finish.
func (q *queue) stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for _, lane := range q.lanes {
		close(lane)
	}
	q.lanes = make(map[types.UserID]chan *job)
	q.mu.Unlock()
	q.wg.Wait()
}

// enqueue adds a job to the user's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is full.
func (q *queue) enqueue(j *job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	lane, exists := q.lanes[j.req.UserID]
	if !exists {
		lane = make(chan *job, 16)
		q.lanes[j.req.UserID] = lane
		q.wg.Add(1)
		go q.processLane(lane)
	}

	select {
	case lane <- j:
		q.pending.Add(1)
		return nil
	default:
		return fmt.Errorf("queue full for user %d", j.req.UserID)
	}
}

// processLane drains a single user lane, acquiring a semaphore slot before
// running the processor synchronously. FIFO order within a lane is strict;
// the semaphore only limits cross-user parallelism.
func (q *queue) processLane(lane chan *job) {
	defer q.wg.Done()
	for {
		select {
		case j, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			if q.processor != nil {
				j.ctx = q.ctx
				if err := q.processor(j); err != nil {
					slog.Error("reading session failed",
						"session_id", string(j.sessionID),
						"user_id", int64(j.req.UserID),
						"error", err)
				}
			}
			q.pending.Add(-1)
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			return
		}
	}
}

// waitIdle blocks until every enqueued session has been processed, or the
// timeout expires. Returns true if idle, false if timed out.
func (q *queue) waitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.pending.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}
