// Package queue is the single-flight gate in front of the pipeline: at most
// one transformation runs at a time and concurrent triggers are rejected
// with ALREADY_PROCESSING, never queued.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hpungsan/clipflow/internal/errors"
)

// Trigger names what submitted a request.
type Trigger string

const (
	TriggerHotkey Trigger = "hotkey"
	TriggerAuto   Trigger = "auto"
	TriggerCLI    Trigger = "cli"
	TriggerAPI    Trigger = "api"
	TriggerMCP    Trigger = "mcp"
)

// Request is one transformation attempt.
type Request struct {
	ID          string        `json:"id"`
	Trigger     Trigger       `json:"trigger"`
	Timeout     time.Duration `json:"timeout"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// Stats are point-in-time counters.
type Stats struct {
	Started   int64 `json:"started"`
	Rejected  int64 `json:"rejected"`
	Cancelled int64 `json:"cancelled"`
	Finished  int64 `json:"finished"`
}

// Queue is safe for concurrent use. The zero value is not usable; call New.
type Queue struct {
	mu      sync.Mutex
	current *Request
	cancel  context.CancelFunc
	idle    chan struct{}

	started   atomic.Int64
	rejected  atomic.Int64
	cancelled atomic.Int64
	finished  atomic.Int64
}

// New returns an idle Queue.
func New() *Queue {
	idle := make(chan struct{})
	close(idle)
	return &Queue{idle: idle}
}

// Start registers req and its cancel function as the in-flight unit.
// It fails with ALREADY_PROCESSING when another request is registered.
func (q *Queue) Start(req Request, cancel context.CancelFunc) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current != nil {
		q.rejected.Add(1)
		return errors.NewAlreadyProcessing(q.current.ID)
	}
	r := req
	q.current = &r
	q.cancel = cancel
	q.idle = make(chan struct{})
	q.started.Add(1)
	return nil
}

// Begin derives a cancellable context from parent, registers req, and
// returns a release func that must be deferred. Release is idempotent and
// only clears req's own registration.
func (q *Queue) Begin(parent context.Context, req Request) (context.Context, func(), error) {
	ctx, cancel := context.WithCancel(parent)
	if err := q.Start(req, cancel); err != nil {
		cancel()
		return nil, func() {}, err
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			q.Finish(req.ID)
			cancel()
		})
	}
	return ctx, release, nil
}

// Cancel cancels the in-flight request and returns the queue to idle.
// It reports whether anything was cancelled; it is a no-op when idle.
func (q *Queue) Cancel() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return false
	}
	if q.cancel != nil {
		q.cancel()
	}
	q.clear()
	q.cancelled.Add(1)
	return true
}

// Finish clears the in-flight state after requestID completes. A stale
// Finish for a request already cancelled or replaced is ignored.
func (q *Queue) Finish(requestID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil || q.current.ID != requestID {
		return false
	}
	q.clear()
	q.finished.Add(1)
	return true
}

// IsProcessing reports whether a request is registered.
func (q *Queue) IsProcessing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != nil
}

// Current returns the in-flight request, if any.
func (q *Queue) Current() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return Request{}, false
	}
	return *q.current, true
}

// Wait blocks until the queue is idle or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Started:   q.started.Load(),
		Rejected:  q.rejected.Load(),
		Cancelled: q.cancelled.Load(),
		Finished:  q.finished.Load(),
	}
}

// clear must be called with mu held.
func (q *Queue) clear() {
	q.current = nil
	q.cancel = nil
	close(q.idle)
}
