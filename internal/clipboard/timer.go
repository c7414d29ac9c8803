package clipboard

import (
	stderrors "errors"
	"math/rand/v2"
	"sync"
	"time"
)

// Timer is the periodic tick source that drives a Monitor.
//
// Cancel must not be called on a suspended timer; callers resume first.
type Timer interface {
	Start(fire func())
	Suspend()
	Resume()
	Cancel() error
}

// TimerFactory builds a Timer for the given interval and jitter.
type TimerFactory func(interval, jitter time.Duration) Timer

var errCancelSuspended = stderrors.New("clipboard: cancel on suspended timer")

// tickerTimer fires on its own goroutine every interval plus a random
// jitter in [0, jitter].
type tickerTimer struct {
	interval time.Duration
	jitter   time.Duration

	mu        sync.Mutex
	suspended bool
	cancelled bool
	resumeCh  chan struct{}
	stopCh    chan struct{}
}

// NewTickerTimer returns the wall-clock Timer used outside tests.
func NewTickerTimer(interval, jitter time.Duration) Timer {
	return &tickerTimer{
		interval: interval,
		jitter:   jitter,
		resumeCh: make(chan struct{}),
		stopCh:   make(chan struct{}),
	}
}

func (t *tickerTimer) Start(fire func()) {
	go t.loop(fire)
}

func (t *tickerTimer) Suspend() {
	t.mu.Lock()
	t.suspended = true
	t.mu.Unlock()
}

func (t *tickerTimer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.suspended {
		return
	}
	t.suspended = false
	close(t.resumeCh)
	t.resumeCh = make(chan struct{})
}

func (t *tickerTimer) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.suspended {
		return errCancelSuspended
	}
	if !t.cancelled {
		t.cancelled = true
		close(t.stopCh)
	}
	return nil
}

func (t *tickerTimer) next() time.Duration {
	d := t.interval
	if t.jitter > 0 {
		d += time.Duration(rand.Int64N(int64(t.jitter) + 1))
	}
	return d
}

func (t *tickerTimer) loop(fire func()) {
	for {
		t.mu.Lock()
		suspended, resume := t.suspended, t.resumeCh
		t.mu.Unlock()

		if suspended {
			select {
			case <-t.stopCh:
				return
			case <-resume:
				continue
			}
		}

		timer := time.NewTimer(t.next())
		select {
		case <-t.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		t.mu.Lock()
		suspended = t.suspended
		t.mu.Unlock()
		if suspended {
			continue
		}
		fire()
	}
}
