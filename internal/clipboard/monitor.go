package clipboard

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the monitor lifecycle state.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrIllegalTransition is returned for lifecycle calls the current state
// does not allow.
var ErrIllegalTransition = stderrors.New("clipboard: illegal monitor state transition")

// Change is delivered to the subscriber once per new clipboard sequence.
type Change struct {
	Snapshot    Snapshot
	Processable bool
}

// MonitorOptions tunes the polling loop.
type MonitorOptions struct {
	// Interval is the base polling period. Default: 500ms.
	Interval time.Duration
	// Jitter is added uniformly in [0, Jitter] to every period.
	Jitter time.Duration
	// GraceDelay is how long to wait after a counter change before reading
	// content, so writers declaring several types can finish. Default: 0.
	GraceDelay time.Duration
	// OnChange receives every non-self-written change. It runs on the
	// polling goroutine and must not block.
	OnChange func(Change)
	// NewTimer overrides the wall-clock tick source.
	NewTimer TimerFactory
	Logger   *zap.Logger
	// Now overrides time.Now for snapshot timestamps.
	Now func() time.Time
}

func (o *MonitorOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = 500 * time.Millisecond
	}
	if o.NewTimer == nil {
		o.NewTimer = NewTickerTimer
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// MonitorStats are point-in-time counters.
type MonitorStats struct {
	State      string `json:"state"`
	LastSeq    int64  `json:"last_sequence_id"`
	Ticks      int64  `json:"ticks"`
	Changes    int64  `json:"changes"`
	Suppressed int64  `json:"suppressed"`
	Errors     int64  `json:"errors"`
}

// Monitor watches a Platform for content changes. It is safe for
// concurrent use.
type Monitor struct {
	platform Platform
	opts     MonitorOptions

	mu     sync.Mutex
	state  State
	timer  Timer
	cancel context.CancelFunc

	// tickMu serializes ticks so notifications are strictly ordered.
	tickMu  sync.Mutex
	lastSeq atomic.Int64

	ticks      atomic.Int64
	changes    atomic.Int64
	suppressed atomic.Int64
	errors     atomic.Int64
}

// NewMonitor creates a stopped Monitor over p.
func NewMonitor(p Platform, opts MonitorOptions) *Monitor {
	opts.defaults()
	return &Monitor{platform: p, opts: opts}
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns the current counters.
func (m *Monitor) Stats() MonitorStats {
	return MonitorStats{
		State:      m.State().String(),
		LastSeq:    m.lastSeq.Load(),
		Ticks:      m.ticks.Load(),
		Changes:    m.changes.Load(),
		Suppressed: m.suppressed.Load(),
		Errors:     m.errors.Load(),
	}
}

// Start seeds the change counter from the current clipboard and begins
// polling. Content present before Start is never reported.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateStopped {
		return fmt.Errorf("start from %s: %w", m.state, ErrIllegalTransition)
	}

	r, err := m.platform.Read(ctx)
	if err != nil {
		return fmt.Errorf("seed clipboard counter: %w", err)
	}
	m.lastSeq.Store(r.ChangeCount)

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.timer = m.opts.NewTimer(m.opts.Interval, m.opts.Jitter)
	m.timer.Start(func() {
		if _, _, err := m.Tick(runCtx); err != nil && runCtx.Err() == nil {
			m.opts.Logger.Warn("clipboard: tick failed", zap.Error(err))
		}
	})
	m.state = StateRunning

	m.opts.Logger.Info("clipboard: monitor started",
		zap.Duration("interval", m.opts.Interval),
		zap.Duration("jitter", m.opts.Jitter),
		zap.Int64("sequence_id", r.ChangeCount))
	return nil
}

// Suspend pauses polling without losing the last seen sequence.
func (m *Monitor) Suspend() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning {
		return fmt.Errorf("suspend from %s: %w", m.state, ErrIllegalTransition)
	}
	m.timer.Suspend()
	m.state = StateSuspended
	m.opts.Logger.Debug("clipboard: monitor suspended")
	return nil
}

// Resume restarts polling. Changes made while suspended are reported once,
// as the latest sequence.
func (m *Monitor) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateSuspended {
		return fmt.Errorf("resume from %s: %w", m.state, ErrIllegalTransition)
	}
	m.timer.Resume()
	m.state = StateRunning
	m.opts.Logger.Debug("clipboard: monitor resumed")
	return nil
}

// Stop ends polling and cancels any in-flight grace wait. Stopping a
// stopped monitor is a no-op.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateStopped:
		return nil
	case StateSuspended:
		// A suspended timer cannot be cancelled.
		m.timer.Resume()
		m.state = StateRunning
		fallthrough
	case StateRunning:
		err := m.timer.Cancel()
		m.cancel()
		m.timer, m.cancel = nil, nil
		m.state = StateStopped
		m.opts.Logger.Info("clipboard: monitor stopped")
		if err != nil {
			return fmt.Errorf("cancel timer: %w", err)
		}
	}
	return nil
}

// Tick runs one poll: it reports whether a new change was delivered.
// The polling goroutine calls it; tests may call it directly.
func (m *Monitor) Tick(ctx context.Context) (Change, bool, error) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	m.ticks.Add(1)

	r, err := m.platform.Read(ctx)
	if err != nil {
		m.errors.Add(1)
		return Change{}, false, fmt.Errorf("read clipboard: %w", err)
	}
	if r.ChangeCount <= m.lastSeq.Load() {
		return Change{}, false, nil
	}

	if m.opts.GraceDelay > 0 {
		t := time.NewTimer(m.opts.GraceDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return Change{}, false, ctx.Err()
		case <-t.C:
		}
		// Writers may have finished declaring types, or written again.
		if r, err = m.platform.Read(ctx); err != nil {
			m.errors.Add(1)
			return Change{}, false, fmt.Errorf("read clipboard after grace: %w", err)
		}
		if r.ChangeCount <= m.lastSeq.Load() {
			return Change{}, false, nil
		}
	}

	m.lastSeq.Store(r.ChangeCount)
	snap := NewSnapshot(r, m.opts.Now())
	log := m.opts.Logger.With(zap.Int64("sequence_id", snap.SequenceID))

	if HasMarker(snap) {
		m.suppressed.Add(1)
		log.Debug("clipboard: self-write suppressed")
		return Change{}, false, nil
	}

	change := Change{Snapshot: snap, Processable: IsProcessable(snap.Kind)}
	m.changes.Add(1)
	log.Debug("clipboard: change detected",
		zap.String("kind", string(snap.Kind)),
		zap.String("category", snap.Category()))

	if m.opts.OnChange != nil {
		m.opts.OnChange(change)
	}
	return change, true, nil
}
