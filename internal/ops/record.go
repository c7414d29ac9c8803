package ops

import (
	"context"
	"database/sql"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hpungsan/clipflow/internal/db"
	"github.com/hpungsan/clipflow/internal/engine"
	"github.com/hpungsan/clipflow/internal/pipeline"
)

// DefaultRecordBuffer is the AsyncRecorder queue depth when none is given.
const DefaultRecordBuffer = 64

// StoreRun converts an engine record into a stored run and inserts it.
func StoreRun(ctx context.Context, database *sql.DB, rec engine.Record, now time.Time) error {
	return db.InsertRun(ctx, database, toRun(rec, now))
}

func toRun(rec engine.Record, now time.Time) *db.Run {
	run := &db.Run{
		ID:          rec.RequestID,
		Trigger:     string(rec.Trigger),
		Outcome:     string(rec.Outcome),
		InputText:   rec.Input,
		InputChars:  utf8.RuneCountInString(rec.Input),
		StageCount:  len(rec.StageResults),
		DurationMs:  rec.TotalDuration.Milliseconds(),
		SubmittedAt: rec.SubmittedAt.Unix(),
		CreatedAt:   now.Unix(),
	}
	if rec.ErrorCode != "" {
		code, msg := rec.ErrorCode, rec.ErrorMessage
		run.ErrorCode = &code
		run.ErrorMessage = &msg
	}
	if rec.Outcome == pipeline.OutcomeSuccess {
		out := rec.Output
		run.OutputText = &out
		run.OutputChars = utf8.RuneCountInString(out)
	}
	for _, sr := range rec.StageResults {
		run.Stages = append(run.Stages, db.StageRow{
			Index:      sr.Index,
			StageID:    sr.StageID,
			Name:       sr.Name,
			OutputText: sr.Output,
			DurationMs: sr.Duration.Milliseconds(),
		})
	}
	return run
}

// RecorderOptions configures an AsyncRecorder.
type RecorderOptions struct {
	Buffer int
	Logger *zap.Logger
	Now    func() time.Time
}

// AsyncRecorder writes engine records to the history database on a
// background worker so a slow disk never holds the transformation queue.
// Records arriving while the buffer is full are dropped.
type AsyncRecorder struct {
	db     *sql.DB
	log    *zap.Logger
	now    func() time.Time
	ch     chan engine.Record
	done   chan struct{}
	closed bool
	mu     sync.Mutex
}

// NewAsyncRecorder starts the worker. Close must be called to drain it.
func NewAsyncRecorder(database *sql.DB, opts RecorderOptions) *AsyncRecorder {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultRecordBuffer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &AsyncRecorder{
		db:   database,
		log:  opts.Logger,
		now:  opts.Now,
		ch:   make(chan engine.Record, opts.Buffer),
		done: make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record implements engine.Recorder.
func (r *AsyncRecorder) Record(rec engine.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.log.Warn("history recorder closed, dropping run", zap.String("id", rec.RequestID))
		return
	}
	select {
	case r.ch <- rec:
	default:
		r.log.Warn("history buffer full, dropping run", zap.String("id", rec.RequestID))
	}
}

// Close stops accepting records and waits until buffered ones are stored.
func (r *AsyncRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()
	<-r.done
}

func (r *AsyncRecorder) loop() {
	defer close(r.done)
	for rec := range r.ch {
		if err := StoreRun(context.Background(), r.db, rec, r.now()); err != nil {
			r.log.Error("store run failed", zap.String("id", rec.RequestID), zap.Error(err))
		}
	}
}
