// Package engine wires the clipboard, the single-flight queue, and the
// pipeline into one transformation service.
//
// Every run goes through the queue, so a second trigger while one run is in
// flight fails with ALREADY_PROCESSING. A successful run with non-empty
// output is written back to the clipboard together with the self-write
// marker; failed or cancelled runs leave the clipboard untouched. Each run
// is offered to the history recorder without waiting on it.
package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/clipflow/internal/clipboard"
	"github.com/hpungsan/clipflow/internal/errors"
	"github.com/hpungsan/clipflow/internal/pipeline"
	"github.com/hpungsan/clipflow/internal/queue"
)

// Paster simulates a paste into the frontmost application.
type Paster interface {
	Paste(ctx context.Context) error
}

// Recorder receives a record of every run. Record must not block.
type Recorder interface {
	Record(rec Record)
}

// Record is what history keeps about one run.
type Record struct {
	RequestID     string
	Trigger       queue.Trigger
	SubmittedAt   time.Time
	Outcome       pipeline.Outcome
	ErrorCode     string
	ErrorMessage  string
	Input         string
	Output        string
	StageResults  []pipeline.StageResult
	TotalDuration time.Duration
}

// Options configures an Engine.
type Options struct {
	Clipboard clipboard.Platform
	Pipeline  *pipeline.Pipeline
	// Queue defaults to a fresh queue.New().
	Queue    *queue.Queue
	Recorder Recorder
	Paster   Paster
	Logger   *zap.Logger
	// AutoTransform makes HandleChange run the pipeline on every
	// processable change.
	AutoTransform bool
	Now           func() time.Time
}

// LastRun summarizes the most recent completed run.
type LastRun struct {
	RequestID  string           `json:"request_id"`
	Trigger    queue.Trigger    `json:"trigger"`
	Outcome    pipeline.Outcome `json:"outcome"`
	ErrorCode  string           `json:"error_code,omitempty"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	Processing    bool           `json:"processing"`
	Current       *queue.Request `json:"current,omitempty"`
	AutoTransform bool           `json:"auto_transform"`
	Stages        []string       `json:"stages"`
	Queue         queue.Stats    `json:"queue"`
	Last          *LastRun       `json:"last,omitempty"`
}

// Engine is safe for concurrent use.
type Engine struct {
	clip     clipboard.Platform
	pipe     *pipeline.Pipeline
	queue    *queue.Queue
	recorder Recorder
	paster   Paster
	log      *zap.Logger
	auto     bool
	now      func() time.Time

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	// mu guards last and closed. closed and wg.Add change together so
	// Close never races a new background run.
	mu     sync.Mutex
	last   *LastRun
	closed bool
}

// New creates an Engine. Clipboard and Pipeline are required.
func New(opts Options) (*Engine, error) {
	if opts.Clipboard == nil {
		return nil, errors.NewInvalidRequest("engine: clipboard is required")
	}
	if opts.Pipeline == nil {
		return nil, errors.NewInvalidRequest("engine: pipeline is required")
	}
	if opts.Queue == nil {
		opts.Queue = queue.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Engine{
		clip:     opts.Clipboard,
		pipe:     opts.Pipeline,
		queue:    opts.Queue,
		recorder: opts.Recorder,
		paster:   opts.Paster,
		log:      opts.Logger,
		auto:     opts.AutoTransform,
		now:      opts.Now,
		ctx:      ctx,
		stop:     stop,
	}, nil
}

// NewRequestID returns a new ULID.
func NewRequestID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewRequest builds a request for trigger with the pipeline's budget.
func (e *Engine) NewRequest(trigger queue.Trigger) queue.Request {
	return queue.Request{
		ID:          NewRequestID(),
		Trigger:     trigger,
		Timeout:     e.pipe.Config().Timeout,
		SubmittedAt: e.now(),
	}
}

// Submit runs the pipeline over input. It fails immediately with
// ALREADY_PROCESSING, and a nil result, when another run is in flight.
// Otherwise the result is non-nil.
func (e *Engine) Submit(ctx context.Context, req queue.Request, input string) (*pipeline.Result, error) {
	return e.run(ctx, req, input, nil)
}

// TransformClipboard reads the clipboard, transforms its text, and writes
// the result back. A hotkey trigger also pastes after a successful write.
func (e *Engine) TransformClipboard(ctx context.Context, trigger queue.Trigger) (*pipeline.Result, error) {
	r, err := e.clip.Read(ctx)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("read clipboard: %w", err))
	}
	return e.transformSnapshot(ctx, clipboard.NewSnapshot(r, e.now()), trigger)
}

// HandleChange is the monitor subscriber. With auto-transform on, it starts
// a run for each processable change unless one is already in flight. It
// never blocks the polling goroutine.
func (e *Engine) HandleChange(c clipboard.Change) {
	log := e.log.With(zap.Int64("sequence_id", c.Snapshot.SequenceID))
	if !c.Processable {
		log.Debug("engine: change not processable", zap.String("category", c.Snapshot.Category()))
		return
	}
	if !e.auto {
		log.Debug("engine: change observed, auto-transform off")
		return
	}
	if e.queue.IsProcessing() {
		log.Debug("engine: change skipped, run in flight")
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		_, err := e.transformSnapshot(e.ctx, c.Snapshot, queue.TriggerAuto)
		if err != nil && !errors.Is(err, errors.ErrAlreadyProcessing) && !errors.Is(err, errors.ErrPipelineCancelled) {
			log.Warn("engine: auto-transform failed", zap.Error(err))
		}
	}()
}

// Cancel cancels the in-flight run, if any.
func (e *Engine) Cancel() bool {
	ok := e.queue.Cancel()
	if ok {
		e.log.Info("engine: run cancelled")
	}
	return ok
}

// Wait blocks until no run is in flight or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	return e.queue.Wait(ctx)
}

// Status returns the current engine state.
func (e *Engine) Status() Status {
	st := Status{
		Processing:    e.queue.IsProcessing(),
		AutoTransform: e.auto,
		Queue:         e.queue.Stats(),
	}
	if cur, ok := e.queue.Current(); ok {
		st.Current = &cur
	}
	for _, s := range e.pipe.Stages() {
		st.Stages = append(st.Stages, s.ID())
	}
	e.mu.Lock()
	if e.last != nil {
		last := *e.last
		st.Last = &last
	}
	e.mu.Unlock()
	return st
}

// Close cancels any in-flight run and waits for background runs to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.stop()
	e.queue.Cancel()
	e.wg.Wait()
}

func (e *Engine) transformSnapshot(ctx context.Context, snap clipboard.Snapshot, trigger queue.Trigger) (*pipeline.Result, error) {
	if err := clipboard.RejectionError(snap); err != nil {
		return nil, err
	}
	req := e.NewRequest(trigger)
	return e.run(ctx, req, snap.Text, func(runCtx context.Context, res *pipeline.Result) error {
		return e.deliver(runCtx, req, res)
	})
}

// deliver writes a successful result back and, for hotkey triggers, pastes.
// It runs while the run still holds the queue.
func (e *Engine) deliver(ctx context.Context, req queue.Request, res *pipeline.Result) error {
	if res.FinalOutput == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.NewPipelineCancelled()
	}
	if err := e.clip.Write(ctx, res.FinalOutput, clipboard.MarkerTypeTag); err != nil {
		return errors.NewInternal(fmt.Errorf("write clipboard: %w", err))
	}
	if e.paster != nil && req.Trigger == queue.TriggerHotkey {
		if err := e.paster.Paste(ctx); err != nil {
			return errors.NewInternal(fmt.Errorf("paste: %w", err))
		}
	}
	return nil
}

func (e *Engine) run(ctx context.Context, req queue.Request, input string, after func(context.Context, *pipeline.Result) error) (*pipeline.Result, error) {
	log := e.log.With(zap.String("request_id", req.ID), zap.String("trigger", string(req.Trigger)))

	runCtx, release, err := e.queue.Begin(ctx, req)
	if err != nil {
		log.Info("engine: run rejected", zap.Error(err))
		return nil, err
	}
	defer release()

	log.Debug("engine: run started", zap.Int("input_len", len(input)))
	res, err := e.pipe.Execute(runCtx, input)
	res.RequestID = req.ID

	if err == nil && after != nil {
		if err = after(runCtx, res); err != nil {
			res.Outcome = pipeline.OutcomeFailure
			if errors.Is(err, errors.ErrPipelineCancelled) {
				res.Outcome = pipeline.OutcomeCancelled
			}
			res.Err = err
		}
	}

	e.finish(req, res, err, log)
	return res, err
}

func (e *Engine) finish(req queue.Request, res *pipeline.Result, err error, log *zap.Logger) {
	rec := Record{
		RequestID:     req.ID,
		Trigger:       req.Trigger,
		SubmittedAt:   req.SubmittedAt,
		Outcome:       res.Outcome,
		Input:         res.Input,
		Output:        res.FinalOutput,
		StageResults:  res.StageResults,
		TotalDuration: res.TotalDuration,
	}
	if err != nil {
		rec.ErrorCode = string(errors.CodeOf(err))
		rec.ErrorMessage = err.Error()
	}

	e.mu.Lock()
	e.last = &LastRun{
		RequestID:  req.ID,
		Trigger:    req.Trigger,
		Outcome:    res.Outcome,
		ErrorCode:  rec.ErrorCode,
		FinishedAt: e.now(),
	}
	e.mu.Unlock()

	if e.recorder != nil {
		e.recorder.Record(rec)
	}

	fields := []zap.Field{
		zap.String("outcome", string(res.Outcome)),
		zap.Int("stages_completed", len(res.StageResults)),
		zap.Duration("duration", res.TotalDuration),
	}
	switch {
	case err == nil:
		log.Info("engine: run complete", fields...)
	case res.Outcome == pipeline.OutcomeCancelled:
		log.Debug("engine: run cancelled", fields...)
	default:
		log.Warn("engine: run failed", append(fields, zap.Error(err))...)
	}
}
