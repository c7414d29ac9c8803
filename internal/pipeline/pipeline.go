// Package pipeline runs an ordered list of text stages under one
// wall-clock budget.
//
// Stages run strictly in sequence, each one's output feeding the next.
// The first stage error aborts the run (fail-fast) and is wrapped as
// STAGE_FAILED; results of the stages that completed stay attached to the
// returned Result for diagnostics. Exceeding the budget yields
// PIPELINE_TIMEOUT and cancelling the caller's context yields
// PIPELINE_CANCELLED, in both cases without waiting for a stage that
// ignores its context.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/hpungsan/clipflow/internal/errors"
)

// Policy is the stage-error policy. Fail-fast is the only one.
type Policy string

const PolicyFailFast Policy = "fail_fast"

// Config bounds a run.
type Config struct {
	// Timeout is the budget for the entire run, not per stage. 0 = none.
	Timeout time.Duration
	Policy  Policy
}

// Outcome summarizes how a run ended.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
)

// StageResult records one completed stage.
type StageResult struct {
	Index    int           `json:"index"`
	StageID  string        `json:"stage_id"`
	Name     string        `json:"name"`
	Output   string        `json:"output"`
	Duration time.Duration `json:"duration"`
}

// Result is the record of one run. FinalOutput is set only on success.
type Result struct {
	RequestID     string        `json:"request_id,omitempty"`
	Input         string        `json:"-"`
	StageResults  []StageResult `json:"stage_results"`
	FinalOutput   string        `json:"final_output,omitempty"`
	TotalDuration time.Duration `json:"total_duration"`
	Outcome       Outcome       `json:"outcome"`
	Err           error         `json:"-"`
}

// Pipeline is immutable after New and safe for concurrent Execute calls.
type Pipeline struct {
	stages []Stage
	cfg    Config
}

// New creates a Pipeline. An empty stage list is accepted here and
// rejected by Execute.
func New(stages []Stage, cfg Config) *Pipeline {
	if cfg.Policy == "" {
		cfg.Policy = PolicyFailFast
	}
	return &Pipeline{stages: append([]Stage(nil), stages...), cfg: cfg}
}

// Stages returns the stage list in execution order.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Config returns the run configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Execute runs every stage over input. The returned Result is never nil;
// on error it carries the StageResults completed before the failure.
func (p *Pipeline) Execute(ctx context.Context, input string) (*Result, error) {
	start := time.Now()
	res := &Result{Input: input, Outcome: OutcomeFailure}
	done := func(err error) (*Result, error) {
		res.TotalDuration = time.Since(start)
		res.Err = err
		if errors.Is(err, errors.ErrPipelineCancelled) {
			res.Outcome = OutcomeCancelled
		}
		return res, err
	}

	if len(p.stages) == 0 {
		return done(errors.NewPipelineEmpty())
	}
	if p.cfg.Policy != PolicyFailFast {
		return done(errors.NewInvalidRequest(fmt.Sprintf("unsupported pipeline policy %q", p.cfg.Policy)))
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
	}
	defer cancel()

	text := input
	for i, st := range p.stages {
		if runCtx.Err() != nil {
			return done(p.interrupted(ctx))
		}

		stageStart := time.Now()
		out, err := run(runCtx, st, text)
		if err != nil {
			if runCtx.Err() != nil {
				return done(p.interrupted(ctx))
			}
			return done(errors.NewStageFailed(i, st.ID(), len(res.StageResults), err))
		}

		res.StageResults = append(res.StageResults, StageResult{
			Index:    i,
			StageID:  st.ID(),
			Name:     st.Name(),
			Output:   out,
			Duration: time.Since(stageStart),
		})
		text = out
	}

	res.FinalOutput = text
	res.Outcome = OutcomeSuccess
	return done(nil)
}

// interrupted maps a done run context to cancellation or timeout. The
// parent context is checked first: a caller cancel always wins.
func (p *Pipeline) interrupted(parent context.Context) error {
	if parent.Err() != nil {
		return errors.NewPipelineCancelled()
	}
	return errors.NewPipelineTimeout(p.cfg.Timeout.Milliseconds())
}

type stageOutput struct {
	text string
	err  error
}

// run executes one stage on its own goroutine so the run's deadline holds
// even when the stage never returns.
func run(ctx context.Context, st Stage, text string) (string, error) {
	ch := make(chan stageOutput, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- stageOutput{err: fmt.Errorf("stage panicked: %v", r)}
			}
		}()
		out, err := st.Transform(ctx, text)
		ch <- stageOutput{text: out, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case o := <-ch:
		return o.text, o.err
	}
}
