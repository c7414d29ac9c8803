package main

import (
	"context"
	"database/sql"
	stderrors "errors"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/clipflow/internal/clipboard"
	"github.com/hpungsan/clipflow/internal/config"
	"github.com/hpungsan/clipflow/internal/engine"
	"github.com/hpungsan/clipflow/internal/errors"
	"github.com/hpungsan/clipflow/internal/mcp"
	"github.com/hpungsan/clipflow/internal/ops"
	"github.com/hpungsan/clipflow/internal/pipeline"
	"github.com/hpungsan/clipflow/internal/remote"
	"github.com/hpungsan/clipflow/internal/web"
)

// appEnv carries what every command needs. db is nil for help/version.
type appEnv struct {
	db  *sql.DB
	cfg *config.Config
	log *zap.Logger

	// clip replaces the system clipboard when set (tests).
	clip clipboard.Platform
}

// newLogger builds the production logger. Logs go to stderr so stdout
// stays clean for command output.
func newLogger(debug bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zc.Build()
}

func (e *appEnv) logger() *zap.Logger {
	if e.log == nil {
		return zap.NewNop()
	}
	return e.log
}

// systemClipboard returns the OS clipboard.
func (e *appEnv) systemClipboard() (clipboard.Platform, error) {
	if e.clip != nil {
		return e.clip, nil
	}
	sys, err := clipboard.NewSystem()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return sys, nil
}

// clipboardOrMemory falls back to an in-process clipboard when the OS one is
// unavailable, so servers that mostly transform text still start.
func (e *appEnv) clipboardOrMemory() clipboard.Platform {
	clip, err := e.systemClipboard()
	if err != nil {
		e.logger().Warn("system clipboard unavailable, using in-memory clipboard", zap.Error(err))
		return clipboard.NewMemory()
	}
	return clip
}

// stages resolves cfg.Stages, wiring the remote adapter when it is named.
func (e *appEnv) stages() ([]pipeline.Stage, error) {
	adapters := map[string]pipeline.Stage{}
	if slices.Contains(e.cfg.Stages, config.StageRemote) {
		st, err := remote.FromConfig(e.cfg)
		if err != nil {
			return nil, err
		}
		adapters[config.StageRemote] = st
	}
	stages, err := pipeline.Build(e.cfg, adapters)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	return stages, nil
}

// runtime is an engine plus the history recorder feeding it.
type runtime struct {
	engine   *engine.Engine
	recorder *ops.AsyncRecorder
}

// Close stops the engine, then drains pending history writes.
func (r *runtime) Close() {
	r.engine.Close()
	if r.recorder != nil {
		r.recorder.Close()
	}
}

type runtimeOptions struct {
	Timeout       time.Duration
	AutoTransform bool
}

func (e *appEnv) newRuntime(clip clipboard.Platform, opts runtimeOptions) (*runtime, error) {
	stages, err := e.stages()
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = e.cfg.Timeout()
	}

	rt := &runtime{}
	var rec engine.Recorder
	if e.db != nil && e.cfg.History() {
		rt.recorder = ops.NewAsyncRecorder(e.db, ops.RecorderOptions{Logger: e.logger()})
		rec = rt.recorder
	}

	eng, err := engine.New(engine.Options{
		Clipboard:     clip,
		Pipeline:      pipeline.New(stages, pipeline.Config{Timeout: opts.Timeout}),
		Recorder:      rec,
		Logger:        e.logger(),
		AutoTransform: opts.AutoTransform,
	})
	if err != nil {
		if rt.recorder != nil {
			rt.recorder.Close()
		}
		return nil, err
	}
	rt.engine = eng
	return rt, nil
}

// applyRetention purges runs older than the configured retention window.
func (e *appEnv) applyRetention(ctx context.Context) {
	days := e.cfg.HistoryRetentionDays
	if e.db == nil || days <= 0 {
		return
	}
	out, err := ops.PurgeRuns(ctx, e.db, ops.PurgeInput{OlderThanDays: &days})
	if err != nil {
		e.logger().Warn("history retention purge failed", zap.Error(err))
		return
	}
	if out.Purged > 0 {
		e.logger().Info("history retention purge", zap.Int("purged", out.Purged), zap.Int("older_than_days", days))
	}
}

type watchOptions struct {
	AutoTransform bool
	Serve         bool
	Bind          string
	Port          int
}

// runWatch polls the clipboard until ctx is done. With Serve it also runs
// the HTTP API; either failing stops both.
func (e *appEnv) runWatch(ctx context.Context, opts watchOptions) error {
	log := e.logger()

	clip, err := e.systemClipboard()
	if err != nil {
		return err
	}
	rt, err := e.newRuntime(clip, runtimeOptions{AutoTransform: opts.AutoTransform})
	if err != nil {
		return err
	}
	defer rt.Close()

	e.applyRetention(ctx)

	mon := clipboard.NewMonitor(clip, clipboard.MonitorOptions{
		Interval:   e.cfg.PollInterval(),
		Jitter:     e.cfg.PollJitter(),
		GraceDelay: e.cfg.GraceDelay(),
		OnChange:   rt.engine.HandleChange,
		Logger:     log,
	})
	if err := mon.Start(ctx); err != nil {
		return err
	}
	log.Info("watching clipboard",
		zap.Bool("auto_transform", opts.AutoTransform),
		zap.Duration("interval", e.cfg.PollInterval()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		err := mon.Stop()
		st := mon.Stats()
		log.Info("clipboard watch stopped",
			zap.Int64("ticks", st.Ticks),
			zap.Int64("changes", st.Changes),
			zap.Int64("suppressed", st.Suppressed),
		)
		return err
	})
	if opts.Serve {
		srv := web.NewServer(e.db, rt.engine, log, Version, opts.Bind, opts.Port)
		g.Go(func() error {
			return web.Run(gctx, srv, log)
		})
	}

	err = g.Wait()
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runServe runs only the HTTP API until ctx is done.
func (e *appEnv) runServe(ctx context.Context, bind string, port int) error {
	rt, err := e.newRuntime(e.clipboardOrMemory(), runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	e.applyRetention(ctx)

	srv := web.NewServer(e.db, rt.engine, e.logger(), Version, bind, port)
	return web.Run(ctx, srv, e.logger())
}

// runMCP serves MCP tools over stdio.
func runMCP(e *appEnv) error {
	if e.log == nil {
		log, err := newLogger(false)
		if err != nil {
			return err
		}
		e.log = log
		defer func() { _ = log.Sync() }()
	}

	if unknown := mcp.ValidateDisabledTools(e.cfg.DisabledTools); len(unknown) > 0 {
		e.log.Warn("unknown tools in disabled_tools", zap.Strings("tools", unknown))
	}
	if unknown := mcp.ValidateDisabledTypes(e.cfg.DisabledTypes); len(unknown) > 0 {
		e.log.Warn("unknown types in disabled_types", zap.Strings("types", unknown))
	}

	rt, err := e.newRuntime(e.clipboardOrMemory(), runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	return mcp.Run(e.db, rt.engine, e.cfg, Version)
}
