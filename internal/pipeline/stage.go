package pipeline

import (
	"context"
	"fmt"

	"github.com/hpungsan/clipflow/internal/config"
	"github.com/hpungsan/clipflow/internal/heuristics"
)

// Stage is one text-to-text step. Transform may block on I/O and must
// return promptly once ctx is done.
type Stage interface {
	ID() string
	Name() string
	Transform(ctx context.Context, text string) (string, error)
}

type funcStage struct {
	id   string
	name string
	fn   func(context.Context, string) (string, error)
}

// Func adapts a function into a Stage.
func Func(id, name string, fn func(context.Context, string) (string, error)) Stage {
	return &funcStage{id: id, name: name, fn: fn}
}

func (s *funcStage) ID() string   { return s.id }
func (s *funcStage) Name() string { return s.name }

func (s *funcStage) Transform(ctx context.Context, text string) (string, error) {
	return s.fn(ctx, text)
}

// applier is a pure heuristic transform.
type applier interface {
	Apply(text string) (string, error)
}

func local(id, name string, a applier) Stage {
	return Func(id, name, func(ctx context.Context, text string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return a.Apply(text)
	})
}

// Detector builds the code detector configured by cfg.
func Detector(cfg *config.Config) *heuristics.Detector {
	return heuristics.NewDetector(heuristics.DetectorConfig{
		SkipThreshold:         cfg.Code.SkipThreshold,
		ConservativeThreshold: cfg.Code.ConservativeThreshold,
	})
}

// Strip builds the WhitespaceStrip configured by cfg.
func Strip(cfg *config.Config) *heuristics.WhitespaceStrip {
	return heuristics.NewWhitespaceStrip(heuristics.StripOptions{
		MaxStripWidth:        cfg.Strip.MaxStripWidth,
		TabWidth:             cfg.Strip.TabWidth,
		TrimTrailing:         config.BoolValue(cfg.Strip.TrimTrailing, true),
		NormalizeLineEndings: config.BoolValue(cfg.Strip.NormalizeLineEndings, true),
	}, Detector(cfg))
}

// Unwrap builds the SmartUnwrap configured by cfg.
func Unwrap(cfg *config.Config) *heuristics.SmartUnwrap {
	return heuristics.NewSmartUnwrap(heuristics.UnwrapOptions{
		MinConsecutiveLines:   cfg.Unwrap.MinConsecutiveLines,
		MinLineLength:         cfg.Unwrap.MinLineLength,
		MaxLineLength:         cfg.Unwrap.MaxLineLength,
		LengthTolerance:       cfg.Unwrap.LengthTolerance,
		PerParagraphCodeCheck: config.BoolValue(cfg.Unwrap.PerParagraphCodeCheck, true),
	}, Detector(cfg))
}

// StripStage wraps Strip(cfg) as a Stage.
func StripStage(cfg *config.Config) Stage {
	return local(config.StageWhitespaceStrip, "Whitespace Strip", Strip(cfg))
}

// UnwrapStage wraps Unwrap(cfg) as a Stage.
func UnwrapStage(cfg *config.Config) Stage {
	return local(config.StageSmartUnwrap, "Smart Unwrap", Unwrap(cfg))
}

// Heuristics returns the local stages named in cfg.Stages, in order,
// skipping any that need an external adapter.
func Heuristics(cfg *config.Config) []Stage {
	var stages []Stage
	for _, name := range cfg.Stages {
		switch name {
		case config.StageWhitespaceStrip:
			stages = append(stages, StripStage(cfg))
		case config.StageSmartUnwrap:
			stages = append(stages, UnwrapStage(cfg))
		}
	}
	return stages
}

// Build resolves cfg.Stages into stages. Local names map to heuristics;
// any other name must be supplied in adapters, keyed by stage name.
func Build(cfg *config.Config, adapters map[string]Stage) ([]Stage, error) {
	stages := make([]Stage, 0, len(cfg.Stages))
	for _, name := range cfg.Stages {
		switch name {
		case config.StageWhitespaceStrip:
			stages = append(stages, StripStage(cfg))
		case config.StageSmartUnwrap:
			stages = append(stages, UnwrapStage(cfg))
		default:
			st, ok := adapters[name]
			if !ok || st == nil {
				return nil, fmt.Errorf("stage %q has no adapter", name)
			}
			stages = append(stages, st)
		}
	}
	return stages, nil
}
