package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/clipflow/internal/config"
	"github.com/hpungsan/clipflow/internal/errors"
)

func stageIDs(stages []Stage) []string {
	ids := make([]string, len(stages))
	for i, s := range stages {
		ids[i] = s.ID()
	}
	return ids
}

func TestHeuristics_FollowsConfigOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Stages = []string{config.StageSmartUnwrap, config.StageRemote, config.StageWhitespaceStrip}

	assert.Equal(t, []string{config.StageSmartUnwrap, config.StageWhitespaceStrip}, stageIDs(Heuristics(cfg)))
}

func TestBuild_ResolvesAdapters(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Stages = []string{config.StageWhitespaceStrip, config.StageRemote}

	_, err := Build(cfg, nil)
	assert.ErrorContains(t, err, `"remote"`)

	remote := Func(config.StageRemote, "Remote", func(_ context.Context, s string) (string, error) { return s, nil })
	stages, err := Build(cfg, map[string]Stage{config.StageRemote: remote})
	require.NoError(t, err)
	assert.Equal(t, []string{config.StageWhitespaceStrip, config.StageRemote}, stageIDs(stages))
}

func TestDefaultHeuristicPipeline(t *testing.T) {
	cfg := config.DefaultConfig()
	p := New(Heuristics(cfg), Config{Timeout: cfg.Timeout()})

	input := "  Clipboard middleware watches the pasteboard and cleans up text that\n" +
		"  arrives with hard line breaks from terminals, emails, and PDF viewers\n" +
		"  so that the pasted result reads as one continuous paragraph again."

	res, err := p.Execute(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, res.StageResults, 2)
	assert.Equal(t, "Clipboard middleware watches the pasteboard and cleans up text that\n"+
		"arrives with hard line breaks from terminals, emails, and PDF viewers\n"+
		"so that the pasted result reads as one continuous paragraph again.", res.StageResults[0].Output)
	assert.Equal(t, "Clipboard middleware watches the pasteboard and cleans up text that "+
		"arrives with hard line breaks from terminals, emails, and PDF viewers "+
		"so that the pasted result reads as one continuous paragraph again.", res.FinalOutput)
}

func TestLocalStage_EmptyInputFails(t *testing.T) {
	p := New([]Stage{StripStage(config.DefaultConfig())}, Config{})

	_, err := p.Execute(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStageFailed))
	ce, _ := errors.As(err)
	assert.True(t, errors.Is(ce.Cause, errors.ErrEmptyInput))
}

func TestLocalStage_HonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := UnwrapStage(config.DefaultConfig()).Transform(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}
