package pipeline

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hpungsan/clipflow/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func upper() Stage {
	return Func("upper", "Upper", func(_ context.Context, s string) (string, error) {
		return strings.ToUpper(s), nil
	})
}

func suffix(id, sfx string) Stage {
	return Func(id, id, func(_ context.Context, s string) (string, error) {
		return s + sfx, nil
	})
}

func failing(id string, err error) Stage {
	return Func(id, id, func(context.Context, string) (string, error) {
		return "", err
	})
}

// blocking ignores its context and returns only when release is closed.
func blocking(t *testing.T) Stage {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	return Func("stuck", "Stuck", func(context.Context, string) (string, error) {
		<-release
		return "late", nil
	})
}

// cooperative returns as soon as its context is done.
func cooperative(started chan<- struct{}) Stage {
	return Func("remote", "Remote", func(ctx context.Context, _ string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
}

func TestExecute_EmptyPipeline(t *testing.T) {
	for _, input := range []string{"", "text", "  \n"} {
		res, err := New(nil, Config{}).Execute(context.Background(), input)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrPipelineEmpty))
		require.NotNil(t, res)
		assert.Equal(t, OutcomeFailure, res.Outcome)
		assert.Empty(t, res.StageResults)
	}
}

func TestExecute_ThreadsOutputsInOrder(t *testing.T) {
	p := New([]Stage{upper(), suffix("a", "-a"), suffix("b", "-b")}, Config{Timeout: time.Second})

	res, err := p.Execute(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "HI-a-b", res.FinalOutput)
	require.Len(t, res.StageResults, 3)

	assert.Equal(t, "upper", res.StageResults[0].StageID)
	assert.Equal(t, "Upper", res.StageResults[0].Name)
	assert.Equal(t, "HI", res.StageResults[0].Output)
	assert.Equal(t, "HI-a", res.StageResults[1].Output)
	assert.Equal(t, 2, res.StageResults[2].Index)
	assert.Positive(t, res.TotalDuration)
}

func TestExecute_StageFailedKeepsPartialResults(t *testing.T) {
	cause := stderrors.New("boom")
	p := New([]Stage{suffix("stage1", "!"), failing("stage2", cause)}, Config{Timeout: time.Second})

	res, err := p.Execute(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStageFailed))
	assert.ErrorIs(t, err, cause)

	ce, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, 1, ce.Details["stage_index"])
	assert.Equal(t, "stage2", ce.Details["stage_id"])
	assert.Equal(t, 1, ce.Details["completed_stages"])

	require.NotNil(t, res)
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.Empty(t, res.FinalOutput)
	require.Len(t, res.StageResults, 1)
	assert.Equal(t, "stage1", res.StageResults[0].StageID)
	assert.Equal(t, "x!", res.StageResults[0].Output)
	assert.Equal(t, err, res.Err)
}

func TestExecute_FailFastSkipsLaterStages(t *testing.T) {
	ran := false
	later := Func("later", "Later", func(_ context.Context, s string) (string, error) {
		ran = true
		return s, nil
	})
	p := New([]Stage{failing("first", stderrors.New("nope")), later}, Config{})

	_, err := p.Execute(context.Background(), "x")
	require.Error(t, err)
	assert.False(t, ran)
}

func TestExecute_RemoteCauseStaysRetryable(t *testing.T) {
	cause := errors.NewRemote(errors.ErrRemoteRateLimited, "slow down", nil)
	p := New([]Stage{failing("remote", cause)}, Config{})

	_, err := p.Execute(context.Background(), "x")
	assert.True(t, errors.Is(err, errors.ErrStageFailed))
	assert.True(t, errors.Retryable(err))
}

func TestExecute_TimeoutWithStuckStage(t *testing.T) {
	budget := 100 * time.Millisecond
	p := New([]Stage{suffix("fast", "."), blocking(t)}, Config{Timeout: budget})

	start := time.Now()
	res, err := p.Execute(context.Background(), "x")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPipelineTimeout))
	assert.GreaterOrEqual(t, elapsed, budget)
	assert.Less(t, elapsed, budget+400*time.Millisecond)

	ce, _ := errors.As(err)
	assert.Equal(t, int64(100), ce.Details["timeout_ms"])
	assert.Equal(t, OutcomeFailure, res.Outcome)
	require.Len(t, res.StageResults, 1)
}

func TestExecute_BudgetCoversWholeRun(t *testing.T) {
	sleepy := func(id string) Stage {
		return Func(id, id, func(ctx context.Context, s string) (string, error) {
			select {
			case <-time.After(40 * time.Millisecond):
				return s, nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		})
	}
	// Each stage fits the budget alone; together they do not.
	p := New([]Stage{sleepy("a"), sleepy("b"), sleepy("c")}, Config{Timeout: 100 * time.Millisecond})

	res, err := p.Execute(context.Background(), "x")
	assert.True(t, errors.Is(err, errors.ErrPipelineTimeout))
	assert.Len(t, res.StageResults, 2)
}

func TestExecute_ExternalCancel(t *testing.T) {
	started := make(chan struct{})
	p := New([]Stage{suffix("first", "."), cooperative(started)}, Config{Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	res, err := p.Execute(ctx, "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPipelineCancelled))
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Len(t, res.StageResults, 1)
}

func TestExecute_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New([]Stage{upper()}, Config{}).Execute(ctx, "x")
	assert.True(t, errors.Is(err, errors.ErrPipelineCancelled))
	assert.Empty(t, res.StageResults)
}

func TestExecute_PanicBecomesStageFailure(t *testing.T) {
	p := New([]Stage{Func("bad", "Bad", func(context.Context, string) (string, error) {
		panic("nil map")
	})}, Config{})

	_, err := p.Execute(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStageFailed))
	assert.Contains(t, err.Error(), "nil map")
}

func TestExecute_UnsupportedPolicy(t *testing.T) {
	_, err := New([]Stage{upper()}, Config{Policy: "best_effort"}).Execute(context.Background(), "x")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestNew_DefaultsToFailFast(t *testing.T) {
	p := New([]Stage{upper()}, Config{})
	assert.Equal(t, PolicyFailFast, p.Config().Policy)
	assert.Len(t, p.Stages(), 1)
}
