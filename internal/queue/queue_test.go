package queue

import (
	"context"
	"sync"
	"sync/atomic"
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

func req(id string) Request {
	return Request{ID: id, Trigger: TriggerHotkey, Timeout: time.Second, SubmittedAt: time.Now()}
}

func TestQueue_SecondStartRejected(t *testing.T) {
	q := New()
	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	require.NoError(t, q.Start(req("A"), cancelA))
	assert.True(t, q.IsProcessing())

	err := q.Start(req("B"), func() {})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyProcessing))
	ce, _ := errors.As(err)
	assert.Equal(t, "A", ce.Details["current_request_id"])

	cur, ok := q.Current()
	require.True(t, ok)
	assert.Equal(t, "A", cur.ID)

	assert.True(t, q.Cancel())
	assert.False(t, q.IsProcessing())
	_, ok = q.Current()
	assert.False(t, ok)
	assert.ErrorIs(t, ctxA.Err(), context.Canceled)
}

func TestQueue_FinishReturnsToIdle(t *testing.T) {
	q := New()
	require.NoError(t, q.Start(req("A"), func() {}))
	assert.True(t, q.Finish("A"))
	assert.False(t, q.IsProcessing())

	require.NoError(t, q.Start(req("B"), func() {}))
	assert.True(t, q.Finish("B"))

	assert.Equal(t, Stats{Started: 2, Finished: 2}, q.Stats())
}

func TestQueue_StaleFinishIgnored(t *testing.T) {
	q := New()
	require.NoError(t, q.Start(req("A"), func() {}))
	q.Cancel()
	require.NoError(t, q.Start(req("B"), func() {}))

	assert.False(t, q.Finish("A"), "A was cancelled; its cleanup must not clear B")
	cur, ok := q.Current()
	require.True(t, ok)
	assert.Equal(t, "B", cur.ID)
}

func TestQueue_CancelWhenIdle(t *testing.T) {
	q := New()
	assert.False(t, q.Cancel())
	assert.False(t, q.Finish("nothing"))
	assert.False(t, q.IsProcessing())
}

func TestQueue_BeginRelease(t *testing.T) {
	q := New()
	ctx, release, err := q.Begin(context.Background(), req("A"))
	require.NoError(t, err)
	assert.True(t, q.IsProcessing())

	_, _, err = q.Begin(context.Background(), req("B"))
	assert.True(t, errors.Is(err, errors.ErrAlreadyProcessing))

	release()
	release()
	assert.False(t, q.IsProcessing())
	assert.Error(t, ctx.Err())
}

func TestQueue_CancelReachesBeginContext(t *testing.T) {
	q := New()
	ctx, release, err := q.Begin(context.Background(), req("A"))
	require.NoError(t, err)
	defer release()

	q.Cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("cancel did not reach the run context")
	}
}

func TestQueue_Wait(t *testing.T) {
	q := New()
	require.NoError(t, q.Wait(context.Background()), "idle queue returns immediately")

	require.NoError(t, q.Start(req("A"), func() {}))

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(short), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- q.Wait(context.Background()) }()
	q.Finish("A")

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Finish")
	}
}

func TestQueue_ConcurrentStartsAdmitOne(t *testing.T) {
	q := New()
	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if q.Start(req(time.Now().String()), func() {}) == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), admitted.Load())
	assert.Equal(t, int64(49), q.Stats().Rejected)
}
