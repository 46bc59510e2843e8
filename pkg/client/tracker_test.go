package client

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolrun/pkg/eventbus"
	"github.com/harun/toolrun/pkg/gateway"
)

func finished(runID string, result any) eventbus.Event {
	return eventbus.Event{
		Kind:  eventbus.KindRunFinished,
		RunID: runID,
		Data:  eventbus.RunFinished{RunID: runID, Result: result},
	}
}

func newTracker(env *serverEnv, opts TrackerOptions) *Tracker {
	opts.Client = env.client
	if opts.Invoke == (InvokeOptions{}) {
		opts.Invoke = InvokeOptions{Async: true}
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Hour
	}
	return NewTracker(opts)
}

func TestTracker_SyncResultIsFinal(t *testing.T) {
	env := newServerEnv(t, nil)
	tr := newTracker(env, TrackerOptions{Invoke: InvokeOptions{Sync: true}})

	view, err := tr.Invoke(context.Background(), "sum", map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.True(t, view.Final)
	assert.Empty(t, view.RunID)
	assert.Equal(t, map[string]any{"total": float64(5)}, view.Result)
	assert.Empty(t, tr.ResultRunID())
}

func TestTracker_ErrorSurfacesVerbatim(t *testing.T) {
	env := newServerEnv(t, nil)
	tr := newTracker(env, TrackerOptions{Invoke: InvokeOptions{Sync: true}})

	view, err := tr.Invoke(context.Background(), "fail", nil)
	require.Error(t, err)
	assert.Equal(t, err.Error(), view.Error)
	assert.True(t, view.Final)
}

func TestTracker_StaleCompletionDiscarded(t *testing.T) {
	env := newServerEnv(t, nil)
	t.Cleanup(func() {
		env.gate.open("first")
		env.gate.open("second")
	})
	var changes []View
	var mu sync.Mutex
	tr := newTracker(env, TrackerOptions{OnChange: func(v View) {
		mu.Lock()
		changes = append(changes, v)
		mu.Unlock()
	}})
	ctx := context.Background()

	first, err := tr.Invoke(ctx, "slow", map[string]any{"key": "first"})
	require.NoError(t, err)
	second, err := tr.Invoke(ctx, "slow", map[string]any{"key": "second"})
	require.NoError(t, err)
	require.NotEqual(t, first.RunID, second.RunID, "each invocation gets its own run")
	assert.Equal(t, second.RunID, tr.ResultRunID())

	applied := tr.HandleEvent(ctx, finished(first.RunID, "old"))
	assert.False(t, applied, "a superseded run does not change the view")
	assert.False(t, tr.Pending(first.RunID))
	assert.Equal(t, second.RunID, tr.View().RunID)
	assert.False(t, tr.View().Final)

	applied = tr.HandleEvent(ctx, finished(second.RunID, "new"))
	assert.True(t, applied)
	assert.Equal(t, View{RunID: second.RunID, Result: "new", Final: true}, tr.View())

	assert.False(t, tr.HandleEvent(ctx, finished(second.RunID, "again")), "second terminal event is a no-op")
	assert.Equal(t, "new", tr.View().Result)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, changes, 3, "two invocations and one final result")
}

func TestTracker_UnknownRunIsNoop(t *testing.T) {
	env := newServerEnv(t, nil)
	tr := newTracker(env, TrackerOptions{})
	before := tr.View()

	assert.NotPanics(t, func() {
		assert.False(t, tr.HandleEvent(context.Background(), finished("never-issued", 1)))
		assert.False(t, tr.HandleEvent(context.Background(), eventbus.Event{
			Kind: eventbus.KindRunError,
			Data: eventbus.RunError{RunID: "never-issued", Error: "x"},
		}))
		assert.False(t, tr.HandleEvent(context.Background(), eventbus.Event{Kind: eventbus.KindHello, Data: eventbus.Hello{}}))
	})
	assert.Equal(t, before, tr.View())

	_, err := tr.AwaitFinal(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrUnknownRun)
}

func TestTracker_RunErrorEvent(t *testing.T) {
	env := newServerEnv(t, nil)
	t.Cleanup(func() { env.gate.open("k") })
	tr := newTracker(env, TrackerOptions{})

	view, err := tr.Invoke(context.Background(), "slow", map[string]any{"key": "k"})
	require.NoError(t, err)

	tr.HandleEvent(context.Background(), eventbus.Event{
		Kind: eventbus.KindRunError,
		Data: eventbus.RunError{RunID: view.RunID, Error: "tool slow failed: boom"},
	})
	assert.Equal(t, "tool slow failed: boom", tr.View().Error)
	assert.True(t, tr.View().Final)
}

func TestTracker_PollPath(t *testing.T) {
	env := newServerEnv(t, nil)
	tr := newTracker(env, TrackerOptions{PollInterval: 10 * time.Millisecond})
	ctx := context.Background()

	view, err := tr.Invoke(ctx, "sum", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.True(t, view.Optimistic)
	assert.Equal(t, map[string]any{"total": nil}, view.Result)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	result, err := tr.AwaitFinal(ctx, view.RunID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"total": float64(3)}, result)
	assert.True(t, tr.View().Final)

	assert.False(t, tr.HandleEvent(ctx, finished(view.RunID, "late")), "the push path loses once the poll settled")
	assert.Equal(t, map[string]any{"total": float64(3)}, tr.View().Result)
}

func TestTracker_AwaitFinalSettledByEvent(t *testing.T) {
	env := newServerEnv(t, nil)
	t.Cleanup(func() { env.gate.open("k") })
	tr := newTracker(env, TrackerOptions{})
	ctx := context.Background()

	view, err := tr.Invoke(ctx, "slow", map[string]any{"key": "k"})
	require.NoError(t, err)

	got := make(chan any, 1)
	go func() {
		result, err := tr.AwaitFinal(ctx, view.RunID)
		assert.NoError(t, err)
		got <- result
	}()

	time.Sleep(10 * time.Millisecond)
	tr.HandleEvent(ctx, finished(view.RunID, "pushed"))

	select {
	case result := <-got:
		assert.Equal(t, "pushed", result)
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitFinal not released by event")
	}
}

func TestTracker_Watch(t *testing.T) {
	env := newServerEnv(t, nil)
	tr := newTracker(env, TrackerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = tr.Watch(ctx) }()
	// Let the stream subscribe before the run can finish.
	time.Sleep(50 * time.Millisecond)

	view, err := tr.Invoke(ctx, "slow", map[string]any{"key": "w"})
	require.NoError(t, err)
	env.gate.open("w")

	assert.Eventually(t, func() bool {
		return tr.View().Final
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, view.RunID, tr.View().RunID)
	assert.Equal(t, map[string]any{"key": "w"}, tr.View().Result)
}

func TestTracker_OmittedResultIsFetched(t *testing.T) {
	env := newServerEnv(t, func(c *gateway.Config) { c.MaxEventResultBytes = 4 })
	tr := newTracker(env, TrackerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = tr.Watch(ctx) }()
	time.Sleep(50 * time.Millisecond)

	_, err := tr.Invoke(ctx, "slow", map[string]any{"key": "large"})
	require.NoError(t, err)
	env.gate.open("large")

	assert.Eventually(t, func() bool {
		return tr.View().Final
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, map[string]any{"key": "large"}, tr.View().Result)
}

func TestTracker_TerminalEventDuringTrack(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 2000; i++ {
		tr := NewTracker(TrackerOptions{PollInterval: time.Hour, Logger: zerolog.Nop()})
		runID := fmt.Sprintf("run-%d", i)

		delivered := make(chan struct{})
		go func() {
			defer close(delivered)
			deadline := time.Now().Add(time.Second)
			for !tr.Pending(runID) && time.Now().Before(deadline) {
				runtime.Gosched()
			}
			tr.HandleEvent(ctx, finished(runID, "final"))
		}()
		tr.Track(&Invocation{RunID: runID, Optimistic: "opt"})
		<-delivered

		view := tr.View()
		require.True(t, view.Final, "iteration %d kept %+v", i, view)
		require.Equal(t, "final", view.Result)

		result, err := tr.AwaitFinal(ctx, runID)
		require.NoError(t, err)
		require.Equal(t, "final", result)
	}
}

func TestTracker_CompletionBeforeTrack(t *testing.T) {
	ctx := context.Background()
	runErr := func(runID, msg string) eventbus.Event {
		return eventbus.Event{Kind: eventbus.KindRunError, Data: eventbus.RunError{RunID: runID, Error: msg}}
	}

	tests := []struct {
		name   string
		events []eventbus.Event
		want   View
	}{
		{
			name:   "finished",
			events: []eventbus.Event{finished("early", "done")},
			want:   View{RunID: "early", Result: "done", Final: true},
		},
		{
			name:   "errored",
			events: []eventbus.Event{runErr("early", "disk on fire")},
			want:   View{RunID: "early", Error: "disk on fire", Final: true},
		},
		{
			name: "evicted by later runs",
			events: func() []eventbus.Event {
				evs := []eventbus.Event{finished("early", "done")}
				for i := 0; i < earlyLimit; i++ {
					evs = append(evs, finished(fmt.Sprintf("other-%d", i), i))
				}
				return evs
			}(),
			want: View{RunID: "early", Result: "opt", Optimistic: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(TrackerOptions{PollInterval: time.Hour, Logger: zerolog.Nop()})
			for _, ev := range tt.events {
				assert.False(t, tr.HandleEvent(ctx, ev))
			}
			assert.Equal(t, tt.want, tr.Track(&Invocation{RunID: "early", Optimistic: "opt"}))
			assert.Equal(t, tt.want, tr.View())
			assert.Equal(t, !tt.want.Final, tr.Pending("early"))
		})
	}
}

func TestTracker_WatchWhileInvoking(t *testing.T) {
	env := newServerEnv(t, nil)
	tr := newTracker(env, TrackerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = tr.Watch(ctx) }()
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 25; i++ {
		view, err := tr.Invoke(ctx, "sum", map[string]any{"a": i, "b": 1})
		require.NoError(t, err)

		want := map[string]any{"total": float64(i + 1)}
		require.Eventually(t, func() bool {
			v := tr.View()
			return v.Final && v.RunID == view.RunID
		}, 2*time.Second, 5*time.Millisecond, "run %d never settled", i)
		assert.Equal(t, want, tr.View().Result)

		result, err := tr.AwaitFinal(ctx, view.RunID)
		require.NoError(t, err)
		assert.Equal(t, want, result)
	}
}
