package runstore

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolrun/pkg/planner"
)

func TestLifecycle_Finish(t *testing.T) {
	s := New()
	r, err := s.Create("r1", "sum")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, r.Status)

	require.NoError(t, s.Start("r1"))
	require.NoError(t, s.Finish("r1", map[string]any{"total": 5}))

	got, err := s.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, got.Status)
	assert.Equal(t, map[string]any{"total": 5}, got.Result)
	assert.True(t, got.Status.Terminal())
}

func TestLifecycle_Fail(t *testing.T) {
	s := New()
	_, err := s.Create("r1", "sum")
	require.NoError(t, err)
	require.NoError(t, s.Start("r1"))
	require.NoError(t, s.Fail("r1", errors.New("boom")))

	got, err := s.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, StatusErrored, got.Status)
	assert.Equal(t, "boom", got.Error)
}

func TestLifecycle_PauseResume(t *testing.T) {
	s := New()
	_, err := s.Create("r1", "approve_then_delete")
	require.NoError(t, err)
	require.NoError(t, s.Start("r1"))

	cp := &planner.Checkpoint{Tool: "approve_then_delete", Index: 0, Path: []int{0}}
	require.NoError(t, s.Pause("r1", map[string]any{"__PLAN_PAUSED__": true}, cp))

	got, err := s.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, got.Status)
	assert.Same(t, cp, got.Checkpoint)

	require.NoError(t, s.Resume("r1"))
	require.NoError(t, s.Finish("r1", "done"))

	got, err = s.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, got.Status)
	assert.Nil(t, got.Checkpoint)
}

func TestInvalidTransitions(t *testing.T) {
	s := New()
	_, err := s.Create("r1", "sum")
	require.NoError(t, err)

	tests := []struct {
		name string
		op   func() error
	}{
		{name: "finish pending", op: func() error { return s.Finish("r1", nil) }},
		{name: "fail pending", op: func() error { return s.Fail("r1", nil) }},
		{name: "resume pending", op: func() error { return s.Resume("r1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.op(), ErrInvalidTransition)
		})
	}

	require.NoError(t, s.Start("r1"))
	require.NoError(t, s.Finish("r1", 1))
	assert.ErrorIs(t, s.Finish("r1", 2), ErrInvalidTransition)

	got, err := s.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Result, "second terminal write must not overwrite the first")
}

func TestUnknownRun(t *testing.T) {
	s := New()
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.Start("missing"), ErrRunNotFound)
}

func TestCreateDuplicate(t *testing.T) {
	s := New()
	_, err := s.Create("r1", "sum")
	require.NoError(t, err)
	_, err = s.Create("r1", "sum")
	assert.Error(t, err)
}

func TestSweep(t *testing.T) {
	s := New()
	now := time.Now()
	s.now = func() time.Time { return now }

	for _, id := range []string{"old-finished", "running"} {
		_, err := s.Create(id, "t")
		require.NoError(t, err)
		require.NoError(t, s.Start(id))
	}
	require.NoError(t, s.Finish("old-finished", nil))

	now = now.Add(time.Hour)
	_, err := s.Create("fresh", "t")
	require.NoError(t, err)
	require.NoError(t, s.Start("fresh"))
	require.NoError(t, s.Finish("fresh", nil))

	removed := s.Sweep(10 * time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, s.Len())

	_, err = s.Get("old-finished")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = s.Get("running")
	assert.NoError(t, err)
}
