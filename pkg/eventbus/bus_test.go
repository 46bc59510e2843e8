package eventbus

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolrun/internal/metrics"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublish_FanOut(t *testing.T) {
	bus := New(Options{Logger: zerolog.Nop()})
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Close()
	defer b.Close()

	ev := bus.Publish(KindRunFinished, "r1", "sum", RunFinished{RunID: "r1", Result: 5})

	assert.Equal(t, int64(1), ev.Seq)
	assert.NotZero(t, ev.Timestamp)
	for _, sub := range []*Subscription{a, b} {
		got := receive(t, sub)
		assert.Equal(t, KindRunFinished, got.Kind)
		assert.Equal(t, "r1", got.RunID)
		assert.Equal(t, RunFinished{RunID: "r1", Result: 5}, got.Data)
	}
}

func TestPublish_KindFilter(t *testing.T) {
	bus := New(Options{Logger: zerolog.Nop()})
	sub := bus.Subscribe(KindRunResume)
	defer sub.Close()

	bus.Publish(KindUIOpen, "r1", "t", nil)
	bus.Publish(KindRunResume, "r1", "t", RunResume{RunID: "r1"})

	got := receive(t, sub)
	assert.Equal(t, KindRunResume, got.Kind)
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event %v", ev.Kind)
	default:
	}
}

func TestPublish_SequenceIsMonotonic(t *testing.T) {
	bus := New(Options{Logger: zerolog.Nop()})
	sub := bus.Subscribe()
	defer sub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(KindHello, "", "", Hello{})
		}()
	}
	wg.Wait()

	seen := map[int64]bool{}
	for i := 0; i < 50; i++ {
		ev := receive(t, sub)
		assert.False(t, seen[ev.Seq], "duplicate seq %d", ev.Seq)
		seen[ev.Seq] = true
	}
}

func TestPublish_DropsWhenBufferFull(t *testing.T) {
	m := metrics.NewMetrics()
	bus := New(Options{Buffer: 1, Logger: zerolog.Nop(), Metrics: m})
	sub := bus.Subscribe()
	defer sub.Close()

	bus.Publish(KindUIUpdate, "r", "t", nil)
	done := make(chan struct{})
	go func() {
		bus.Publish(KindUIUpdate, "r", "t", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BusEventsDroppedTotal.WithLabelValues(string(KindUIUpdate))))
}

func TestSubscription_Close(t *testing.T) {
	bus := New(Options{Logger: zerolog.Nop()})
	sub := bus.Subscribe()
	require.Equal(t, 1, bus.Len())
	require.NotEmpty(t, sub.ID)

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, bus.Len())

	_, ok := <-sub.C
	assert.False(t, ok)

	assert.NotPanics(t, func() { bus.Publish(KindHello, "", "", nil) })
}

func TestKindHelpers(t *testing.T) {
	assert.True(t, KindUIOpen.IsUI())
	assert.True(t, KindUIClose.IsUI())
	assert.False(t, KindRunFinished.IsUI())
	assert.True(t, KindRunFinished.IsTerminal())
	assert.True(t, KindRunError.IsTerminal())
	assert.False(t, KindRunResume.IsTerminal())
}

func TestRunFinished_JSON(t *testing.T) {
	hasResult := false
	raw, err := json.Marshal(RunFinished{RunID: "r1", HasResult: &hasResult})
	require.NoError(t, err)
	assert.JSONEq(t, `{"runId":"r1","hasResult":false}`, string(raw))

	var decoded RunFinished
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, decoded.ResultOmitted())

	raw, err = json.Marshal(RunFinished{RunID: "r2", Result: map[string]any{"total": 5}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"runId":"r2","result":{"total":5}}`, string(raw))
}
