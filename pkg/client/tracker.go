package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolrun/pkg/eventbus"
	"github.com/harun/toolrun/pkg/runstore"
)

// ErrUnknownRun is returned when waiting on a run this tracker did not issue
// or has already settled
var ErrUnknownRun = errors.New("run is not pending")

const DefaultPollInterval = time.Second

// earlyLimit bounds the terminal events kept for runs not yet tracked
const earlyLimit = 64

// View is the state a caller displays for its latest invocation
type View struct {
	RunID  string
	Result any
	Error  string
	// Optimistic is set while Result is provisional.
	Optimistic bool
	Final      bool
}

// TrackerOptions configures a Tracker
type TrackerOptions struct {
	Client       *Client
	PollInterval time.Duration
	// Invoke controls how calls are made; Async asks the server for runs.
	Invoke   InvokeOptions
	OnChange func(View)
	Logger   zerolog.Logger
}

// outcome is a single-assignment slot for a run's final result. The push
// path and the poll path race to settle it; the first one wins.
type outcome struct {
	done   chan struct{}
	result any
	err    string
}

// Tracker reconciles optimistic results with final ones delivered later by
// the event stream or by polling. Only the most recent invocation may change
// the view; completions of superseded runs are discarded.
type Tracker struct {
	client   *Client
	interval time.Duration
	invoke   InvokeOptions
	onChange func(View)
	logger   zerolog.Logger

	mu          sync.Mutex
	pending     map[string]*outcome
	resultRunID string
	view        View

	// early holds outcomes that arrived before Track saw their run, which
	// happens when a run finishes before its 202 is read.
	early      map[string]*outcome
	earlyOrder []string
}

// NewTracker creates a new Tracker
func NewTracker(opts TrackerOptions) *Tracker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Tracker{
		client:   opts.Client,
		interval: opts.PollInterval,
		invoke:   opts.Invoke,
		onChange: opts.OnChange,
		logger:   opts.Logger,
		pending:  make(map[string]*outcome),
		early:    make(map[string]*outcome),
	}
}

// Invoke calls name and displays its immediate result: the finished result
// of a synchronous call, or the optimistic result of a background run.
// Any earlier run still pending stops governing the view.
func (t *Tracker) Invoke(ctx context.Context, name string, args map[string]any) (View, error) {
	inv, err := t.client.Invoke(ctx, name, args, t.invoke)
	if err != nil {
		return t.set("", View{Error: err.Error(), Final: true}), err
	}
	return t.Track(inv), nil
}

// Track makes inv the invocation governing the view. It serves invocations
// obtained outside Invoke, such as a resumed run.
func (t *Tracker) Track(inv *Invocation) View {
	if !inv.Async() {
		return t.set("", View{Result: inv.Result, Final: true})
	}

	runID := inv.RunID
	t.mu.Lock()
	view := View{RunID: runID, Result: inv.Optimistic, Optimistic: inv.Optimistic != nil}
	if out, ok := t.early[runID]; ok {
		t.forget(runID)
		view = View{RunID: runID, Result: out.result, Error: out.err, Final: true}
	} else {
		t.pending[runID] = &outcome{done: make(chan struct{})}
	}
	t.resultRunID = runID
	t.view = view
	t.mu.Unlock()

	t.notify(view)
	return view
}

func (t *Tracker) set(runID string, view View) View {
	t.mu.Lock()
	t.resultRunID = runID
	t.view = view
	t.mu.Unlock()
	t.notify(view)
	return view
}

func (t *Tracker) notify(view View) {
	if t.onChange != nil {
		t.onChange(view)
	}
}

// View returns the displayed state
func (t *Tracker) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view
}

// ResultRunID returns the run currently governing the view, if any
func (t *Tracker) ResultRunID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resultRunID
}

// Pending reports whether runID still awaits a terminal event
func (t *Tracker) Pending(runID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[runID]
	return ok
}

// settle records the final outcome of runID. It returns false when the run
// is not pending. The view changes only when runID still governs it.
func (t *Tracker) settle(runID string, result any, errMsg string) (applied bool) {
	t.mu.Lock()
	out, ok := t.pending[runID]
	if !ok {
		t.remember(runID, result, errMsg)
		t.mu.Unlock()
		t.logger.Debug().Str("run_id", runID).Msg("Holding completion of untracked run")
		return false
	}
	delete(t.pending, runID)
	out.result, out.err = result, errMsg
	close(out.done)

	if runID != t.resultRunID {
		t.mu.Unlock()
		t.logger.Debug().Str("run_id", runID).Msg("Discarding completion of superseded run")
		return false
	}
	t.view = View{RunID: runID, Result: result, Error: errMsg, Final: true}
	view := t.view
	t.mu.Unlock()

	t.notify(view)
	return true
}

// remember keeps an untracked run's outcome, evicting the oldest beyond
// earlyLimit. Callers hold t.mu.
func (t *Tracker) remember(runID string, result any, errMsg string) {
	if _, ok := t.early[runID]; ok || runID == t.resultRunID {
		return
	}
	if len(t.earlyOrder) >= earlyLimit {
		delete(t.early, t.earlyOrder[0])
		t.earlyOrder = t.earlyOrder[1:]
	}
	t.early[runID] = &outcome{result: result, err: errMsg}
	t.earlyOrder = append(t.earlyOrder, runID)
}

// forget drops runID from the early outcomes. Callers hold t.mu.
func (t *Tracker) forget(runID string) {
	delete(t.early, runID)
	for i, id := range t.earlyOrder {
		if id == runID {
			t.earlyOrder = append(t.earlyOrder[:i], t.earlyOrder[i+1:]...)
			return
		}
	}
}

// HandleEvent applies a run:finished or run:error event. It reports whether
// the view changed. Events for runs that are not pending are no-ops.
func (t *Tracker) HandleEvent(ctx context.Context, ev eventbus.Event) bool {
	switch data := ev.Data.(type) {
	case eventbus.RunFinished:
		if !data.ResultOmitted() {
			return t.settle(data.RunID, data.Result, "")
		}
		if !t.Pending(data.RunID) {
			return false
		}
		run, err := t.client.FetchRun(ctx, data.RunID)
		if err != nil {
			t.logger.Warn().Err(err).Str("run_id", data.RunID).Msg("Failed to fetch omitted result")
			return false
		}
		return t.settleRun(run)
	case eventbus.RunError:
		return t.settle(data.RunID, nil, data.Error)
	}
	return false
}

func (t *Tracker) settleRun(run runstore.Run) bool {
	switch run.Status {
	case runstore.StatusFinished, runstore.StatusPaused:
		return t.settle(run.ID, run.Result, "")
	case runstore.StatusErrored:
		return t.settle(run.ID, nil, run.Error)
	}
	return false
}

// Watch applies events from the server's stream until ctx is done
func (t *Tracker) Watch(ctx context.Context) error {
	return t.client.Stream(ctx, func(ev eventbus.Event) {
		if ev.Kind.IsTerminal() {
			t.HandleEvent(ctx, ev)
		}
	})
}

// AwaitFinal waits for runID to settle, polling the server meanwhile. A
// terminal event handled concurrently settles it just the same. A run that
// already settled the view returns its final result at once.
func (t *Tracker) AwaitFinal(ctx context.Context, runID string) (any, error) {
	t.mu.Lock()
	out, ok := t.pending[runID]
	view := t.view
	t.mu.Unlock()
	if !ok {
		if view.RunID == runID && view.Final {
			if view.Error != "" {
				return nil, errors.New(view.Error)
			}
			return view.Result, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-out.done:
			if out.err != "" {
				return nil, errors.New(out.err)
			}
			return out.result, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			run, err := t.client.FetchRun(ctx, runID)
			switch {
			case errors.Is(err, runstore.ErrRunNotFound):
				t.settle(runID, nil, err.Error())
			case err != nil:
				t.logger.Debug().Err(err).Str("run_id", runID).Msg("Poll failed")
			default:
				t.settleRun(run)
			}
		}
	}
}
