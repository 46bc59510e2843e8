package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/harun/toolrun/internal/metrics"
)

// DefaultBuffer is the per-subscriber channel size when none is configured
const DefaultBuffer = 256

// Options configures a Bus
type Options struct {
	Buffer  int
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Bus fans events out to subscribers
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	buffer  int
	seq     uint64
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New creates a new event bus
func New(opts Options) *Bus {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	return &Bus{
		subs:    make(map[string]*Subscription),
		buffer:  opts.Buffer,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// Subscription receives events of the kinds it was created for
type Subscription struct {
	ID    string
	C     <-chan Event
	ch    chan Event
	kinds map[Kind]bool
	bus   *Bus
	once  sync.Once
}

// Close unsubscribes and closes C. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.ID)
		close(s.ch)
		s.bus.mu.Unlock()
	})
}

func (s *Subscription) wants(k Kind) bool {
	return len(s.kinds) == 0 || s.kinds[k]
}

// Subscribe registers a subscriber for kinds, or for every kind when none
// are given.
func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	id, _ := gonanoid.New()

	ch := make(chan Event, b.buffer)
	sub := &Subscription{ID: id, C: ch, ch: ch, bus: b}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	b.logger.Debug().Str("subscriber", id).Int("kinds", len(kinds)).Msg("Subscriber added")
	return sub
}

// Publish stamps and delivers an event. It never blocks: a subscriber with a
// full buffer misses the event.
func (b *Bus) Publish(kind Kind, runID, tool string, data any) Event {
	return b.PublishEvent(Event{Kind: kind, RunID: runID, Tool: tool, Data: data})
}

// PublishEvent delivers ev, assigning Seq and Timestamp when unset
func (b *Bus) PublishEvent(ev Event) Event {
	if ev.Seq == 0 {
		ev.Seq = b.nextSeq()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.subs {
		if !sub.wants(ev.Kind) {
			continue
		}
		select {
		case sub.ch <- ev:
			delivered++
		default:
			b.metrics.EventDropped(string(ev.Kind))
			b.logger.Warn().
				Str("subscriber", sub.ID).
				Str("event", string(ev.Kind)).
				Str("run_id", ev.RunID).
				Int64("seq", ev.Seq).
				Msg("Subscriber buffer full, event dropped")
		}
	}

	b.logger.Debug().
		Str("event", string(ev.Kind)).
		Str("run_id", ev.RunID).
		Int64("seq", ev.Seq).
		Int("delivered", delivered).
		Msg("Event published")
	return ev
}

// Len returns the number of active subscribers
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) nextSeq() int64 {
	return int64(atomic.AddUint64(&b.seq, 1))
}
