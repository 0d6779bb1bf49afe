package event

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	tomb "gopkg.in/tomb.v2"
)

// Handler receives events on the bus goroutine. It must not block for long;
// slow work belongs on its own goroutine.
type Handler func(Event)

// Bus fans events out to subscribers from a single dispatch goroutine, so
// subscribers observe events in publication order. Publishing never blocks.
type Bus struct {
	events  chan Event
	logger  *slog.Logger
	dropped atomic.Uint64

	mu     sync.RWMutex
	subs   map[int]Handler
	nextID int

	t *tomb.Tomb
}

// NewBus creates a bus buffering up to size undelivered events.
func NewBus(size int, logger *slog.Logger) *Bus {
	if size <= 0 {
		size = 1
	}
	return &Bus{
		events: make(chan Event, size),
		logger: logger,
		subs:   make(map[int]Handler),
	}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish enqueues e. When the buffer is full the event is dropped and a
// warning is logged.
func (b *Bus) Publish(e Event) {
	select {
	case b.events <- e:
	default:
		n := b.dropped.Add(1)
		b.logger.Warn("event dropped, bus buffer full",
			slog.String("event", e.Kind.String()),
			slog.Uint64("dropped_total", n),
		)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Start launches the dispatch goroutine. It stops when ctx is done or Stop
// is called.
func (b *Bus) Start(ctx context.Context) {
	t, _ := tomb.WithContext(ctx)
	b.t = t
	t.Go(func() error {
		return b.loop(t)
	})
}

// Stop delivers any buffered events, then stops the dispatch goroutine.
func (b *Bus) Stop() error {
	if b.t == nil {
		return nil
	}
	b.t.Kill(nil)
	if err := b.t.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (b *Bus) loop(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			b.drain()
			return nil
		case e := <-b.events:
			b.dispatch(e)
		}
	}
}

func (b *Bus) drain() {
	for {
		select {
		case e := <-b.events:
			b.dispatch(e)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.call(h, e)
	}
}

func (b *Bus) call(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				slog.String("event", e.Kind.String()),
				slog.Any("panic", r),
			)
		}
	}()
	h(e)
}
