package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumenlib/lumen-server/internal/id"
)

// Handler reacts to one event. A returned error is logged by Broadcast and
// returned by Intercept.
type Handler func(ctx context.Context, evt Event) error

// Subscription identifies a registered handler.
type Subscription struct {
	ID   string
	Name string
}

type subscriber struct {
	id      string
	handler Handler
	once    bool
	fired   atomic.Bool
}

// Bus delivers events synchronously, in registration order, within one process.
// Safe for concurrent use.
type Bus struct {
	libraryID string
	logger    *slog.Logger
	now       func() time.Time

	mu   sync.RWMutex
	subs map[string][]*subscriber
}

// New creates a Bus for one library.
func New(libraryID string, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		libraryID: libraryID,
		logger:    logger,
		now:       time.Now,
		subs:      make(map[string][]*subscriber),
	}
}

// Subscribe registers h for name. Use All to receive every event.
func (b *Bus) Subscribe(name string, h Handler) Subscription {
	return b.add(name, h, false)
}

// SubscribeOnce registers h for the next delivery of name only.
func (b *Bus) SubscribeOnce(name string, h Handler) Subscription {
	return b.add(name, h, true)
}

func (b *Bus) add(name string, h Handler, once bool) Subscription {
	sub := &subscriber{id: id.MustGenerate(id.PrefixSubscription), handler: h, once: once}

	b.mu.Lock()
	b.subs[name] = append(b.subs[name], sub)
	count := len(b.subs[name])
	b.mu.Unlock()

	if count > MaxListeners {
		b.logger.Warn("listener count above limit",
			slog.String("library_id", b.libraryID),
			slog.String("event", name),
			slog.Int("listeners", count),
			slog.Int("limit", MaxListeners))
	}

	return Subscription{ID: sub.id, Name: name}
}

// Unsubscribe removes a subscription and reports whether it was registered.
func (b *Bus) Unsubscribe(s Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(s.Name, s.ID)
}

func (b *Bus) removeLocked(name, subID string) bool {
	list := b.subs[name]
	for i, sub := range list {
		if sub.id != subID {
			continue
		}
		next := make([]*subscriber, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, name)
		} else {
			b.subs[name] = next
		}
		return true
	}
	return false
}

// ListenerCount returns the number of handlers registered for name.
func (b *Bus) ListenerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

// Broadcast delivers an event to every current subscriber of name, then to All
// subscribers. A failing or panicking handler is logged and the next one still runs.
func (b *Bus) Broadcast(ctx context.Context, name string, data any) Event {
	evt := b.stamp(name, data)

	var delivered, failed int
	for _, sub := range b.snapshot(name) {
		if !b.claim(name, sub) {
			continue
		}
		if err := b.invoke(ctx, sub, evt); err != nil {
			failed++
			b.logger.Warn("event handler failed",
				slog.String("library_id", b.libraryID),
				slog.String("event", name),
				slog.String("subscription", sub.id),
				slog.String("error", err.Error()))
			continue
		}
		delivered++
	}

	b.logger.Debug("event broadcast",
		slog.String("library_id", b.libraryID),
		slog.String("event", name),
		slog.Group("stats",
			slog.Int("delivered", delivered),
			slog.Int("failed", failed)))

	return evt
}

// Intercept delivers like Broadcast but stops at the first handler error and returns
// it. Used for hooks that may veto an action, such as client::before_connect.
func (b *Bus) Intercept(ctx context.Context, name string, data any) error {
	evt := b.stamp(name, data)
	for _, sub := range b.snapshot(name) {
		if !b.claim(name, sub) {
			continue
		}
		if err := b.invoke(ctx, sub, evt); err != nil {
			return err
		}
	}
	return nil
}

// stamp builds the event. Map payloads also get the name under "event" when absent.
func (b *Bus) stamp(name string, data any) Event {
	if m, ok := data.(map[string]any); ok {
		if _, has := m["event"]; !has {
			m = maps.Clone(m)
			m["event"] = name
			data = m
		}
	}
	return Event{
		Name:      name,
		LibraryID: b.libraryID,
		Timestamp: b.now(),
		Data:      data,
	}
}

func (b *Bus) snapshot(name string) []*subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*subscriber, 0, len(b.subs[name])+len(b.subs[All]))
	out = append(out, b.subs[name]...)
	if name != All {
		out = append(out, b.subs[All]...)
	}
	return out
}

// claim reports whether sub should run, retiring one-shot subscribers on first use.
func (b *Bus) claim(name string, sub *subscriber) bool {
	if !sub.once {
		return true
	}
	if !sub.fired.CompareAndSwap(false, true) {
		return false
	}
	b.mu.Lock()
	if !b.removeLocked(name, sub.id) {
		b.removeLocked(All, sub.id)
	}
	b.mu.Unlock()
	return true
}

func (b *Bus) invoke(ctx context.Context, sub *subscriber, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return sub.handler(ctx, evt)
}
