package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Observer receives bus events. Notify runs on the publishing goroutine.
type Observer interface {
	Notify(evt Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(evt Event)

// Notify calls f.
func (f ObserverFunc) Notify(evt Event) { f(evt) }

// Bus fans events out to observers in registration order. Finished is delivered once.
type Bus struct {
	mu        sync.RWMutex
	observers []Observer
	finished  bool
	// deliver serialises notifications so observers never run concurrently.
	deliver sync.Mutex
	now     func() time.Time
	logger  *zap.Logger
}

// NewBus returns an empty bus. A nil logger is replaced with a no-op logger.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{now: time.Now, logger: logger}
}

// Subscribe appends o. Observers added later only see later events.
func (b *Bus) Subscribe(o Observer) {
	if o == nil {
		return
	}
	b.mu.Lock()
	b.observers = append(b.observers, o)
	b.mu.Unlock()
}

// Len returns the number of observers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers)
}

// PublishResult delivers res to every observer.
func (b *Bus) PublishResult(res *crawler.Result, counters crawler.Counters) {
	b.publish(Event{Kind: KindResult, Result: res, Counters: counters})
}

// PublishFinished delivers the terminal event. Calls after the first are ignored and
// reported as false.
func (b *Bus) PublishFinished(counters crawler.Counters) bool {
	b.mu.Lock()
	if b.finished {
		b.mu.Unlock()
		return false
	}
	b.finished = true
	b.mu.Unlock()
	b.publish(Event{Kind: KindFinished, Counters: counters})
	return true
}

// Finished reports whether the terminal event has been published.
func (b *Bus) Finished() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.finished
}

func (b *Bus) publish(evt Event) {
	evt.TS = b.now()
	b.mu.RLock()
	observers := append([]Observer(nil), b.observers...)
	b.mu.RUnlock()

	b.deliver.Lock()
	defer b.deliver.Unlock()
	for _, o := range observers {
		b.notify(o, evt)
	}
}

func (b *Bus) notify(o Observer, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("observer panicked", zap.String("kind", string(evt.Kind)), zap.Any("panic", r))
		}
	}()
	o.Notify(evt)
}
