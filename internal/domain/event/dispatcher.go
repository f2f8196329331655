package event

import (
	"sync"

	"github.com/inkpress/assetloader/internal/domain"
)

// Listener receives progress snapshots. It runs on the publishing goroutine
// and must not block.
type Listener func(progress domain.LoadProgress)

// Publisher is the side of the channel a loader writes to
type Publisher interface {
	// Publish fans a snapshot out to every current listener
	Publish(progress domain.LoadProgress)
}

// Subscriber is the side of the channel a consumer reads from
type Subscriber interface {
	// Subscribe registers a listener and returns a function that removes it
	Subscribe(listener Listener) (unsubscribe func())
}

// ProgressChannel is an in-memory publish-subscribe channel for load progress.
// Publishing is a synchronous fan-out; concurrent loads may share one channel
// and are told apart by LoadProgress.LoadID.
type ProgressChannel struct {
	mu        sync.RWMutex
	listeners []subscription
	nextID    uint64
}

type subscription struct {
	id       uint64
	listener Listener
}

// Ensure ProgressChannel implements both sides
var (
	_ Publisher  = (*ProgressChannel)(nil)
	_ Subscriber = (*ProgressChannel)(nil)
)

// NewProgressChannel creates an empty ProgressChannel
func NewProgressChannel() *ProgressChannel {
	return &ProgressChannel{}
}

// Publish sends a snapshot to all listeners in subscription order
func (c *ProgressChannel) Publish(progress domain.LoadProgress) {
	c.mu.RLock()
	listeners := make([]Listener, len(c.listeners))
	for i, s := range c.listeners {
		listeners[i] = s.listener
	}
	c.mu.RUnlock()

	// Called outside the lock so a listener may unsubscribe itself
	for _, l := range listeners {
		l(progress)
	}
}

// Subscribe registers a listener. The returned function is safe to call more
// than once.
func (c *ProgressChannel) Subscribe(listener Listener) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, subscription{id: id, listener: listener})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { c.remove(id) })
	}
}

func (c *ProgressChannel) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.listeners {
		if s.id == id {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners
func (c *ProgressChannel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners)
}

// PublisherFunc adapts a plain function to Publisher
type PublisherFunc func(progress domain.LoadProgress)

// Publish calls f(progress)
func (f PublisherFunc) Publish(progress domain.LoadProgress) {
	f(progress)
}

// Tee publishes every snapshot to each of the given publishers in order
func Tee(publishers ...Publisher) Publisher {
	return PublisherFunc(func(p domain.LoadProgress) {
		for _, pub := range publishers {
			if pub != nil {
				pub.Publish(p)
			}
		}
	})
}

// NullPublisher is a no-op publisher for when progress is not needed
type NullPublisher struct{}

// Publish does nothing
func (NullPublisher) Publish(domain.LoadProgress) {}
