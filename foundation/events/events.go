// Package events allows for the registering and receiving of events.
package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// messageBuffer is the number of messages a slow receiver can fall behind
// before messages are dropped.
const messageBuffer = 100

// Events maintains a mapping of unique id and channels so goroutines
// can register and receive events.
type Events struct {
	m  map[string]chan string
	mu sync.RWMutex
}

// New constructs an events for registering and receiving events.
func New() *Events {
	return &Events{
		m: make(map[string]chan string),
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Acquire registers a new receiver and returns its id along with the
// channel events are delivered on.
func (evt *Events) Acquire() (string, <-chan string) {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan string, messageBuffer)
	evt.m[id] = ch

	return id, ch
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Send signals a message to every registered channel. Send will not block
// waiting for a receiver on any given channel.
func (evt *Events) Send(s string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.m {
		select {
		case ch <- s:
		default:
		}
	}
}

// Handler returns a function with the shape the blockchain packages use to
// report events. Every message is formatted and sent to all receivers.
func (evt *Events) Handler() func(v string, args ...any) {
	return func(v string, args ...any) {
		evt.Send(fmt.Sprintf(v, args...))
	}
}
