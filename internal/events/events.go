// Package events implements the event channel between the backend core and
// the front-end shell. Transfer progress is published on named channels and
// forwarded to whatever dispatch surface hosts the core.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joshfom/tauri-drive/internal/constants"
)

// Channel names carried by the bus. These are part of the front-end contract.
const (
	ChannelUploadProgress   = "upload-progress"
	ChannelDownloadProgress = "download-progress"
)

// Event is one emission on a named channel.
type Event struct {
	Channel string
	Payload interface{}
	Time    time.Time
}

// Bus manages channel subscriptions and publishing. Publishing never blocks:
// a subscriber with a full buffer misses the event and the drop counter is
// incremented. Progress consumers treat payloads as last-writer-wins, so a
// dropped intermediate update is harmless.
type Bus struct {
	subscribers   map[string][]chan Event
	all           []chan Event
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64
}

// NewBus creates a new event bus with the specified per-subscriber buffer.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &Bus{
		subscribers: make(map[string][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a named channel.
func (b *Bus) Subscribe(channel string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, b.bufferSize)
	b.subscribers[channel] = append(b.subscribers[channel], ch)
	return ch
}

// SubscribeAll creates a subscription to every channel.
func (b *Bus) SubscribeAll() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, b.bufferSize)
	b.all = append(b.all, ch)
	return ch
}

// Publish sends a payload to all subscribers of the channel.
func (b *Bus) Publish(channel string, payload interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	event := Event{Channel: channel, Payload: payload, Time: time.Now()}

	for _, ch := range b.subscribers[channel] {
		select {
		case ch <- event:
		default:
			b.droppedEvents.Add(1)
		}
	}
	for _, ch := range b.all {
		select {
		case ch <- event:
		default:
			b.droppedEvents.Add(1)
		}
	}
}

// Unsubscribe removes a subscription channel from a named channel.
func (b *Bus) Unsubscribe(channel string, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	subscribers := b.subscribers[channel]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			b.subscribers[channel] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.all {
		close(ch)
	}
}

// DroppedEventCount returns the number of events dropped due to full buffers.
func (b *Bus) DroppedEventCount() int64 {
	return b.droppedEvents.Load()
}
