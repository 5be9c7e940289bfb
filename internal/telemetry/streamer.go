package telemetry

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const subscriberBuffer = 100

// Streamer fans messages out to any number of subscribers. A subscriber
// that does not keep up loses messages; Broadcast never blocks.
type Streamer struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]chan *Message
	closed      bool
	dropped     atomic.Uint64
}

func NewStreamer() *Streamer {
	return &Streamer{
		subscribers: make(map[uuid.UUID]chan *Message),
	}
}

// Subscribe registers a new subscriber. The channel is closed on
// Unsubscribe or Close.
func (s *Streamer) Subscribe() (uuid.UUID, <-chan *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	ch := make(chan *Message, subscriberBuffer)
	if s.closed {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

func (s *Streamer) Unsubscribe(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		delete(s.subscribers, id)
		close(ch)
	}
}

func (s *Streamer) Broadcast(msg *Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- msg:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Streamer) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// Dropped counts messages not delivered to slow subscribers.
func (s *Streamer) Dropped() uint64 {
	return s.dropped.Load()
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel.
func (s *Streamer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}
