// Package stream fans campaign change notifications out to live staff
// dashboards.
package stream

import (
	"context"
	"sync"
	"time"
)

// Event kinds published by the campaign service.
const (
	KindWorldJournal    = "world_journal"
	KindPersonalJournal = "personal_journal"
	KindDowntime        = "downtime"
	KindTags            = "tags"
	KindStats           = "stats"
	KindNewPlayer       = "new_player"
	KindRelease         = "release"
)

// CampaignEvent tells subscribers which part of the campaign changed. It
// carries no journal or downtime text; clients refetch their view.
type CampaignEvent struct {
	Kind         string    `json:"kind"`
	CharacterKey string    `json:"character_key,omitempty"`
	Thread       string    `json:"thread,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Stream fan-outs events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan CampaignEvent
	next int
}

func New() *Stream {
	return &Stream{subs: make(map[int]chan CampaignEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan CampaignEvent {
	ch := make(chan CampaignEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Subscribers reports the number of live subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Publish fan-outs the event to all subscribers. A zero timestamp is set to now.
func (s *Stream) Publish(evt CampaignEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
