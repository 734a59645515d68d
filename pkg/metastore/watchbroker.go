package metastore

import (
	"strings"
	"sync"
)

// watchSubscription is one Watch call's filter and delivery channel.
type watchSubscription struct {
	key    string
	prefix bool
	ch     chan Event
}

// watchBroker is an in-memory pub/sub bus backing Watch on fakeStore,
// adapted from the teacher's pkg/events.Broker: a buffered publish channel
// feeding a broadcast loop that fans out to buffered per-subscriber
// channels, dropping events on a full subscriber buffer rather than
// blocking the publisher. Subscriptions are filtered by key/prefix instead
// of the teacher's flat topic broadcast, since Watch scopes by key.
type watchBroker struct {
	mu          sync.RWMutex
	subscribers map[*watchSubscription]bool
	eventCh     chan Event
	stopCh      chan struct{}
}

func newWatchBroker() *watchBroker {
	b := &watchBroker{
		subscribers: make(map[*watchSubscription]bool),
		eventCh:     make(chan Event, 256),
		stopCh:      make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *watchBroker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.dispatch(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *watchBroker) dispatch(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if !matches(sub, event.KV.Key) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// subscriber buffer full, drop rather than block the publisher
		}
	}
}

func matches(sub *watchSubscription, key string) bool {
	if sub.prefix {
		return strings.HasPrefix(key, sub.key)
	}
	return key == sub.key
}

func (b *watchBroker) subscribe(key string, prefix bool) *watchSubscription {
	sub := &watchSubscription{key: key, prefix: prefix, ch: make(chan Event, 64)}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[sub] = true
	return sub
}

func (b *watchBroker) unsubscribe(sub *watchSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub.ch)
	}
}

func (b *watchBroker) publish(event Event) {
	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *watchBroker) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.stopCh:
	default:
		close(b.stopCh)
	}
}
