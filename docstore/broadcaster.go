/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package docstore

import "sync"

// Broadcaster fans snapshots out to subscribers.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Snapshot]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[chan Snapshot]struct{}),
	}
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Broadcaster) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Snapshot) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers snap to all subscribers. A lagging subscriber loses its
// oldest pending snapshots, never the newest one.
func (b *Broadcaster) Publish(snap Snapshot) {
	b.mu.Lock()
	for ch := range b.subs {
		offer(ch, snap)
	}
	b.mu.Unlock()
}

func offer(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}

		select {
		case <-ch:
		default:
		}
	}
}

// Len returns the number of subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unsubscribes everyone.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
