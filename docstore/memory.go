/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package docstore

import (
	"context"
	"slices"
	"sync"
	"time"
)

type entry struct {
	data       []byte
	lastActive time.Time
}

// Memory keeps documents in process. With a non-zero ttl, documents that
// have not been written for ttl are reaped and their watchers are told the
// document is gone.
type Memory struct {
	mu     sync.Mutex
	docs   map[string]*entry
	hubs   map[string]*Broadcaster
	ttl    time.Duration
	now    func() time.Time
	closed bool
	stop   chan struct{}
	done   chan struct{}
}

// NewMemory creates an empty in-memory store.
func NewMemory(ttl time.Duration) *Memory {
	m := &Memory{
		docs: make(map[string]*entry),
		hubs: make(map[string]*Broadcaster),
		ttl:  ttl,
		now:  time.Now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	if ttl > 0 {
		go m.reaperLoop()
	} else {
		close(m.done)
	}

	return m
}

func (m *Memory) Get(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	e, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}

	return slices.Clone(e.data), nil
}

func (m *Memory) Create(ctx context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if _, ok := m.docs[path]; ok {
		return ErrExists
	}

	m.writeLocked(path, data)

	return nil
}

func (m *Memory) Set(ctx context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.writeLocked(path, data)

	return nil
}

func (m *Memory) Update(ctx context.Context, path string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	e, ok := m.docs[path]
	if !ok {
		return ErrNotFound
	}

	next, err := fn(slices.Clone(e.data))
	if err != nil {
		return err
	}

	m.writeLocked(path, next)

	return nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.deleteLocked(path)

	return nil
}

func (m *Memory) Watch(ctx context.Context, path string) (<-chan Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	hub, ok := m.hubs[path]
	if !ok {
		hub = NewBroadcaster()
		m.hubs[path] = hub
	}
	sub := hub.Subscribe()
	initial := m.snapshotLocked(path)
	m.mu.Unlock()

	out := make(chan Snapshot, 1)

	go func() {
		defer close(out)
		defer m.unwatch(path, hub, sub)

		if !send(ctx, out, initial) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-sub:
				if !ok {
					return
				}
				if !send(ctx, out, snap) {
					return
				}
			}
		}
	}()

	return out, nil
}

// Close stops the reaper and ends every watch.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for path, hub := range m.hubs {
		hub.Close()
		delete(m.hubs, path)
	}
	m.mu.Unlock()

	close(m.stop)
	<-m.done

	return nil
}

func (m *Memory) unwatch(path string, hub *Broadcaster, sub chan Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hub.Unsubscribe(sub)
	if hub.Len() == 0 && m.hubs[path] == hub {
		delete(m.hubs, path)
	}
}

func (m *Memory) writeLocked(path string, data []byte) {
	m.docs[path] = &entry{
		data:       slices.Clone(data),
		lastActive: m.now(),
	}
	m.publishLocked(path)
}

func (m *Memory) deleteLocked(path string) {
	if _, ok := m.docs[path]; !ok {
		return
	}
	delete(m.docs, path)
	m.publishLocked(path)
}

func (m *Memory) publishLocked(path string) {
	if hub, ok := m.hubs[path]; ok {
		hub.Publish(m.snapshotLocked(path))
	}
}

func (m *Memory) snapshotLocked(path string) Snapshot {
	e, ok := m.docs[path]
	if !ok {
		return Snapshot{Path: path}
	}
	return Snapshot{Path: path, Exists: true, Data: slices.Clone(e.data)}
}

// reaperLoop periodically removes documents idle for longer than ttl.
func (m *Memory) reaperLoop() {
	defer close(m.done)

	ticker := time.NewTicker(max(m.ttl/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.reap()
		}
	}
}

func (m *Memory) reap() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	for path, e := range m.docs {
		if e.lastActive.Before(cutoff) {
			m.deleteLocked(path)
		}
	}
}
