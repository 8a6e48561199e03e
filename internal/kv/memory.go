package kv

import (
	"context"
	"sync"
)

type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
	// failWrites makes every write fail; used to exercise storage failures.
	failWrites error
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Read(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (m *Memory) Write(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Update(ctx context.Context, keys []string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := NewBuffer(SortedKeys(keys))
	for _, key := range keys {
		if value, ok := m.data[key]; ok {
			buf.Load(key, value)
		}
	}
	if err := fn(buf); err != nil {
		return err
	}
	if m.failWrites != nil {
		return m.failWrites
	}
	for _, entry := range buf.Writes() {
		m.data[entry.Key] = entry.Value
	}
	return nil
}

// FailWrites makes subsequent writes and commits return err until cleared
// with nil.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = err
}

// Raw stores value without any encoding, as a legacy writer would have.
func (m *Memory) Raw(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
}

func (m *Memory) Close() error { return nil }

// Bus is an in-process Broadcaster. Several sync services sharing one Bus and
// one Memory behave like separate instances sharing a database.
type Bus struct {
	mu        sync.RWMutex
	listeners map[int]*listener
	next      int
}

type listener struct {
	ch   chan Signal
	done chan struct{}
}

func NewBus() *Bus {
	return &Bus{listeners: make(map[int]*listener)}
}

func (b *Bus) Publish(ctx context.Context, signal Signal) error {
	b.mu.RLock()
	targets := make([]*listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		targets = append(targets, l)
	}
	b.mu.RUnlock()

	for _, l := range targets {
		select {
		case l.ch <- signal:
		case <-l.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *Bus) Listen(ctx context.Context, handle func(Signal)) error {
	l := &listener{ch: make(chan Signal, 64), done: make(chan struct{})}
	b.mu.Lock()
	id := b.next
	b.next++
	b.listeners[id] = l
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
		close(l.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case signal := <-l.ch:
			handle(signal)
		}
	}
}

func (b *Bus) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
