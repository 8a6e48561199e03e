// Package kv is the durable key-value contract the sync layer is built on,
// plus an in-memory backend and an in-process signal bus.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var ErrUndeclaredKey = errors.New("key not declared in transaction")

type Store interface {
	Read(ctx context.Context, key string) ([]byte, bool, error)
	Write(ctx context.Context, key string, value []byte) error
	// Update runs fn over a consistent view of keys and commits its writes
	// atomically. Backends with optimistic locking may run fn more than once.
	Update(ctx context.Context, keys []string, fn func(tx Tx) error) error
	Close() error
}

type Tx interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// Signal announces that key changed. Origin identifies the writing instance.
type Signal struct {
	Key    string `json:"key"`
	Origin string `json:"origin"`
}

type Broadcaster interface {
	Publish(ctx context.Context, signal Signal) error
	// Listen delivers remote signals to handle until ctx is done.
	Listen(ctx context.Context, handle func(Signal)) error
}

// Buffer is the transaction view shared by the backends: a snapshot of the
// declared keys and the writes staged against it.
type Buffer struct {
	values  map[string][]byte
	present map[string]bool
	writes  map[string][]byte
}

func NewBuffer(keys []string) *Buffer {
	b := &Buffer{
		values:  make(map[string][]byte, len(keys)),
		present: make(map[string]bool, len(keys)),
		writes:  make(map[string][]byte),
	}
	for _, key := range keys {
		b.present[key] = false
	}
	return b
}

func (b *Buffer) Load(key string, value []byte) {
	b.values[key] = value
	b.present[key] = true
}

func (b *Buffer) Get(key string) ([]byte, bool) {
	if value, ok := b.writes[key]; ok {
		return value, true
	}
	if !b.present[key] {
		return nil, false
	}
	return b.values[key], true
}

func (b *Buffer) Put(key string, value []byte) error {
	if _, ok := b.present[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUndeclaredKey, key)
	}
	b.writes[key] = append([]byte(nil), value...)
	return nil
}

// Writes returns the staged writes in key order.
func (b *Buffer) Writes() []Entry {
	entries := make([]Entry, 0, len(b.writes))
	for key, value := range b.writes {
		entries = append(entries, Entry{Key: key, Value: value})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

type Entry struct {
	Key   string
	Value []byte
}

// SortedKeys returns a deduplicated, sorted copy. Backends lock in this order.
func SortedKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
