package datasync

import (
	"sort"

	"opd/opd-service/internal/kv"
)

// Tx is the view of a multi-key update. Reads see the transaction's own
// writes.
type Tx struct {
	inner      kv.Tx
	migrations Migrations
	written    map[string]struct{}
	revisions  map[string]uint64
}

// Load decodes key inside tx. A missing key yields the zero value.
func Load[T any](tx *Tx, key string) (T, error) {
	var value T
	raw, ok := tx.inner.Get(key)
	if !ok {
		return value, nil
	}
	value, _, err := decodeInto[T](tx.migrations, key, raw)
	return value, err
}

// Put stages value under key at the next revision of key.
func (tx *Tx) Put(key string, value any) error {
	var revision uint64
	if current, ok := tx.inner.Get(key); ok {
		revision = revisionOf(current)
	}
	revision++
	raw, err := encode(value, revision)
	if err != nil {
		return storageError("encode", key, err)
	}
	if err := tx.inner.Put(key, raw); err != nil {
		return storageError("write", key, err)
	}
	tx.written[key] = struct{}{}
	tx.revisions[key] = revision
	return nil
}

// Revision is the revision key will carry once tx commits, or 0 when tx has
// not written key.
func (tx *Tx) Revision(key string) uint64 {
	return tx.revisions[key]
}

func (tx *Tx) keys() []string {
	keys := make([]string, 0, len(tx.written))
	for key := range tx.written {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
