package datasync

import (
	"encoding/json"
	"fmt"
)

// CurrentVersion is the schema version written by this build.
const CurrentVersion = 1

// envelope wraps every durable value. Revision counts commits of the key and
// only grows, so readers can tell an older snapshot from a newer one.
type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Revision      uint64          `json:"revision,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// stored is a durable value lifted to CurrentVersion. Version is the schema
// version it was found at.
type stored struct {
	Data     json.RawMessage
	Version  int
	Revision uint64
}

// Migration lifts data stored at one schema version to the next.
type Migration func(data json.RawMessage) (json.RawMessage, error)

type migrationKey struct {
	key  string
	from int
}

type Migrations map[migrationKey]Migration

func (m Migrations) Register(key string, from int, fn Migration) {
	m[migrationKey{key: key, from: from}] = fn
}

// DefaultMigrations returns the migrations for the collections this service
// owns. Keys without a registered step are carried forward unchanged.
func DefaultMigrations() Migrations {
	m := Migrations{}
	m.Register("opd_tokens", 0, dropField("queue_position"))
	return m
}

// dropField removes name from every object of a JSON array.
func dropField(name string) Migration {
	return func(data json.RawMessage) (json.RawMessage, error) {
		var items []map[string]json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		for _, item := range items {
			delete(item, name)
		}
		return json.Marshal(items)
	}
}

func encode(value any, revision uint64) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{SchemaVersion: CurrentVersion, Revision: revision, Data: data})
}

// decode unwraps raw and migrates it to CurrentVersion. A value without an
// envelope is version 0.
func (m Migrations) decode(key string, raw []byte) (stored, error) {
	value, err := unwrap(raw)
	if err != nil {
		return stored{}, err
	}
	if value.Version > CurrentVersion {
		return value, fmt.Errorf("%w: %d", ErrUnsupportedVersion, value.Version)
	}
	for version := value.Version; version < CurrentVersion; version++ {
		if fn, ok := m[migrationKey{key: key, from: version}]; ok {
			value.Data, err = fn(value.Data)
			if err != nil {
				return value, fmt.Errorf("migrate from v%d: %w", version, err)
			}
		}
	}
	return value, nil
}

func unwrap(raw []byte) (stored, error) {
	if !json.Valid(raw) {
		return stored{}, ErrMalformed
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err == nil {
		if _, ok := fields["schema_version"]; ok {
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return stored{}, err
			}
			return stored{Data: env.Data, Version: env.SchemaVersion, Revision: env.Revision}, nil
		}
	}
	return stored{Data: raw}, nil
}

// revisionOf reads the commit revision of raw. Unreadable values count as 0.
func revisionOf(raw []byte) uint64 {
	value, err := unwrap(raw)
	if err != nil {
		return 0
	}
	return value.Revision
}
