// Package datasync keeps named JSON collections in a durable store and
// signals every change to local and remote subscribers.
package datasync

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"opd/opd-service/internal/hub"
	"opd/opd-service/internal/kv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Options struct {
	// Broadcaster carries signals to other instances. Nil keeps signals local.
	Broadcaster kv.Broadcaster
	// Origin identifies this instance on the broadcaster. Generated when empty.
	Origin     string
	Migrations Migrations
	// SubscriberBuffer is the pending-signal capacity per subscription.
	SubscriberBuffer int
}

type Service struct {
	store       kv.Store
	broadcaster kv.Broadcaster
	hub         *hub.Hub
	origin      string
	migrations  Migrations
	buffer      int
	logger      zerolog.Logger
}

func New(store kv.Store, logger zerolog.Logger, opts Options) *Service {
	if opts.Origin == "" {
		opts.Origin = uuid.NewString()
	}
	if opts.Migrations == nil {
		opts.Migrations = DefaultMigrations()
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = 1
	}
	return &Service{
		store:       store,
		broadcaster: opts.Broadcaster,
		hub:         hub.New(logger),
		origin:      opts.Origin,
		migrations:  opts.Migrations,
		buffer:      opts.SubscriberBuffer,
		logger:      logger,
	}
}

// GetItem returns the value stored under key. A missing key yields def and a
// nil error; unreadable content yields def and a *StorageError.
func GetItem[T any](ctx context.Context, s *Service, key string, def T) (T, error) {
	value, _, err := GetRevision(ctx, s, key, def)
	return value, err
}

// GetRevision is GetItem plus the commit revision of the value read. A missing
// key is revision 0.
func GetRevision[T any](ctx context.Context, s *Service, key string, def T) (T, uint64, error) {
	raw, ok, err := s.store.Read(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("read failed, using default")
		return def, 0, storageError("read", key, err)
	}
	if !ok {
		return def, 0, nil
	}
	value, revision, err := decodeInto[T](s.migrations, key, raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("malformed value, using default")
		return def, 0, err
	}
	return value, revision, nil
}

// SetItem stores value under key and signals the change. On failure the
// previous durable value is left intact and nothing is signalled.
func (s *Service) SetItem(ctx context.Context, key string, value any) error {
	return s.Update(ctx, []string{key}, func(tx *Tx) error {
		return tx.Put(key, value)
	})
}

// Update runs fn in one backend transaction over keys. Every key written by
// fn is signalled once after commit. fn may run more than once and must not
// have side effects outside tx.
func (s *Service) Update(ctx context.Context, keys []string, fn func(tx *Tx) error) error {
	var written []string
	var fnErr error
	err := s.store.Update(ctx, keys, func(inner kv.Tx) error {
		tx := &Tx{inner: inner, migrations: s.migrations, written: map[string]struct{}{}, revisions: map[string]uint64{}}
		if fnErr = fn(tx); fnErr != nil {
			return fnErr
		}
		written = tx.keys()
		return nil
	})
	if err != nil {
		var se *StorageError
		if fnErr == nil || !errors.Is(err, fnErr) {
			err = storageError("commit", strings.Join(keys, ","), err)
		}
		if errors.As(err, &se) {
			s.logger.Error().Err(err).Strs("keys", keys).Msg("update failed")
		}
		return err
	}
	for _, key := range written {
		s.signal(ctx, key)
	}
	return nil
}

// Notify signals key without writing it.
func (s *Service) Notify(ctx context.Context, key string) {
	s.signal(ctx, key)
}

// Subscribe registers for change signals on key and returns a channel that
// yields key once per signal. The channel is closed when ctx is done.
func (s *Service) Subscribe(ctx context.Context, key string) <-chan string {
	client := &hub.Client{ID: uuid.NewString(), Key: key, Send: make(chan string, s.buffer)}
	s.hub.Register(client)
	go func() {
		<-ctx.Done()
		s.hub.Unregister(client)
	}()
	return client.Send
}

// Run relays signals from other instances to local subscribers until ctx is
// done.
func (s *Service) Run(ctx context.Context) error {
	if s.broadcaster == nil {
		<-ctx.Done()
		return nil
	}
	err := s.broadcaster.Listen(ctx, func(signal kv.Signal) {
		if signal.Origin == s.origin {
			return
		}
		s.hub.Broadcast(signal.Key)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Rewrite re-encodes key at the current schema version.
func (s *Service) Rewrite(ctx context.Context, key string) (bool, error) {
	var rewritten bool
	err := s.Update(ctx, []string{key}, func(tx *Tx) error {
		rewritten = false
		raw, ok := tx.inner.Get(key)
		if !ok {
			return nil
		}
		value, err := s.migrations.decode(key, raw)
		if err != nil {
			return storageError("decode", key, err)
		}
		if value.Version == CurrentVersion {
			return nil
		}
		rewritten = true
		return tx.Put(key, value.Data)
	})
	return rewritten, err
}

func (s *Service) signal(ctx context.Context, key string) {
	s.hub.Broadcast(key)
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Publish(ctx, kv.Signal{Key: key, Origin: s.origin}); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("publish signal failed")
	}
}

func decodeInto[T any](m Migrations, key string, raw []byte) (T, uint64, error) {
	var value T
	decoded, err := m.decode(key, raw)
	if err != nil {
		return value, 0, storageError("decode", key, err)
	}
	if err := json.Unmarshal(decoded.Data, &value); err != nil {
		return value, 0, storageError("decode", key, err)
	}
	return value, decoded.Revision, nil
}
