package postgres

import (
	"context"
	"encoding/json"

	"opd/opd-service/internal/kv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Broadcaster carries change signals between instances over LISTEN/NOTIFY.
type Broadcaster struct {
	pool    *pgxpool.Pool
	channel string
	logger  zerolog.Logger
}

func NewBroadcaster(pool *pgxpool.Pool, channel string, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{pool: pool, channel: channel, logger: logger}
}

func (b *Broadcaster) Publish(ctx context.Context, signal kv.Signal) error {
	payload, err := json.Marshal(signal)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, b.channel, string(payload))
	return err
}

func (b *Broadcaster) Listen(ctx context.Context, handle func(kv.Signal)) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize()); err != nil {
		return err
	}
	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var signal kv.Signal
		if err := json.Unmarshal([]byte(notification.Payload), &signal); err != nil {
			b.logger.Warn().Err(err).Str("channel", b.channel).Msg("discard malformed signal")
			continue
		}
		handle(signal)
	}
}
