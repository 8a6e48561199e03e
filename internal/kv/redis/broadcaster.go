package redis

import (
	"context"
	"encoding/json"

	"opd/opd-service/internal/kv"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Broadcaster struct {
	client  *goredis.Client
	channel string
	logger  zerolog.Logger
}

func NewBroadcaster(client *goredis.Client, channel string, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{client: client, channel: channel, logger: logger}
}

func (b *Broadcaster) Publish(ctx context.Context, signal kv.Signal) error {
	payload, err := json.Marshal(signal)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *Broadcaster) Listen(ctx context.Context, handle func(kv.Signal)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var signal kv.Signal
			if err := json.Unmarshal([]byte(msg.Payload), &signal); err != nil {
				b.logger.Warn().Err(err).Str("channel", b.channel).Msg("discard malformed signal")
				continue
			}
			handle(signal)
		}
	}
}
