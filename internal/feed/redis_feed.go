package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/amterp/kanflow/internal/util"
)

// DefaultChannel is the pub/sub channel board events travel on.
const DefaultChannel = "kanflow:board-events"

// RedisFeed publishes events on a Redis channel and dispatches every event
// received on it, from any process, to a local Bus.
type RedisFeed struct {
	client  *redis.Client
	channel string
	bus     *Bus
	logger  *log.Logger
	backoff time.Duration
}

// NewRedisFeed creates a feed on channel; an empty channel uses DefaultChannel.
func NewRedisFeed(client *redis.Client, channel string, bus *Bus, logger *log.Logger) *RedisFeed {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisFeed{client: client, channel: channel, bus: bus, logger: logger, backoff: time.Second}
}

func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	if ev.AtMillis == 0 {
		ev.AtMillis = util.NowMillis()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return f.client.Publish(ctx, f.channel, data).Err()
}

// Run subscribes and dispatches until ctx is done, resubscribing after the
// channel closes.
func (f *RedisFeed) Run(ctx context.Context) {
	for {
		sub := f.client.Subscribe(ctx, f.channel)
		f.consume(ctx, sub.Channel())
		_ = sub.Close()

		if ctx.Err() != nil {
			return
		}
		f.logger.WithField("channel", f.channel).Warn("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.backoff):
		}
	}
}

func (f *RedisFeed) consume(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				f.logger.WithError(err).Warn("unable to parse board event")
				continue
			}
			if ev.BoardID == "" {
				continue
			}
			f.bus.Dispatch(ev)
		}
	}
}
