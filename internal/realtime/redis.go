package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tabledrop/backend/internal/logger"
	"go.uber.org/zap"
)

const (
	// changeTopicPrefix namespaces the Redis pub/sub topics carrying row
	// changes, one topic per table.
	changeTopicPrefix = "changes:"

	// subscribeTimeout bounds the wait for Redis to confirm the
	// subscription before the channel reports TIMED_OUT.
	subscribeTimeout = 10 * time.Second
)

// RedisBroker opens change-feed channels over Redis pub/sub. Each
// channel subscribes to one topic per bound table and fans events out
// to the matching bindings.
type RedisBroker struct {
	rdb *redis.Client
}

// NewRedisBroker creates a broker on an existing Redis client.
func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

// OpenChannel implements Broker.
func (b *RedisBroker) OpenChannel(name string, bindings []Binding) Channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &redisChannel{
		name:     name,
		rdb:      b.rdb,
		bindings: bindings,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// CloseChannel implements Broker.
func (b *RedisBroker) CloseChannel(ch Channel) {
	rc, ok := ch.(*redisChannel)
	if !ok {
		return
	}
	rc.close()
}

// redisChannel is one live pub/sub connection. It is never reused: the
// Manager discards it and opens a fresh one on every reconnect.
type redisChannel struct {
	name     string
	rdb      *redis.Client
	bindings []Binding
	pubsub   *redis.PubSub
	ctx      context.Context
	cancel   context.CancelFunc
}

// Subscribe implements Channel. Delivery runs on a dedicated goroutine;
// onStatus is never called synchronously.
func (c *redisChannel) Subscribe(onStatus func(ChannelStatus)) {
	go c.run(onStatus)
}

func (c *redisChannel) run(onStatus func(ChannelStatus)) {
	topics := c.topics()
	c.pubsub = c.rdb.Subscribe(c.ctx, topics...)

	// Wait for the subscription confirmation before reporting success.
	confirmCtx, cancel := context.WithTimeout(c.ctx, subscribeTimeout)
	_, err := c.pubsub.Receive(confirmCtx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			onStatus(ChannelTimedOut)
		} else if c.ctx.Err() == nil {
			onStatus(ChannelError)
		}
		return
	}

	onStatus(ChannelSubscribed)
	logger.Log.Info("Realtime channel subscribed",
		zap.String("channel", c.name),
		zap.Strings("topics", topics))

	msgs := c.pubsub.Channel()
	for {
		select {
		case <-c.ctx.Done():
			onStatus(ChannelClosed)
			return
		case msg, ok := <-msgs:
			if !ok {
				if c.ctx.Err() == nil {
					onStatus(ChannelError)
				}
				return
			}
			c.dispatch(msg.Payload)
		}
	}
}

// topics returns the deduplicated Redis topics for the bound tables.
func (c *redisChannel) topics() []string {
	seen := make(map[string]struct{}, len(c.bindings))
	topics := make([]string, 0, len(c.bindings))
	for _, b := range c.bindings {
		topic := changeTopicPrefix + b.Table
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}
	return topics
}

// dispatch decodes one payload and delivers it to every matching
// binding, in registration order.
func (c *redisChannel) dispatch(payload string) {
	var ev ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		logger.Log.Warn("Dropping malformed change event",
			zap.String("channel", c.name),
			zap.Error(err))
		return
	}

	for _, b := range c.bindings {
		if b.matches(ev) && b.OnChange != nil {
			b.OnChange(ev)
		}
	}
}

func (c *redisChannel) close() {
	c.cancel()
	if c.pubsub != nil {
		_ = c.pubsub.Close()
	}
}

// Publisher emits change events into the feed after database writes.
// Handlers call it once a row is committed; subscribers on the matching
// table topic receive the event.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher creates a publisher on an existing Redis client.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Publish sends one change event to the table's topic.
func (p *Publisher) Publish(ctx context.Context, ev ChangeEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, changeTopicPrefix+ev.Table, data).Err()
}

// PublishInsert is shorthand for an INSERT event.
func (p *Publisher) PublishInsert(ctx context.Context, table string, record map[string]interface{}) error {
	return p.Publish(ctx, ChangeEvent{Table: table, Type: EventInsert, Record: record})
}

// PublishUpdate is shorthand for an UPDATE event.
func (p *Publisher) PublishUpdate(ctx context.Context, table string, record, old map[string]interface{}) error {
	return p.Publish(ctx, ChangeEvent{Table: table, Type: EventUpdate, Record: record, OldRecord: old})
}

// PublishDelete is shorthand for a DELETE event.
func (p *Publisher) PublishDelete(ctx context.Context, table string, old map[string]interface{}) error {
	return p.Publish(ctx, ChangeEvent{Table: table, Type: EventDelete, OldRecord: old})
}
