// Package relay fans room broadcasts out across server instances over Redis
// pub/sub.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces the per-page channels
const DefaultPrefix = "rooms:"

// envelope tags a broadcast with the instance that produced it
type envelope struct {
	Origin string          `json:"origin"`
	PageID string          `json:"pageId"`
	Data   json.RawMessage `json:"data"`
}

// DeliverFunc hands a remote broadcast to the local occupants of a page
type DeliverFunc func(pageID string, data []byte) int

// RedisRelay publishes each page's broadcasts on its own channel and
// delivers messages from other instances to local rooms.
type RedisRelay struct {
	rdb        *redis.Client
	prefix     string
	instanceID string
	logger     *slog.Logger
}

// NewRedisRelay creates a relay with a fresh instance id.
func NewRedisRelay(rdb *redis.Client, prefix string, logger *slog.Logger) *RedisRelay {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisRelay{
		rdb:        rdb,
		prefix:     prefix,
		instanceID: uuid.New().String(),
		logger:     logger,
	}
}

func (r *RedisRelay) channel(pageID string) string {
	return r.prefix + pageID
}

// Publish implements room.Relay.
func (r *RedisRelay) Publish(ctx context.Context, pageID string, data []byte) error {
	payload, err := json.Marshal(envelope{Origin: r.instanceID, PageID: pageID, Data: data})
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel(pageID), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel(pageID), err)
	}
	return nil
}

// Run subscribes to every page channel and delivers remote broadcasts until
// ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context, deliver DeliverFunc) error {
	pubsub := r.rdb.PSubscribe(ctx, r.prefix+"*")
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s*: %w", r.prefix, err)
	}
	r.logger.Info("relay subscribed", "pattern", r.prefix+"*", "instance_id", r.instanceID)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Channel, msg.Payload, deliver)
		}
	}
}

// handle decodes one message and delivers it unless this instance sent it.
func (r *RedisRelay) handle(channel, payload string, deliver DeliverFunc) bool {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn("invalid relay message", "channel", channel, "error", err)
		return false
	}
	if env.Origin == r.instanceID {
		return false
	}

	pageID := env.PageID
	if pageID == "" {
		pageID = strings.TrimPrefix(channel, r.prefix)
	}
	n := deliver(pageID, env.Data)
	r.logger.Debug("relayed remote broadcast", "page_id", pageID, "origin", env.Origin, "recipients", n)
	return true
}

// Close closes the underlying Redis client.
func (r *RedisRelay) Close() error {
	return r.rdb.Close()
}
