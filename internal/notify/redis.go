package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	channelAll         = "fleet:all"
	channelGroupPrefix = "fleet:group:"
)

// GroupChannel returns the Redis channel for a group.
func GroupChannel(group string) string {
	return channelGroupPrefix + group
}

// RedisNotifier publishes envelopes to Redis so that every server instance
// can relay them to its own websocket clients.
type RedisNotifier struct {
	client *redis.Client
	origin string
	log    log.FieldLogger
}

// NewRedisNotifier connects and pings Redis.
func NewRedisNotifier(ctx context.Context, addr, password string, db int, logger log.FieldLogger) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisNotifier{
		client: client,
		origin: uuid.NewString(),
		log:    logger.WithField("component", "redis-notifier"),
	}, nil
}

// SendToAll implements Notifier.
func (n *RedisNotifier) SendToAll(ctx context.Context, event string, payload interface{}) error {
	msg, err := encode(n.origin, "", event, payload)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, channelAll, msg).Err()
}

// SendToGroup implements Notifier.
func (n *RedisNotifier) SendToGroup(ctx context.Context, group, event string, payload interface{}) error {
	msg, err := encode(n.origin, group, event, payload)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, GroupChannel(group), msg).Err()
}

// Relay forwards envelopes published by other instances to hub until ctx is
// done. Envelopes from this instance are skipped since the local hub already
// delivered them.
func (n *RedisNotifier) Relay(ctx context.Context, hub *Hub) error {
	sub := n.client.PSubscribe(ctx, channelAll, channelGroupPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			env, relay, err := n.decode(m.Channel, m.Payload)
			if err != nil {
				n.log.WithError(err).WithField("channel", m.Channel).Warn("Dropping malformed envelope")
				continue
			}
			if !relay {
				continue
			}
			if err := hub.Publish(env); err != nil {
				n.log.WithError(err).Debug("Relay to hub failed")
			}
		}
	}
}

// decode parses a published envelope and reports whether it came from
// another instance.
func (n *RedisNotifier) decode(channel, payload string) (Envelope, bool, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Envelope{}, false, err
	}
	if env.Group == "" && strings.HasPrefix(channel, channelGroupPrefix) {
		env.Group = strings.TrimPrefix(channel, channelGroupPrefix)
	}
	return env, env.Origin != n.origin, nil
}

// Close closes the Redis client.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
