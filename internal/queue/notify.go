package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"fookiki/internal/hub"
	"fookiki/internal/matchmaking"
)

// LocalNotifier delivers match notifications through the in-process hub.
type LocalNotifier struct {
	hub *hub.Hub
	log zerolog.Logger
}

func NewLocalNotifier(h *hub.Hub, logger zerolog.Logger) *LocalNotifier {
	return &LocalNotifier{hub: h, log: logger.With().Str("component", "notify").Logger()}
}

func matchTopic(uid string) string { return "match:" + uid }

func (n *LocalNotifier) Notify(_ context.Context, uid string, note matchmaking.Notification) error {
	data, err := json.Marshal(note)
	if err != nil {
		return eris.Wrap(err, "marshal notification")
	}
	n.hub.Retain(matchTopic(uid), data)
	return nil
}

func (n *LocalNotifier) Clear(_ context.Context, uid string) error {
	n.hub.Clear(matchTopic(uid))
	return nil
}

// Subscribe delivers a retained notification before returning.
func (n *LocalNotifier) Subscribe(ctx context.Context, uid string, fn func(matchmaking.Notification)) (func(), error) {
	cancel := n.hub.Subscribe(matchTopic(uid), func(p []byte) {
		var note matchmaking.Notification
		if err := json.Unmarshal(p, &note); err != nil {
			n.log.Warn().Str("uid", uid).Err(err).Msg("bad notification")
			return
		}
		fn(note)
	})
	stop := context.AfterFunc(ctx, cancel)
	return func() {
		stop()
		cancel()
	}, nil
}

const (
	notifyPrefix = "fookiki:mm:notify:"
	matchPrefix  = "fookiki:mm:match:"

	// RetainFor is how long a Redis match notification stays readable.
	RetainFor = time.Minute
)

// RedisNotifier publishes notifications on a per-uid channel and keeps a
// copy for subscribers that arrive late.
type RedisNotifier struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisNotifier(client *redis.Client, logger zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, log: logger.With().Str("component", "notify").Str("backend", "redis").Logger()}
}

func (n *RedisNotifier) Notify(ctx context.Context, uid string, note matchmaking.Notification) error {
	data, err := json.Marshal(note)
	if err != nil {
		return eris.Wrap(err, "marshal notification")
	}
	_, err = n.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, matchPrefix+uid, data, RetainFor)
		p.Publish(ctx, notifyPrefix+uid, data)
		return nil
	})
	if err != nil {
		return redisErr(err, "notify")
	}
	return nil
}

func (n *RedisNotifier) Clear(ctx context.Context, uid string) error {
	if err := n.client.Del(ctx, matchPrefix+uid).Err(); err != nil {
		return redisErr(err, "clear notification")
	}
	return nil
}

// Subscribe listens on uid's channel until cancel is called or ctx is done.
// A retained notification is delivered first; it may arrive twice if it
// was published while subscribing.
func (n *RedisNotifier) Subscribe(ctx context.Context, uid string, fn func(matchmaking.Notification)) (func(), error) {
	ps := n.client.Subscribe(ctx, notifyPrefix+uid)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, redisErr(err, "subscribe")
	}

	data, err := n.client.Get(ctx, matchPrefix+uid).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		ps.Close()
		return nil, redisErr(err, "read retained notification")
	default:
		n.deliver(uid, data, fn)
	}

	ch := ps.Channel()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				ps.Close()
				return
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				n.deliver(uid, []byte(msg.Payload), fn)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			ps.Close()
		})
	}, nil
}

func (n *RedisNotifier) deliver(uid string, data []byte, fn func(matchmaking.Notification)) {
	var note matchmaking.Notification
	if err := json.Unmarshal(data, &note); err != nil {
		n.log.Warn().Str("uid", uid).Err(err).Msg("bad notification")
		return
	}
	fn(note)
}
