package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"fookiki/internal/apperr"
	"fookiki/internal/matchmaking"
)

const (
	queueKey  = "fookiki:mm:queue"
	reqPrefix = "fookiki:mm:req:"

	// releaseAttempts bounds optimistic retries when clearing flags.
	releaseAttempts = 3
)

func reqKey(id string) string { return reqPrefix + id }

func redisErr(err error, msg string) error {
	return apperr.Transient(eris.Wrap(err, msg), "redis")
}

// errUnclaimable aborts a claim transaction without touching anything.
var errUnclaimable = errors.New("request missing or matched")

// Redis keeps request documents as JSON strings indexed by a sorted set
// scored by timestamp. Claims run under WATCH so a concurrent writer on
// any of the documents makes the claim fail instead of double matching.
type Redis struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedis(client *redis.Client, logger zerolog.Logger) *Redis {
	return &Redis{client: client, log: logger.With().Str("component", "queue").Str("backend", "redis").Logger()}
}

func (q *Redis) Enqueue(ctx context.Context, r matchmaking.Request) error {
	body, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}
	ok, err := q.client.SetNX(ctx, reqKey(r.ID), body, 0).Result()
	if err != nil {
		return redisErr(err, "store request")
	}
	if !ok {
		return apperr.Conflictf("request %s already queued", r.ID)
	}
	if err := q.client.ZAdd(ctx, queueKey, redis.Z{Score: float64(r.Timestamp), Member: r.ID}).Err(); err != nil {
		return redisErr(err, "index request")
	}
	return nil
}

func (q *Redis) Get(ctx context.Context, id string) (matchmaking.Request, error) {
	body, err := q.client.Get(ctx, reqKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return matchmaking.Request{}, apperr.NotFoundf("request %s", id)
	}
	if err != nil {
		return matchmaking.Request{}, redisErr(err, "get request")
	}
	var r matchmaking.Request
	if err := json.Unmarshal(body, &r); err != nil {
		return matchmaking.Request{}, eris.Wrapf(err, "decode request %s", id)
	}
	return r, nil
}

func (q *Redis) Dequeue(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = reqKey(id)
		members[i] = id
	}
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keys...)
		p.ZRem(ctx, queueKey, members...)
		return nil
	})
	if err != nil {
		return redisErr(err, "dequeue")
	}
	return nil
}

// ScanRecent returns the newest n requests. Index entries whose document
// is gone are skipped.
func (q *Redis) ScanRecent(ctx context.Context, n int) ([]matchmaking.Request, error) {
	if n <= 0 {
		return nil, nil
	}
	ids, err := q.client.ZRevRange(ctx, queueKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, redisErr(err, "scan queue")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = reqKey(id)
	}
	vals, err := q.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, redisErr(err, "load requests")
	}
	out := make([]matchmaking.Request, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var r matchmaking.Request
		if err := json.Unmarshal([]byte(s), &r); err != nil {
			q.log.Warn().Str("request_id", ids[i]).Err(err).Msg("skipping request")
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// TryMarkMatched flags all ids in one MULTI/EXEC guarded by WATCH. It
// reports false when a document is missing or matched, or when another
// client changed one of them first.
func (q *Redis) TryMarkMatched(ctx context.Context, ids ...string) (bool, error) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return false, nil
		}
		seen[id] = true
	}
	if len(ids) == 0 {
		return false, nil
	}
	err := q.update(ctx, ids, func(r *matchmaking.Request) error {
		if r.Matched {
			return errUnclaimable
		}
		r.Matched = true
		return nil
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errUnclaimable), errors.Is(err, redis.TxFailedErr):
		return false, nil
	}
	return false, redisErr(err, "claim requests")
}

// Release clears the matched flag, retrying if a concurrent write wins.
// Missing documents are ignored.
func (q *Redis) Release(ctx context.Context, ids ...string) error {
	var present []string
	for _, id := range ids {
		n, err := q.client.Exists(ctx, reqKey(id)).Result()
		if err != nil {
			return redisErr(err, "release requests")
		}
		if n > 0 {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		return nil
	}
	var err error
	for attempt := 0; attempt < releaseAttempts; attempt++ {
		err = q.update(ctx, present, func(r *matchmaking.Request) error {
			r.Matched = false
			return nil
		})
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil && !errors.Is(err, errUnclaimable) {
		return redisErr(err, "release requests")
	}
	return nil
}

// update rewrites the documents of ids with fn inside a WATCH transaction.
// A missing document aborts with errUnclaimable.
func (q *Redis) update(ctx context.Context, ids []string, fn func(*matchmaking.Request) error) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = reqKey(id)
	}
	return q.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		docs := make([][]byte, len(vals))
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				return errUnclaimable
			}
			var r matchmaking.Request
			if err := json.Unmarshal([]byte(s), &r); err != nil {
				return eris.Wrapf(err, "decode request %s", ids[i])
			}
			if err := fn(&r); err != nil {
				return err
			}
			if docs[i], err = json.Marshal(r); err != nil {
				return eris.Wrap(err, "marshal request")
			}
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for i, key := range keys {
				p.Set(ctx, key, docs[i], 0)
			}
			return nil
		})
		return err
	}, keys...)
}
