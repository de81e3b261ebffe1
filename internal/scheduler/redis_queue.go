package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps due times in a sorted set, payloads in a hash and
// claimed jobs in an in-flight sorted set scored by lease expiry.
// Enqueue and Claim run as scripts so a job is always in exactly one of
// the two sets while its payload exists.
type RedisQueue struct {
	Client redis.Cmdable
	Prefix string
	Lease  time.Duration
}

// KEYS: jobs, due, inflight. ARGV: id, payload, due score.
// A payload left without a schedule is rescheduled instead of ignored.
var enqueueScript = redis.NewScript(`
local added = redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2])
if redis.call('ZSCORE', KEYS[2], ARGV[1]) or redis.call('ZSCORE', KEYS[3], ARGV[1]) then
	return added
end
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

// KEYS: jobs, due, inflight. ARGV: now, lease expiry, limit.
var claimScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', ARGV[1])
for _, id in ipairs(expired) do
	redis.call('ZADD', KEYS[2], ARGV[1], id)
	redis.call('ZREM', KEYS[3], id)
end
local ids = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
local out = {}
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[2], id)
	local payload = redis.call('HGET', KEYS[1], id)
	if payload then
		redis.call('ZADD', KEYS[3], ARGV[2], id)
		table.insert(out, payload)
	end
end
return out
`)

func NewRedisQueue(client redis.Cmdable, prefix string, lease time.Duration) *RedisQueue {
	return &RedisQueue{Client: client, Prefix: prefix, Lease: lease}
}

func (q *RedisQueue) key(name string) string {
	if q.Prefix == "" {
		return "sched:" + name
	}
	return q.Prefix + ":sched:" + name
}

func (q *RedisQueue) keys() []string {
	return []string{q.key("jobs"), q.key("due"), q.key("inflight")}
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func scoreArg(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) (bool, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	n, err := enqueueScript.Run(ctx, q.Client, q.keys(), job.ID, string(payload), scoreArg(job.DueAt)).Int()
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", job.ID, err)
	}
	return n == 1, nil
}

func (q *RedisQueue) Claim(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 1
	}
	raws, err := claimScript.Run(ctx, q.Client, q.keys(),
		scoreArg(now), scoreArg(now.Add(q.lease())), strconv.Itoa(limit)).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	out := make([]Job, 0, len(raws))
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return out, fmt.Errorf("decode job: %w", err)
		}
		out = append(out, job)
	}
	return out, nil
}

func (q *RedisQueue) Retry(ctx context.Context, job Job, at time.Time) error {
	job.DueAt = at.UTC()
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = q.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.key("jobs"), job.ID, string(payload))
		pipe.ZRem(ctx, q.key("inflight"), job.ID)
		pipe.ZAdd(ctx, q.key("due"), redis.Z{Score: score(job.DueAt), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("retry %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	_, err := q.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.key("inflight"), job.ID)
		pipe.ZRem(ctx, q.key("due"), job.ID)
		pipe.HDel(ctx, q.key("jobs"), job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ack %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.Client.HLen(ctx, q.key("jobs")).Result()
}

func (q *RedisQueue) lease() time.Duration {
	if q.Lease <= 0 {
		return 2 * time.Minute
	}
	return q.Lease
}
