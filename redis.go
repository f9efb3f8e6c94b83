package admission

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Lua script for fixed window admission using a redis hash per identity.
// Running the check and the increment inside one script keeps them atomic
// across every process sharing the redis instance.
var fixedWindowScript = `
-- KEYS[1] = the identity key (e.g. "lightnote:admission:analyze:1.2.3.4")
-- ARGV[1] = now (caller clock, unix milliseconds)
-- ARGV[2] = window length in milliseconds
-- ARGV[3] = quota (max accepted requests per window)
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local quota = tonumber(ARGV[3])

local state = redis.call('HMGET', key, 'count', 'reset_at')
local count = tonumber(state[1])
local reset_at = tonumber(state[2])

-- start a fresh window when none exists or the current one has passed
if count == nil or reset_at == nil or now > reset_at then
    reset_at = now + window
    redis.call('HMSET', key, 'count', 1, 'reset_at', string.format('%.0f', reset_at))
    -- keep the key a full window past its reset so a late Peek still sees it
    redis.call('PEXPIRE', key, window * 2)
    return {1, reset_at}
end

if count < quota then
    redis.call('HINCRBY', key, 'count', 1)
    return {1, reset_at}
end

-- rejected requests are not counted
return {0, reset_at}
`

type windowRecord struct {
	Count   int   `redis:"count"`
	ResetAt int64 `redis:"reset_at"`
}

// RedisStore shares one registry between every process pointed at the same
// redis. Keys are "<prefix>:<identity>".
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

type RedisOption func(*RedisStore)

func WithRedisLogger(logger *zap.Logger) RedisOption {
	return func(r *RedisStore) { r.logger = logger }
}

func NewRedisStore(client *redis.Client, prefix string, opts ...RedisOption) *RedisStore {
	r := &RedisStore{
		client: client,
		prefix: strings.Trim(prefix, ":"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisStore) key(identity string) string {
	return r.prefix + ":" + identity
}

func (r *RedisStore) CheckAndRecord(ctx context.Context, identity string, quota int, window time.Duration, now time.Time) Decision {
	nowMs := now.UnixMilli()
	result, err := r.client.Eval(ctx, fixedWindowScript, []string{r.key(identity)}, nowMs, window.Milliseconds(), quota).Int64Slice()
	if err != nil || len(result) != 2 {
		// if Redis fails, fail open (allow the request)
		r.logger.Warn("fixed window script failed, admitting request",
			zap.String("identity", identity),
			zap.Error(err))
		return Allow()
	}

	if result[0] == 1 {
		return Allow()
	}
	remaining := time.Duration(result[1]-nowMs) * time.Millisecond
	return Reject(retryAfterSeconds(remaining))
}

func (r *RedisStore) Peek(ctx context.Context, identity string) (LimiterState, bool) {
	var rec windowRecord
	if err := r.client.HGetAll(ctx, r.key(identity)).Scan(&rec); err != nil {
		r.logger.Warn("failed to read window", zap.String("identity", identity), zap.Error(err))
		return LimiterState{}, false
	}
	if rec.ResetAt == 0 {
		return LimiterState{}, false
	}
	return LimiterState{
		Identity:      identity,
		Count:         rec.Count,
		WindowResetAt: time.UnixMilli(rec.ResetAt),
	}, true
}
