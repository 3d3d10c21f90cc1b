package ledger

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	editlockerrors "github.com/mirkobrombin/go-editlock/v1/errors"
)

const (
	defaultRedisOpTimeout = 5 * time.Second
	defaultRedisPrefix    = "editlock:lease:"
)

var delIfOwnerScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v and cjson.decode(v)["owner_id"] == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// Redis implements Ledger using a Redis backend. Records are stored as JSON
// under a dedicated key prefix so lock state never collides with application
// documents. Redis also implements Conditional via SET NX and an
// owner-checked Lua delete.
type Redis struct {
	client    *redis.Client
	timeout   time.Duration
	prefix    string
	recordTTL time.Duration
}

// RedisOption configures a Redis ledger.
type RedisOption func(*redisOptions)

type redisOptions struct {
	timeout   time.Duration
	prefix    string
	recordTTL time.Duration
}

// WithTimeout sets the operation timeout for Redis calls.
func WithTimeout(d time.Duration) RedisOption {
	return func(o *redisOptions) {
		o.timeout = d
	}
}

// WithPrefix sets the key prefix that scopes the lock table.
func WithPrefix(prefix string) RedisOption {
	return func(o *redisOptions) {
		o.prefix = prefix
	}
}

// WithRecordTTL makes Redis expire records after d. When set to the lease
// timeout, stale records disappear on their own and PutIfAbsent alone covers
// stale reclamation. Zero disables expiry.
func WithRecordTTL(d time.Duration) RedisOption {
	return func(o *redisOptions) {
		o.recordTTL = d
	}
}

// NewRedis returns a new Redis ledger using the provided client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	o := redisOptions{timeout: defaultRedisOpTimeout, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return &Redis{client: client, timeout: o.timeout, prefix: o.prefix, recordTTL: o.recordTTL}
}

func (l *Redis) key(resourceID string) string {
	return l.prefix + resourceID
}

func mapErr(err error) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return editlockerrors.ErrTimeout
	}
	if stdErrors.Is(err, redis.ErrClosed) {
		return editlockerrors.ErrConnectionClosed
	}
	return err
}

// Get implements Ledger.Get.
func (l *Redis) Get(ctx context.Context, resourceID string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, mapErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	data, err := l.client.Get(cctx, l.key(resourceID)).Bytes()
	if err == redis.Nil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, mapErr(err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Put implements Ledger.Put.
func (l *Redis) Put(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return mapErr(err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.client.Set(cctx, l.key(rec.ResourceID), data, l.recordTTL).Err(); err != nil {
		return mapErr(err)
	}
	return nil
}

// Delete implements Ledger.Delete.
func (l *Redis) Delete(ctx context.Context, resourceID string) error {
	if err := ctx.Err(); err != nil {
		return mapErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.client.Del(cctx, l.key(resourceID)).Err(); err != nil {
		return mapErr(err)
	}
	return nil
}

// PutIfAbsent implements Conditional.PutIfAbsent.
func (l *Redis) PutIfAbsent(ctx context.Context, rec Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, mapErr(err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	ok, err := l.client.SetNX(cctx, l.key(rec.ResourceID), data, l.recordTTL).Result()
	if err != nil {
		return false, mapErr(err)
	}
	return ok, nil
}

// DeleteIfOwner implements Conditional.DeleteIfOwner.
func (l *Redis) DeleteIfOwner(ctx context.Context, resourceID, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return mapErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	_, err := delIfOwnerScript.Run(cctx, l.client, []string{l.key(resourceID)}, ownerID).Result()
	if err == redis.Nil {
		err = nil
	}
	if err != nil {
		return mapErr(err)
	}
	return nil
}
