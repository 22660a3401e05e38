// internal/pkg/session/redis_registry.go
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	xerrors "lovi-service/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Key layout:
//
//	session:<user>:<device>          hash with the record fields
//	session:lookup:<device>:<hash>   -> session key, for the current secret
//	session:prev:<device>:<hash>     -> session key, for the rotated-away secret
//	sessions:<user>                  set of device ids
//
// Every write that touches more than one key runs as a Lua script.

var upsertScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'id', 'secret', 'prev')
if cur[2] then redis.call('DEL', ARGV[7] .. cur[2]) end
if cur[3] then redis.call('DEL', ARGV[8] .. cur[3]) end
local id = cur[1]
if not id then id = ARGV[1] end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'id', id, 'username', ARGV[2], 'device_id', ARGV[3],
	'secret', ARGV[4], 'issued_at', ARGV[5], 'expires_at', ARGV[6])
redis.call('PEXPIREAT', KEYS[1], ARGV[6])
redis.call('SET', ARGV[7] .. ARGV[4], KEYS[1])
redis.call('PEXPIREAT', ARGV[7] .. ARGV[4], ARGV[6])
redis.call('SADD', KEYS[2], ARGV[3])
return redis.call('HGETALL', KEYS[1])
`)

var rotateScript = redis.NewScript(`
local skey = redis.call('GET', KEYS[1])
if not skey then return false end
local cur = redis.call('HMGET', skey, 'secret', 'expires_at', 'prev')
if not cur[1] or cur[1] ~= ARGV[2] then return false end
if tonumber(cur[2]) <= tonumber(ARGV[1]) then return false end
redis.call('DEL', KEYS[1])
if cur[3] then redis.call('DEL', ARGV[6] .. cur[3]) end
redis.call('HSET', skey, 'secret', ARGV[3], 'prev', ARGV[2], 'expires_at', ARGV[4], 'rotated_at', ARGV[1])
redis.call('PEXPIREAT', skey, ARGV[4])
redis.call('SET', ARGV[5] .. ARGV[3], skey)
redis.call('PEXPIREAT', ARGV[5] .. ARGV[3], ARGV[4])
redis.call('SET', ARGV[6] .. ARGV[2], skey)
redis.call('PEXPIREAT', ARGV[6] .. ARGV[2], ARGV[4])
return redis.call('HGETALL', skey)
`)

var deleteScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'secret', 'prev')
redis.call('SREM', KEYS[2], ARGV[1])
if not cur[1] then
	return 0
end
redis.call('DEL', ARGV[2] .. cur[1])
if cur[2] then redis.call('DEL', ARGV[3] .. cur[2]) end
return redis.call('DEL', KEYS[1])
`)

type RedisRegistry struct {
	client *redis.Client
}

func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) Upsert(ctx context.Context, username, deviceID, secretHash string, issuedAt, expiresAt time.Time) (*Record, error) {
	res, err := upsertScript.Run(ctx, r.client,
		[]string{r.sessionKey(username, deviceID), r.userKey(username)},
		uuid.NewString(), username, deviceID, secretHash,
		issuedAt.UnixMilli(), expiresAt.UnixMilli(),
		r.lookupPrefix(deviceID), r.prevPrefix(deviceID),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to upsert session: %w", err)
	}
	return parseRecord(res)
}

func (r *RedisRegistry) Rotate(ctx context.Context, deviceID, presentedHash, newHash string, now, expiresAt time.Time) (*Record, error) {
	res, err := rotateScript.Run(ctx, r.client,
		[]string{r.lookupPrefix(deviceID) + presentedHash},
		now.UnixMilli(), presentedHash, newHash, expiresAt.UnixMilli(),
		r.lookupPrefix(deviceID), r.prevPrefix(deviceID),
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}
	return parseRecord(res)
}

func (r *RedisRegistry) FindRotatedAway(ctx context.Context, deviceID, presentedHash string) (*Record, error) {
	skey, err := r.client.Get(ctx, r.prevPrefix(deviceID)+presentedHash).Result()
	if errors.Is(err, redis.Nil) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up rotated secret: %w", err)
	}
	return r.load(ctx, skey)
}

func (r *RedisRegistry) Delete(ctx context.Context, username, deviceID string) (bool, error) {
	n, err := deleteScript.Run(ctx, r.client,
		[]string{r.sessionKey(username, deviceID), r.userKey(username)},
		deviceID, r.lookupPrefix(deviceID), r.prevPrefix(deviceID),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return n > 0, nil
}

func (r *RedisRegistry) DeleteAll(ctx context.Context, username string) (int64, error) {
	devices, err := r.client.SMembers(ctx, r.userKey(username)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list user devices: %w", err)
	}

	var deleted int64
	for _, deviceID := range devices {
		ok, err := r.Delete(ctx, username, deviceID)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

func (r *RedisRegistry) List(ctx context.Context, username string) ([]*Record, error) {
	devices, err := r.client.SMembers(ctx, r.userKey(username)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user devices: %w", err)
	}

	records := make([]*Record, 0, len(devices))
	for _, deviceID := range devices {
		rec, err := r.load(ctx, r.sessionKey(username, deviceID))
		if errors.Is(err, xerrors.ErrNotFound) {
			// expired by TTL, drop the stale index entry
			r.client.SRem(ctx, r.userKey(username), deviceID)
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *RedisRegistry) load(ctx context.Context, skey string) (*Record, error) {
	fields, err := r.client.HGetAll(ctx, skey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if len(fields) == 0 {
		return nil, xerrors.ErrNotFound
	}
	return recordFromMap(fields)
}

// Helper functions
func (r *RedisRegistry) sessionKey(username, deviceID string) string {
	return fmt.Sprintf("session:%s:%s", url.QueryEscape(username), url.QueryEscape(deviceID))
}

func (r *RedisRegistry) userKey(username string) string {
	return fmt.Sprintf("sessions:%s", url.QueryEscape(username))
}

func (r *RedisRegistry) lookupPrefix(deviceID string) string {
	return fmt.Sprintf("session:lookup:%s:", url.QueryEscape(deviceID))
}

func (r *RedisRegistry) prevPrefix(deviceID string) string {
	return fmt.Sprintf("session:prev:%s:", url.QueryEscape(deviceID))
}

func parseRecord(res interface{}) (*Record, error) {
	flat, ok := res.([]interface{})
	if !ok || len(flat)%2 != 0 {
		return nil, fmt.Errorf("unexpected session reply %T", res)
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		fields[k] = v
	}
	return recordFromMap(fields)
}

func recordFromMap(fields map[string]string) (*Record, error) {
	issued, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session issued_at: %w", err)
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session expires_at: %w", err)
	}

	rec := &Record{
		ID:         fields["id"],
		Username:   fields["username"],
		DeviceID:   fields["device_id"],
		SecretHash: fields["secret"],
		IssuedAt:   time.UnixMilli(issued).UTC(),
		ExpiresAt:  time.UnixMilli(expires).UTC(),
	}
	if v := fields["rotated_at"]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt session rotated_at: %w", err)
		}
		t := time.UnixMilli(ms).UTC()
		rec.RotatedAt = &t
	}
	return rec, nil
}
