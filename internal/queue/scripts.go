package queue

import "github.com/redis/go-redis/v9"

// enqueueScript claims the dedup key and, only when it was free, stores the
// recovery record and appends the event to active.
//
// KEYS: dedup, context, active
// ARGV: dedup key, recovery record, encoded event
var enqueueScript = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('RPUSH', KEYS[3], ARGV[3])
return 1
`)

// releaseScript drops the dedup key and its recovery record.
//
// KEYS: dedup, context
// ARGV: dedup key
var releaseScript = redis.NewScript(`
local removed = redis.call('SREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return removed
`)

// parkScript puts an event into a sorted set, keeps its dedup key held and
// refreshes the recovery record with the event's counters.
//
// KEYS: target zset, dedup, context
// ARGV: score, encoded event, dedup key, recovery record
var parkScript = redis.NewScript(`
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
redis.call('SADD', KEYS[2], ARGV[3])
redis.call('HSET', KEYS[3], ARGV[3], ARGV[4])
return 1
`)

// promoteScript moves one member from a sorted set to the back of active.
// Nothing is pushed unless this caller was the one that removed the member.
//
// KEYS: source zset, active, dedup
// ARGV: member, dedup key
var promoteScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('SADD', KEYS[3], ARGV[2])
return 1
`)

// restoreScript pushes a rebuilt event to active as long as its dedup key is still held.
//
// KEYS: dedup, context, active
// ARGV: dedup key, recovery record, encoded event
var restoreScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('RPUSH', KEYS[3], ARGV[3])
return 1
`)
