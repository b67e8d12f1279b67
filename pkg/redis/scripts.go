package redis

import (
	"context"
	"time"
)

// fixedWindowScript increments the window counter and starts its expiry on
// the first hit, in one round trip so a crash cannot leave an immortal key.
const fixedWindowScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`

// compareAndDeleteScript deletes KEYS[1] only while it still holds ARGV[1].
const compareAndDeleteScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`

// FixedWindowAllow counts one hit against scope and reports whether the caller
// is still within limit for the current window.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	conn, err := c.conn()
	if err != nil {
		return false, 0, err
	}
	count, err := conn.Eval(ctx, fixedWindowScript, []string{c.RateLimitKey(scope)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

// DelIfEquals removes key when its value is still value. It reports whether a
// key was deleted.
func (c *Client) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	conn, err := c.conn()
	if err != nil {
		return false, err
	}
	n, err := conn.Eval(ctx, compareAndDeleteScript, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
