package redis

import (
	"context"
	"time"
)

// Both scripts act on KEYS[1] only while it still holds the caller's token
// ARGV[1], so a holder whose TTL lapsed cannot touch a newer owner's key.
const (
	deleteIfOwner = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

	expireIfOwner = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`
)

// CompareAndDelete removes key if it holds token and reports whether it did.
func (c *Client) CompareAndDelete(ctx context.Context, key, token string) (bool, error) {
	return c.evalOwned(ctx, deleteIfOwner, key, token)
}

// CompareAndExpire resets key's TTL if it holds token and reports whether it
// did.
func (c *Client) CompareAndExpire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return c.evalOwned(ctx, expireIfOwner, key, token, ttl.Milliseconds())
}

func (c *Client) evalOwned(ctx context.Context, script, key, token string, extra ...any) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	n, err := c.cmd.Eval(ctx, script, []string{key}, append([]any{token}, extra...)...).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
