package redis

import "strings"

const keyNamespace = "rh"

// IdempotencyKey namespaces consumer idempotency marks.
func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey("idempotency", scope, id)
}

// RateLimitKey namespaces fixed-window counters.
func (c *Client) RateLimitKey(scope string) string {
	return buildKey("rate_limit", scope)
}

func buildKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
