// Package ratelimit provides Redis-backed fixed-window rate limiting using
// INCR + EXPIRE. Each rule throttles one action per user id.
package ratelimit

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/globetalk/matchmaking/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Name   string        // metrics label
	Key    string        // Redis key prefix
	Limit  int           // max count in the window
	Window time.Duration // time window
}

var (
	// RuleMatch allows 10 random match requests per minute per user.
	RuleMatch = Rule{Name: "match", Key: "rl:match:", Limit: 10, Window: time.Minute}

	// RulePenpalRequest allows 20 penpal requests per minute per user.
	RulePenpalRequest = Rule{Name: "penpal_request", Key: "rl:penpal:", Limit: 20, Window: time.Minute}
)

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow increments the identifier's counter for rule and reports whether it
// is still within the limit. The expiry is set on the first increment.
//
// On Redis errors Allow fails open: it returns true together with the error
// so that a Redis outage does not block legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, err
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", key, err)
			// Without a TTL the key would block the identifier forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	if int(count) > rule.Limit {
		metrics.RateLimited.WithLabelValues(rule.Name).Inc()
		return false, nil
	}
	return true, nil
}

// Remaining returns the number of requests the identifier has left in the
// current window. Returns the full limit if the key does not exist yet or on
// Redis errors.
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return rule.Limit, nil
	}
	if err != nil {
		log.Printf("[ratelimit] redis GET error key=%s: %v (failing open)", key, err)
		return rule.Limit, err
	}

	return max(rule.Limit-count, 0), nil
}
