// Package ban reads and writes user bans in Redis. Matchmaking only reads
// them; the moderation service owns writes. Each ban is a plain key with a
// TTL:
//
//	Key:   ban:<user_id>
//	Value: <reason>
//	TTL:   ban duration (none for a permanent ban)
package ban

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BanPrefix is the Redis key prefix for ban records.
const BanPrefix = "ban:"

// Status describes a single user's ban.
type Status struct {
	Banned    bool
	Reason    string
	Remaining time.Duration // zero for permanent bans
}

// Store manages ban records in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a new ban store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// IsBanned reports the ban status of userID. Redis errors are returned so
// callers can decide how to handle them; matchmaking fails open.
func (s *Store) IsBanned(ctx context.Context, userID string) (Status, error) {
	key := BanPrefix + userID

	reason, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("ban: get %s: %w", userID, err)
	}

	st := Status{Banned: true, Reason: reason}
	// A failed TTL read still reports the ban.
	if ttl, err := s.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		st.Remaining = ttl
	}
	return st, nil
}

// BannedAmong returns the subset of userIDs that are banned, in one MGET.
func (s *Store) BannedAmong(ctx context.Context, userIDs []string) (map[string]bool, error) {
	banned := make(map[string]bool)
	if len(userIDs) == 0 {
		return banned, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = BanPrefix + id
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("ban: mget: %w", err)
	}
	for i, v := range vals {
		if v != nil {
			banned[userIDs[i]] = true
		}
	}
	return banned, nil
}

// Ban bans userID for duration with the given reason. A zero duration bans
// permanently.
func (s *Store) Ban(ctx context.Context, userID string, duration time.Duration, reason string) error {
	if err := s.client.Set(ctx, BanPrefix+userID, reason, duration).Err(); err != nil {
		return fmt.Errorf("ban: set %s: %w", userID, err)
	}
	return nil
}

// Unban removes a ban immediately.
func (s *Store) Unban(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, BanPrefix+userID).Err(); err != nil {
		return fmt.Errorf("ban: del %s: %w", userID, err)
	}
	return nil
}
