// Package directory stores user profiles for matchmaking. Two backends are
// provided: a Redis store (the default, used for hot reads and atomic match
// linking through a Lua script) and a PostgreSQL store for deployments that
// keep profiles in the relational database.
//
// Redis layout:
//
//	user:<id>               Hash   profile fields (languages/hobbies JSON-encoded)
//	user:<id>:matched       Set    ids this user has been matched with
//	idx:lang:<language>     Set    ids of users listing <language>
//	idx:region:<region>     Set    ids of users in <region>
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/globetalk/matchmaking/internal/apperr"
	"github.com/globetalk/matchmaking/internal/profile"
	"github.com/redis/go-redis/v9"
)

const (
	UserPrefix    = "user:"
	MatchedSuffix = ":matched"
	LangIndex     = "idx:lang:"
	RegionIndex   = "idx:region:"
)

// record is the Redis hash form of a profile.
type record struct {
	ID        string `redis:"id"`
	Username  string `redis:"username"`
	Languages string `redis:"languages"` // JSON array
	Region    string `redis:"region"`
	Hobbies   string `redis:"hobbies"` // JSON array
	Bio       string `redis:"bio"`
}

// RedisStore is the Redis-backed user directory.
type RedisStore struct {
	rdb        *redis.Client
	linkScript *redis.Script
}

// NewRedisStore creates a directory backed by the given Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{
		rdb:        rdb,
		linkScript: redis.NewScript(linkMatchLua),
	}
}

func userKey(id string) string    { return UserPrefix + id }
func matchedKey(id string) string { return UserPrefix + id + MatchedSuffix }

// Save writes a profile and keeps the language/region indexes in step with
// it. MatchedWith is not touched: match history only changes through LinkMatch.
func (s *RedisStore) Save(ctx context.Context, p profile.UserProfile) error {
	if p.ID == "" {
		return apperr.Invalid("profile id is required")
	}

	old, err := s.load(ctx, p.ID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}

	langs, err := json.Marshal(nonNil(p.Languages))
	if err != nil {
		return fmt.Errorf("directory: marshal languages: %w", err)
	}
	hobbies, err := json.Marshal(nonNil(p.Hobbies))
	if err != nil {
		return fmt.Errorf("directory: marshal hobbies: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if old != nil {
			for _, l := range old.Languages {
				pipe.SRem(ctx, LangIndex+l, p.ID)
			}
			pipe.SRem(ctx, RegionIndex+old.Region, p.ID)
		}
		pipe.HSet(ctx, userKey(p.ID), map[string]interface{}{
			"id":        p.ID,
			"username":  p.Username,
			"languages": string(langs),
			"region":    p.Region,
			"hobbies":   string(hobbies),
			"bio":       p.Bio,
		})
		for _, l := range p.Languages {
			pipe.SAdd(ctx, LangIndex+l, p.ID)
		}
		pipe.SAdd(ctx, RegionIndex+p.Region, p.ID)
		return nil
	})
	return apperr.Backend("directory: save", err)
}

// Get returns the profile with its match history. Returns apperr.ErrNotFound
// if the user does not exist.
func (s *RedisStore) Get(ctx context.Context, id string) (*profile.UserProfile, error) {
	return s.load(ctx, id)
}

func (s *RedisStore) load(ctx context.Context, id string) (*profile.UserProfile, error) {
	pipe := s.rdb.Pipeline()
	hash := pipe.HGetAll(ctx, userKey(id))
	matched := pipe.SMembers(ctx, matchedKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperr.Backend("directory: get "+id, err)
	}
	return decode(id, hash, matched)
}

// FindByLanguageRegion returns every profile whose stored languages contain
// language and whose stored region equals region, both compared exactly.
func (s *RedisStore) FindByLanguageRegion(ctx context.Context, language, region string) ([]profile.UserProfile, error) {
	ids, err := s.rdb.SInter(ctx, LangIndex+language, RegionIndex+region).Result()
	if err != nil {
		return nil, apperr.Backend("directory: query candidates", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.rdb.Pipeline()
	hashes := make([]*redis.MapStringStringCmd, len(ids))
	matched := make([]*redis.StringSliceCmd, len(ids))
	for i, id := range ids {
		hashes[i] = pipe.HGetAll(ctx, userKey(id))
		matched[i] = pipe.SMembers(ctx, matchedKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperr.Backend("directory: load candidates", err)
	}

	out := make([]profile.UserProfile, 0, len(ids))
	for i, id := range ids {
		p, err := decode(id, hashes[i], matched[i])
		if errors.Is(err, apperr.ErrNotFound) {
			continue // index entry outlived the profile
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// LinkMatch atomically adds each id to the other's match history. Returns
// apperr.ErrConflict if either side already lists the other and
// apperr.ErrNotFound if either profile is missing; nothing is written then.
func (s *RedisStore) LinkMatch(ctx context.Context, a, b string) error {
	keys := []string{userKey(a), userKey(b), matchedKey(a), matchedKey(b)}
	res, err := s.linkScript.Run(ctx, s.rdb, keys, a, b).Int()
	if err != nil {
		return apperr.Backend("directory: link match", err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("directory: %s and %s already matched: %w", a, b, apperr.ErrConflict)
	default:
		return fmt.Errorf("directory: link %s/%s: %w", a, b, apperr.ErrNotFound)
	}
}

func decode(id string, hash *redis.MapStringStringCmd, matched *redis.StringSliceCmd) (*profile.UserProfile, error) {
	var rec record
	if err := hash.Scan(&rec); err != nil {
		return nil, apperr.Backend("directory: scan "+id, err)
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("directory: user %s: %w", id, apperr.ErrNotFound)
	}

	p := &profile.UserProfile{
		ID:          rec.ID,
		Username:    rec.Username,
		Region:      rec.Region,
		Bio:         rec.Bio,
		MatchedWith: matched.Val(),
	}
	// Malformed arrays are treated as empty rather than failing the query.
	if rec.Languages != "" {
		if err := json.Unmarshal([]byte(rec.Languages), &p.Languages); err != nil {
			log.Printf("[directory] user %s: malformed languages %q: %v", id, rec.Languages, err)
		}
	}
	if rec.Hobbies != "" {
		if err := json.Unmarshal([]byte(rec.Hobbies), &p.Hobbies); err != nil {
			log.Printf("[directory] user %s: malformed hobbies %q: %v", id, rec.Hobbies, err)
		}
	}
	return p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// linkMatchLua re-reads both match sets and links the pair only if neither
// side already lists the other.
//
//	 1 = linked
//	 0 = already matched (race detected)
//	-1 = a profile is missing
const linkMatchLua = `
if redis.call('EXISTS', KEYS[1]) == 0 or redis.call('EXISTS', KEYS[2]) == 0 then
    return -1
end

if redis.call('SISMEMBER', KEYS[3], ARGV[2]) == 1 or redis.call('SISMEMBER', KEYS[4], ARGV[1]) == 1 then
    return 0
end

redis.call('SADD', KEYS[3], ARGV[2])
redis.call('SADD', KEYS[4], ARGV[1])
return 1
`
