package penpal

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/globetalk/matchmaking/internal/apperr"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is one page of a listing. NextPageToken is empty once the listing is
// exhausted.
type Page struct {
	Requests      []Request `json:"requests"`
	NextPageToken string    `json:"nextPageToken,omitempty"`
}

// ListAccepted lists the accepted requests userID takes part in, newest first.
func (l *Ledger) ListAccepted(ctx context.Context, userID string, pageSize int, pageToken string) (Page, error) {
	return l.list(ctx, AcceptedPrefix, userID, pageSize, pageToken)
}

// ListPendingIncoming lists pending requests sent to userID, newest first.
func (l *Ledger) ListPendingIncoming(ctx context.Context, userID string, pageSize int, pageToken string) (Page, error) {
	return l.list(ctx, IncomingPrefix, userID, pageSize, pageToken)
}

// ListPendingOutgoing lists pending requests sent by userID, newest first.
func (l *Ledger) ListPendingOutgoing(ctx context.Context, userID string, pageSize int, pageToken string) (Page, error) {
	return l.list(ctx, OutgoingPrefix, userID, pageSize, pageToken)
}

// NormalizePageSize applies the default and the upper bound to a page size.
func NormalizePageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	default:
		return n
	}
}

// list pages through a per-user index ordered by created_at descending, ties
// broken by id descending. pageToken is the id of the last request of the
// previous page; the page starts strictly after it. A full page always
// carries a token, so the final page of an exact multiple is empty.
func (l *Ledger) list(ctx context.Context, prefix, userID string, pageSize int, pageToken string) (Page, error) {
	if userID == "" {
		return Page{}, apperr.Invalid("user id is required")
	}
	n := NormalizePageSize(pageSize)
	index := prefix + userID

	var (
		ids []string
		err error
	)
	if pageToken == "" {
		ids, err = l.rdb.ZRevRange(ctx, index, 0, int64(n-1)).Result()
		if err != nil {
			return Page{}, apperr.Backend("penpal: list "+index, err)
		}
	} else {
		ids, err = l.idsAfter(ctx, index, pageToken, n)
		if err != nil {
			return Page{}, err
		}
	}

	reqs, err := l.loadAll(ctx, ids)
	if err != nil {
		return Page{}, err
	}

	page := Page{Requests: reqs}
	if len(ids) == n {
		page.NextPageToken = ids[len(ids)-1]
	}
	return page, nil
}

// idsAfter returns up to n ids that follow cursor in the index. A cursor that
// has left the index since the previous page (for example a pending request
// that was accepted) is located by its created_at instead.
func (l *Ledger) idsAfter(ctx context.Context, index, cursor string, n int) ([]string, error) {
	rank, err := l.rdb.ZRevRank(ctx, index, cursor).Result()
	if err == nil {
		ids, err := l.rdb.ZRevRange(ctx, index, rank+1, rank+int64(n)).Result()
		if err != nil {
			return nil, apperr.Backend("penpal: list "+index, err)
		}
		return ids, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, apperr.Backend("penpal: locate cursor", err)
	}

	created, err := l.rdb.HGet(ctx, recordKey(cursor), "created_at").Int64()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.Invalid("unknown page token %q", cursor)
	}
	if err != nil {
		return nil, apperr.Backend("penpal: locate cursor", err)
	}

	score := strconv.FormatInt(created, 10)
	ties, err := l.rdb.ZCount(ctx, index, score, score).Result()
	if err != nil {
		return nil, apperr.Backend("penpal: list "+index, err)
	}
	zs, err := l.rdb.ZRevRangeByScoreWithScores(ctx, index, &redis.ZRangeBy{
		Max:   score,
		Min:   "-inf",
		Count: int64(n) + ties,
	}).Result()
	if err != nil {
		return nil, apperr.Backend("penpal: list "+index, err)
	}

	ids := make([]string, 0, n)
	for _, z := range zs {
		member, _ := z.Member.(string)
		if int64(z.Score) == created && member >= cursor {
			continue
		}
		ids = append(ids, member)
		if len(ids) == n {
			break
		}
	}
	return ids, nil
}

func (l *Ledger) loadAll(ctx context.Context, ids []string) ([]Request, error) {
	if len(ids) == 0 {
		return []Request{}, nil
	}

	pipe := l.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperr.Backend("penpal: load page", err)
	}

	out := make([]Request, 0, len(ids))
	for i, cmd := range cmds {
		var rec record
		if err := cmd.Scan(&rec); err != nil {
			return nil, apperr.Backend(fmt.Sprintf("penpal: scan %s", ids[i]), err)
		}
		if rec.ID == "" {
			continue
		}
		out = append(out, *rec.request())
	}
	return out, nil
}
