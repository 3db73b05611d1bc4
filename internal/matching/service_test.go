package matching

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/globetalk/matchmaking/internal/apperr"
	"github.com/globetalk/matchmaking/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs map[string][]byte
	err  error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.msgs == nil {
		p.msgs = make(map[string][]byte)
	}
	p.msgs[subject] = data
	return nil
}

func TestGetRandomMatch_Success(t *testing.T) {
	dir, _, ctx := setupDirectory(t)
	seed(t, dir, ctx,
		profile.UserProfile{ID: "u1", Username: "alice", Languages: []string{"English"}, Region: "EU"},
		profile.UserProfile{ID: "u2", Username: "bob", Languages: []string{"English"}, Region: "EU", Hobbies: []string{"chess"}, Bio: "hey"},
	)
	pub := &recordingPublisher{}
	svc := NewService(dir, nil, pub)

	got, err := svc.GetRandomMatch(ctx, "u1", englishEU)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, &profile.MatchResult{
		ID:        "u2",
		Name:      "bob",
		Languages: []string{"English"},
		Region:    "EU",
		Hobbies:   []string{"chess"},
		Bio:       "hey",
	}, got)

	u1, err := dir.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, u1.MatchedWith)
	u2, err := dir.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, u2.MatchedWith)

	require.Contains(t, pub.msgs, "match.made.u1")
	require.Contains(t, pub.msgs, "match.made.u2")
	var evt MatchEvent
	require.NoError(t, json.Unmarshal(pub.msgs["match.made.u2"], &evt))
	assert.Equal(t, "u2", evt.UserID)
	assert.Equal(t, "u1", evt.PartnerID)
	assert.Equal(t, "match_made", evt.Type)
	assert.NotEmpty(t, evt.EventID)
}

func TestGetRandomMatch_AnonymousName(t *testing.T) {
	dir, _, ctx := setupDirectory(t)
	seed(t, dir, ctx,
		profile.UserProfile{ID: "u1", Languages: []string{"English"}, Region: "EU"},
		profile.UserProfile{ID: "u2", Languages: []string{"English"}, Region: "EU"},
	)

	got, err := NewService(dir, nil, nil).GetRandomMatch(ctx, "u1", englishEU)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, profile.AnonymousName, got.Name)
	assert.Equal(t, []string{}, got.Hobbies)
}

func TestGetRandomMatch_NoCandidates(t *testing.T) {
	dir, _, ctx := setupDirectory(t)
	seed(t, dir, ctx, profile.UserProfile{ID: "u1", Languages: []string{"English"}, Region: "EU"})

	got, err := NewService(dir, nil, nil).GetRandomMatch(ctx, "u1", englishEU)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetRandomMatch_NeverRepeats(t *testing.T) {
	dir, _, ctx := setupDirectory(t)
	seed(t, dir, ctx,
		profile.UserProfile{ID: "u1", Languages: []string{"English"}, Region: "EU"},
		profile.UserProfile{ID: "u2", Languages: []string{"English"}, Region: "EU"},
		profile.UserProfile{ID: "u3", Languages: []string{"English"}, Region: "EU"},
	)
	svc := NewService(dir, nil, nil)

	first, err := svc.GetRandomMatch(ctx, "u1", englishEU)
	require.NoError(t, err)
	require.NotNil(t, first)
	second, err := svc.GetRandomMatch(ctx, "u1", englishEU)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)

	third, err := svc.GetRandomMatch(ctx, "u1", englishEU)
	require.NoError(t, err)
	assert.Nil(t, third)
}

func TestGetRandomMatch_BannedRequester(t *testing.T) {
	dir, _, ctx := setupDirectory(t)
	seed(t, dir, ctx,
		profile.UserProfile{ID: "u1", Languages: []string{"English"}, Region: "EU"},
		profile.UserProfile{ID: "u2", Languages: []string{"English"}, Region: "EU"},
	)
	bans := &fakeBans{banned: map[string]bool{"u1": true}}

	got, err := NewService(dir, bans, nil).GetRandomMatch(ctx, "u1", englishEU)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestGetRandomMatch_PublishFailureStillMatches(t *testing.T) {
	dir, _, ctx := setupDirectory(t)
	seed(t, dir, ctx,
		profile.UserProfile{ID: "u1", Languages: []string{"English"}, Region: "EU"},
		profile.UserProfile{ID: "u2", Languages: []string{"English"}, Region: "EU"},
	)
	pub := &recordingPublisher{err: errors.New("nats down")}

	got, err := NewService(dir, nil, pub).GetRandomMatch(ctx, "u1", englishEU)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u2", got.ID)
}

func TestGetRandomMatch_BackendFailure(t *testing.T) {
	dir, mr, ctx := setupDirectory(t)
	mr.Close()

	got, err := NewService(dir, nil, nil).GetRandomMatch(ctx, "u1", englishEU)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperr.ErrBackendUnavailable)
}

func TestCommitMatch_Conflict(t *testing.T) {
	dir, _, ctx := setupDirectory(t)
	seed(t, dir, ctx,
		profile.UserProfile{ID: "u1", Languages: []string{"English"}, Region: "EU"},
		profile.UserProfile{ID: "u2", Languages: []string{"English"}, Region: "EU"},
	)
	svc := NewService(dir, nil, nil)

	require.NoError(t, svc.CommitMatch(ctx, "u1", "u2"))
	assert.ErrorIs(t, svc.CommitMatch(ctx, "u1", "u2"), apperr.ErrConflict)
	assert.ErrorIs(t, svc.CommitMatch(ctx, "u2", "u1"), apperr.ErrConflict)

	u1, err := dir.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, u1.MatchedWith)
}

func TestCommitMatch_InvalidArgument(t *testing.T) {
	dir, _, ctx := setupDirectory(t)
	svc := NewService(dir, nil, nil)

	assert.ErrorIs(t, svc.CommitMatch(ctx, "", "u2"), apperr.ErrInvalidArgument)
	assert.ErrorIs(t, svc.CommitMatch(ctx, "u1", ""), apperr.ErrInvalidArgument)
	assert.ErrorIs(t, svc.CommitMatch(ctx, "u1", "u1"), apperr.ErrInvalidArgument)
}

func TestCommitMatch_MissingProfile(t *testing.T) {
	dir, _, ctx := setupDirectory(t)
	seed(t, dir, ctx, profile.UserProfile{ID: "u1", Languages: []string{"English"}, Region: "EU"})

	err := NewService(dir, nil, nil).CommitMatch(ctx, "u1", "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCommitMatch_ConcurrentExactlyOnce(t *testing.T) {
	dir, _, ctx := setupDirectory(t)
	seed(t, dir, ctx,
		profile.UserProfile{ID: "u1", Languages: []string{"English"}, Region: "EU"},
		profile.UserProfile{ID: "u2", Languages: []string{"English"}, Region: "EU"},
	)
	svc := NewService(dir, nil, nil)

	var ok, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "u1", "u2"
			if i%2 == 1 {
				a, b = b, a
			}
			err := svc.CommitMatch(ctx, a, b)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, apperr.ErrConflict):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(9), conflicts.Load())

	u2, err := dir.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, u2.MatchedWith)
}

func TestGetRandomMatch_ConcurrentRequestersForOnePartner(t *testing.T) {
	dir, _, ctx := setupDirectory(t)
	seed(t, dir, ctx,
		profile.UserProfile{ID: "a", Languages: []string{"English"}, Region: "EU"},
		profile.UserProfile{ID: "b", Languages: []string{"English"}, Region: "EU"},
	)
	svc := NewService(dir, nil, nil)

	results := make([]*profile.MatchResult, 2)
	var wg sync.WaitGroup
	for i, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			r, err := svc.GetRandomMatch(ctx, id, englishEU)
			assert.NoError(t, err)
			results[i] = r
		}(i, id)
	}
	wg.Wait()

	matched := 0
	for _, r := range results {
		if r != nil {
			matched++
		}
	}
	assert.Equal(t, 1, matched)
}
