package matching

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/globetalk/matchmaking/internal/apperr"
	"github.com/globetalk/matchmaking/internal/profile"
)

// Criteria are the preferences a requester matches on. Language and Region
// are required; Interest is informational and never narrows the pool.
type Criteria struct {
	Language string `json:"language"`
	Region   string `json:"region"`
	Interest string `json:"interest,omitempty"`
}

// Validate reports an apperr.ErrInvalidArgument for incomplete criteria.
func (c Criteria) Validate() error {
	if strings.TrimSpace(c.Language) == "" || strings.TrimSpace(c.Region) == "" {
		return apperr.Invalid("language and region are required")
	}
	return nil
}

// Directory is the user store the matcher reads candidates from and links
// matches in.
type Directory interface {
	Get(ctx context.Context, id string) (*profile.UserProfile, error)
	FindByLanguageRegion(ctx context.Context, language, region string) ([]profile.UserProfile, error)
	LinkMatch(ctx context.Context, a, b string) error
}

// BanChecker reports which of the given users are currently banned.
type BanChecker interface {
	BannedAmong(ctx context.Context, userIDs []string) (map[string]bool, error)
}

// Filter selects the users eligible to be matched with a requester.
type Filter struct {
	dir  Directory
	bans BanChecker // optional
}

// NewFilter creates a candidate filter. bans may be nil.
func NewFilter(dir Directory, bans BanChecker) *Filter {
	return &Filter{dir: dir, bans: bans}
}

// FindCandidates returns every profile that speaks criteria.Language, lives in
// criteria.Region, is not the requester, has no match history with the
// requester in either direction and is not banned. An empty result means
// there are no candidates; storage failures are returned as errors.
func (f *Filter) FindCandidates(ctx context.Context, requesterID string, criteria Criteria) ([]profile.UserProfile, error) {
	if requesterID == "" {
		return nil, apperr.Invalid("requester id is required")
	}
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	requester, err := f.dir.Get(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("matching: load requester: %w", err)
	}

	hits, err := f.dir.FindByLanguageRegion(ctx, criteria.Language, criteria.Region)
	if err != nil {
		return nil, fmt.Errorf("matching: find candidates: %w", err)
	}

	candidates := make([]profile.UserProfile, 0, len(hits))
	for i := range hits {
		c := &hits[i]
		if c.ID == requesterID {
			continue
		}
		// The query is exact; re-check case-insensitively in case stored
		// values drifted from the query's casing.
		if !c.SpeaksLanguage(criteria.Language) || !c.InRegion(criteria.Region) {
			continue
		}
		if requester.HasMatchedWith(c.ID) || c.HasMatchedWith(requesterID) {
			continue
		}
		candidates = append(candidates, *c)
	}

	return f.dropBanned(ctx, candidates), nil
}

// dropBanned removes banned candidates. Ban lookups fail open.
func (f *Filter) dropBanned(ctx context.Context, candidates []profile.UserProfile) []profile.UserProfile {
	if f.bans == nil || len(candidates) == 0 {
		return candidates
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	banned, err := f.bans.BannedAmong(ctx, ids)
	if err != nil {
		log.Printf("[matcher] ban lookup failed, not filtering: %v", err)
		return candidates
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if !banned[c.ID] {
			kept = append(kept, c)
		}
	}
	return kept
}
