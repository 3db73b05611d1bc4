// Package matching pairs a requester with a random pen pal who shares a
// language and region. A match runs in three steps: the Filter collects the
// eligible candidates, the Selector draws one uniformly, and CommitMatch links
// the pair in the directory atomically so two racing requesters cannot both
// claim the same partner.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/globetalk/matchmaking/internal/apperr"
	"github.com/globetalk/matchmaking/internal/metrics"
	"github.com/globetalk/matchmaking/internal/profile"
)

// Match outcomes recorded in metrics.
const (
	OutcomeMatched      = "matched"
	OutcomeNoCandidates = "no_candidates"
	OutcomeConflict     = "conflict"
	OutcomeError        = "error"
)

// Service runs the match flow against a directory.
type Service struct {
	dir      Directory
	filter   *Filter
	selector *Selector
	bans     BanChecker
	events   Publisher
}

// NewService creates a matching service. bans and events may be nil.
func NewService(dir Directory, bans BanChecker, events Publisher) *Service {
	return &Service{
		dir:      dir,
		filter:   NewFilter(dir, bans),
		selector: NewSelector(),
		bans:     bans,
		events:   events,
	}
}

// FindCandidates exposes the candidate filter.
func (s *Service) FindCandidates(ctx context.Context, requesterID string, criteria Criteria) ([]profile.UserProfile, error) {
	return s.filter.FindCandidates(ctx, requesterID, criteria)
}

// GetRandomMatch finds, picks and links a partner for requesterID. It returns
// (nil, nil) when nobody is eligible or when the chosen partner was claimed
// concurrently; both mean "no match, try again". Storage failures are
// returned as errors and no match is reported.
func (s *Service) GetRandomMatch(ctx context.Context, requesterID string, criteria Criteria) (*profile.MatchResult, error) {
	start := time.Now()

	if err := s.checkRequesterBan(ctx, requesterID); err != nil {
		metrics.MatchAttempts.WithLabelValues(OutcomeError).Inc()
		return nil, err
	}

	candidates, err := s.filter.FindCandidates(ctx, requesterID, criteria)
	if err != nil {
		metrics.MatchAttempts.WithLabelValues(OutcomeError).Inc()
		return nil, err
	}
	metrics.MatchCandidates.Observe(float64(len(candidates)))

	chosen, ok := s.selector.Select(candidates)
	if !ok {
		metrics.MatchAttempts.WithLabelValues(OutcomeNoCandidates).Inc()
		log.Printf("[matcher] no candidates for %s (language=%q region=%q interest=%q)",
			requesterID, criteria.Language, criteria.Region, criteria.Interest)
		return nil, nil
	}

	err = s.CommitMatch(ctx, requesterID, chosen.ID)
	switch {
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrNotFound):
		metrics.MatchAttempts.WithLabelValues(OutcomeConflict).Inc()
		log.Printf("[matcher] lost race for %s -> %s: %v", requesterID, chosen.ID, err)
		return nil, nil
	case err != nil:
		metrics.MatchAttempts.WithLabelValues(OutcomeError).Inc()
		return nil, err
	}

	metrics.MatchAttempts.WithLabelValues(OutcomeMatched).Inc()
	metrics.MatchDuration.Observe(time.Since(start).Seconds())
	log.Printf("[matcher] matched %s <-> %s from %d candidates", requesterID, chosen.ID, len(candidates))

	if err := PublishMatchMade(s.events, requesterID, chosen.ID, criteria); err != nil {
		log.Printf("[matcher] publish match: %v", err)
	}

	return chosen.Result(), nil
}

// CommitMatch links requesterID and matchedID in both match histories as one
// atomic step. Returns apperr.ErrConflict if either already lists the other,
// apperr.ErrNotFound if a profile is missing, and apperr.ErrBackendUnavailable
// for any other failure. Nothing is written unless it returns nil.
func (s *Service) CommitMatch(ctx context.Context, requesterID, matchedID string) error {
	if requesterID == "" || matchedID == "" {
		return apperr.Invalid("both user ids are required")
	}
	if requesterID == matchedID {
		return apperr.Invalid("cannot match a user with themselves")
	}

	err := s.dir.LinkMatch(ctx, requesterID, matchedID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperr.ErrConflict),
		errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrBackendUnavailable):
		return err
	default:
		return apperr.Backend(fmt.Sprintf("matching: commit %s/%s", requesterID, matchedID), err)
	}
}

// checkRequesterBan rejects banned requesters. Lookup failures fail open.
func (s *Service) checkRequesterBan(ctx context.Context, requesterID string) error {
	if s.bans == nil || requesterID == "" {
		return nil
	}
	banned, err := s.bans.BannedAmong(ctx, []string{requesterID})
	if err != nil {
		log.Printf("[matcher] ban lookup for %s failed, allowing: %v", requesterID, err)
		return nil
	}
	if banned[requesterID] {
		return fmt.Errorf("matching: user %s is banned: %w", requesterID, apperr.ErrForbidden)
	}
	return nil
}
