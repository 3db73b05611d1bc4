// Package api exposes matchmaking and the penpal ledger over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/globetalk/matchmaking/internal/auth"
	"github.com/globetalk/matchmaking/internal/matching"
	"github.com/globetalk/matchmaking/internal/penpal"
	"github.com/globetalk/matchmaking/internal/profile"
	"github.com/globetalk/matchmaking/internal/ratelimit"
)

// Matcher finds random matches.
type Matcher interface {
	GetRandomMatch(ctx context.Context, requesterID string, criteria matching.Criteria) (*profile.MatchResult, error)
}

// Ledger manages penpal requests.
type Ledger interface {
	SendRequest(ctx context.Context, fromID, fromName, toID, toName string) (*penpal.Request, error)
	AcceptRequest(ctx context.Context, pairID, userID string) (*penpal.Request, error)
	DeclineRequest(ctx context.Context, pairID, userID string) (*penpal.Request, error)
	ListAccepted(ctx context.Context, userID string, pageSize int, pageToken string) (penpal.Page, error)
	ListPendingIncoming(ctx context.Context, userID string, pageSize int, pageToken string) (penpal.Page, error)
	ListPendingOutgoing(ctx context.Context, userID string, pageSize int, pageToken string) (penpal.Page, error)
}

// Limiter throttles per-user actions.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	Remaining(ctx context.Context, identifier string, rule ratelimit.Rule) (int, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	matcher Matcher
	ledger  Ledger
	limiter Limiter // optional
	checks  map[string]HealthCheck
}

// NewHandlers creates the handler set. limiter may be nil to disable rate limiting.
func NewHandlers(matcher Matcher, ledger Ledger, limiter Limiter) *Handlers {
	return &Handlers{
		matcher: matcher,
		ledger:  ledger,
		limiter: limiter,
		checks:  make(map[string]HealthCheck),
	}
}

// AddHealthCheck registers a dependency probed by /health.
func (h *Handlers) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	healthy := true
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			log.Printf("[api] health check %s failed: %v", name, err)
			status[name] = "unavailable"
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	if !healthy {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "degraded", "checks": status})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "checks": status})
}

type matchRequest struct {
	Language string `json:"language"`
	Region   string `json:"region"`
	Interest string `json:"interest"`
}

// Match handles POST /api/match.
func (h *Handlers) Match(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Language == "" || req.Region == "" {
		respondError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if !h.allow(w, r, userID, ratelimit.RuleMatch) {
		return
	}

	match, err := h.matcher.GetRandomMatch(r.Context(), userID, matching.Criteria{
		Language: req.Language,
		Region:   req.Region,
		Interest: req.Interest,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if match == nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"message": "No match found, please update your preferences"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"match": match})
}

type penpalRequestBody struct {
	FromUsername string `json:"fromUsername"`
	ToUID        string `json:"toUid"`
	ToUsername   string `json:"toUsername"`
}

// SendPenpalRequest handles POST /api/match/penpal/request.
func (h *Handlers) SendPenpalRequest(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var body penpalRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.FromUsername == "" || body.ToUID == "" || body.ToUsername == "" {
		respondError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if !h.allow(w, r, userID, ratelimit.RulePenpalRequest) {
		return
	}

	req, err := h.ledger.SendRequest(r.Context(), userID, body.FromUsername, body.ToUID, body.ToUsername)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

type docRequest struct {
	DocID string `json:"docId"`
}

// AcceptPenpalRequest handles POST /api/match/penpal/accept.
func (h *Handlers) AcceptPenpalRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.ledger.AcceptRequest)
}

// DeclinePenpalRequest handles POST /api/match/penpal/decline.
func (h *Handlers) DeclinePenpalRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.ledger.DeclineRequest)
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, string, string) (*penpal.Request, error)) {
	userID, _ := auth.UserID(r.Context())

	var body docRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.DocID == "" {
		respondError(w, http.StatusBadRequest, "Missing penpal document ID")
		return
	}

	if _, err := apply(r.Context(), body.DocID, userID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ListPenpals handles GET /api/match/penpal/list.
func (h *Handlers) ListPenpals(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "penpals", h.ledger.ListAccepted)
}

// ListPendingRequests handles GET /api/match/penpal/pending.
func (h *Handlers) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "requests", h.ledger.ListPendingIncoming)
}

// ListSentRequests handles GET /api/match/penpal/sent.
func (h *Handlers) ListSentRequests(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "requests", h.ledger.ListPendingOutgoing)
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request, field string, fetch func(context.Context, string, int, string) (penpal.Page, error)) {
	userID, _ := auth.UserID(r.Context())

	// Unparseable sizes fall back to the default, like an absent one.
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	pageToken := r.URL.Query().Get("pageToken")

	page, err := fetch(r.Context(), userID, pageSize, pageToken)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var next *string
	if page.NextPageToken != "" {
		next = &page.NextPageToken
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		field:           page.Requests,
		"nextPageToken": next,
	})
}

// allow applies a rate limit rule to userID and writes a 429 when exceeded.
// Limiter errors fail open.
func (h *Handlers) allow(w http.ResponseWriter, r *http.Request, userID string, rule ratelimit.Rule) bool {
	if h.limiter == nil {
		return true
	}

	ok, err := h.limiter.Allow(r.Context(), userID, rule)
	if err != nil {
		return true
	}
	if remaining, err := h.limiter.Remaining(r.Context(), userID, rule); err == nil {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	}
	if !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(rule.Window.Seconds())))
		respondError(w, http.StatusTooManyRequests, "Too many requests, please slow down")
		return false
	}
	return true
}
