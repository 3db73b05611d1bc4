// Package penpal implements the penpal request ledger: one record per
// unordered pair of users, moving from pending to accepted or declined.
//
// Redis layout:
//
//	penpal:<pair_id>             Hash   request record
//	penpal:incoming:<user_id>    ZSet   pending requests sent to the user (score = created_at ms)
//	penpal:outgoing:<user_id>    ZSet   pending requests sent by the user
//	penpal:accepted:<user_id>    ZSet   accepted requests the user takes part in
//
// Every state change runs in a Lua script so the record and its indexes move
// together.
package penpal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/globetalk/matchmaking/internal/apperr"
	"github.com/globetalk/matchmaking/internal/metrics"
	"github.com/globetalk/matchmaking/internal/moderation"
	"github.com/redis/go-redis/v9"
)

const (
	RecordPrefix   = "penpal:"
	IncomingPrefix = "penpal:incoming:"
	OutgoingPrefix = "penpal:outgoing:"
	AcceptedPrefix = "penpal:accepted:"

	// PairSeparator joins the sorted user ids of a pair id. Ids containing it
	// are rejected so that distinct pairs never share a pair id.
	PairSeparator = "_"

	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusDeclined = "declined"
)

// Participant is one side of a request.
type Participant struct {
	ID          string `json:"uid"`
	DisplayName string `json:"username"`
}

// Request is a penpal request record. Participants[0] is the requester.
type Request struct {
	ID           string         `json:"id"`
	Participants [2]Participant `json:"users"`
	RequestedBy  string         `json:"requestedBy"`
	RequestedTo  string         `json:"requestedTo"`
	Status       string         `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	AcceptedBy   string         `json:"acceptedBy,omitempty"`
	DeclinedBy   string         `json:"declinedBy,omitempty"`
}

// record is the Redis hash form of a Request.
type record struct {
	ID              string `redis:"id"`
	RequestedBy     string `redis:"requested_by"`
	RequestedByName string `redis:"requested_by_name"`
	RequestedTo     string `redis:"requested_to"`
	RequestedToName string `redis:"requested_to_name"`
	Status          string `redis:"status"`
	CreatedAt       int64  `redis:"created_at"`
	UpdatedAt       int64  `redis:"updated_at"`
	AcceptedBy      string `redis:"accepted_by"`
	DeclinedBy      string `redis:"declined_by"`
}

func (rec *record) request() *Request {
	return &Request{
		ID: rec.ID,
		Participants: [2]Participant{
			{ID: rec.RequestedBy, DisplayName: rec.RequestedByName},
			{ID: rec.RequestedTo, DisplayName: rec.RequestedToName},
		},
		RequestedBy: rec.RequestedBy,
		RequestedTo: rec.RequestedTo,
		Status:      rec.Status,
		CreatedAt:   time.UnixMilli(rec.CreatedAt).UTC(),
		UpdatedAt:   time.UnixMilli(rec.UpdatedAt).UTC(),
		AcceptedBy:  rec.AcceptedBy,
		DeclinedBy:  rec.DeclinedBy,
	}
}

// PairID returns the canonical id for the unordered pair {a, b}.
func PairID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, PairSeparator)
}

func recordKey(id string) string { return RecordPrefix + id }

// Ledger stores penpal requests in Redis.
type Ledger struct {
	rdb              *redis.Client
	sendScript       *redis.Script
	transitionScript *redis.Script
	events           Publisher
	now              func() time.Time
}

// NewLedger creates a ledger backed by Redis. events may be nil.
func NewLedger(rdb *redis.Client, events Publisher) *Ledger {
	return &Ledger{
		rdb:              rdb,
		sendScript:       redis.NewScript(sendRequestLua),
		transitionScript: redis.NewScript(transitionLua),
		events:           events,
		now:              time.Now,
	}
}

// SendRequest records a pending request from fromID to toID. Returns
// apperr.ErrAlreadyPenpals if the pair has an accepted request and
// apperr.ErrRequestAlreadyPending if a request is pending in either
// direction. A declined request is replaced.
func (l *Ledger) SendRequest(ctx context.Context, fromID, fromName, toID, toName string) (*Request, error) {
	req, err := l.sendRequest(ctx, fromID, fromName, toID, toName)
	metrics.PenpalRequests.WithLabelValues("send", resultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}

	log.Printf("[penpal] %s requested %s (%s)", fromID, toID, req.ID)
	l.publish(EventRequested, req, toID)
	return req, nil
}

func (l *Ledger) sendRequest(ctx context.Context, fromID, fromName, toID, toName string) (*Request, error) {
	if fromID == "" || fromName == "" || toID == "" || toName == "" {
		return nil, apperr.Invalid("all parameters are required")
	}
	if fromID == toID {
		return nil, apperr.Invalid("cannot send request to yourself")
	}
	if strings.Contains(fromID, PairSeparator) || strings.Contains(toID, PairSeparator) {
		return nil, apperr.Invalid("user ids must not contain %q", PairSeparator)
	}
	// toName is the recipient's own username, so only the sender's is screened.
	if err := moderation.ScreenSenderName(fromName); err != nil {
		return nil, err
	}

	id := PairID(fromID, toID)
	now := l.now().UnixMilli()
	keys := []string{recordKey(id), IncomingPrefix + toID, OutgoingPrefix + fromID}

	res, err := l.sendScript.Run(ctx, l.rdb, keys, id, fromID, fromName, toID, toName, now).Int()
	if err != nil {
		return nil, apperr.Backend("penpal: send request", err)
	}
	switch res {
	case 1:
	case -1:
		return nil, fmt.Errorf("penpal: send %s: %w", id, apperr.ErrAlreadyPenpals)
	case -2:
		return nil, fmt.Errorf("penpal: send %s: %w", id, apperr.ErrRequestAlreadyPending)
	default:
		return nil, fmt.Errorf("penpal: send %s: unexpected script result %d: %w", id, res, apperr.ErrBackendUnavailable)
	}

	rec := record{
		ID:              id,
		RequestedBy:     fromID,
		RequestedByName: fromName,
		RequestedTo:     toID,
		RequestedToName: toName,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return rec.request(), nil
}

// AcceptRequest marks a pending request accepted. Only the recipient may
// accept. Returns apperr.ErrNotFound for an unknown id, apperr.ErrForbidden
// for any other user and apperr.ErrConflict if the request is not pending.
func (l *Ledger) AcceptRequest(ctx context.Context, pairID, userID string) (*Request, error) {
	req, err := l.transition(ctx, pairID, userID, StatusAccepted)
	metrics.PenpalRequests.WithLabelValues("accept", resultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}

	log.Printf("[penpal] %s accepted %s", userID, pairID)
	l.publish(EventAccepted, req, req.RequestedBy)
	return req, nil
}

// DeclineRequest marks a pending request declined. Same rules as AcceptRequest.
func (l *Ledger) DeclineRequest(ctx context.Context, pairID, userID string) (*Request, error) {
	req, err := l.transition(ctx, pairID, userID, StatusDeclined)
	metrics.PenpalRequests.WithLabelValues("decline", resultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}

	log.Printf("[penpal] %s declined %s", userID, pairID)
	l.publish(EventDeclined, req, req.RequestedBy)
	return req, nil
}

func (l *Ledger) transition(ctx context.Context, pairID, userID, status string) (*Request, error) {
	if pairID == "" || userID == "" {
		return nil, apperr.Invalid("request id and user id are required")
	}

	// The participants pick the index keys; the script re-checks them so a
	// record replaced in between is reported as a conflict.
	parties, err := l.rdb.HMGet(ctx, recordKey(pairID), "requested_by", "requested_to").Result()
	if err != nil {
		return nil, apperr.Backend("penpal: load "+pairID, err)
	}
	from, _ := parties[0].(string)
	to, _ := parties[1].(string)
	if from == "" || to == "" {
		return nil, fmt.Errorf("penpal: request %s: %w", pairID, apperr.ErrNotFound)
	}

	byField := "accepted_by"
	if status == StatusDeclined {
		byField = "declined_by"
	}
	keys := []string{
		recordKey(pairID),
		IncomingPrefix + to,
		OutgoingPrefix + from,
		AcceptedPrefix + from,
		AcceptedPrefix + to,
	}
	now := l.now().UnixMilli()

	res, err := l.transitionScript.Run(ctx, l.rdb, keys, pairID, userID, status, byField, now, from, to).Int()
	if err != nil {
		return nil, apperr.Backend("penpal: "+status+" "+pairID, err)
	}
	switch res {
	case 1:
	case -1:
		return nil, fmt.Errorf("penpal: request %s: %w", pairID, apperr.ErrNotFound)
	case -2:
		return nil, fmt.Errorf("penpal: request %s is not pending: %w", pairID, apperr.ErrConflict)
	case -3:
		return nil, fmt.Errorf("penpal: %s is not the recipient of %s: %w", userID, pairID, apperr.ErrForbidden)
	case -4:
		return nil, fmt.Errorf("penpal: request %s changed concurrently: %w", pairID, apperr.ErrConflict)
	default:
		return nil, fmt.Errorf("penpal: %s %s: unexpected script result %d: %w", status, pairID, res, apperr.ErrBackendUnavailable)
	}

	return l.Get(ctx, pairID)
}

// Get returns the request with the given pair id.
func (l *Ledger) Get(ctx context.Context, pairID string) (*Request, error) {
	var rec record
	if err := l.rdb.HGetAll(ctx, recordKey(pairID)).Scan(&rec); err != nil {
		return nil, apperr.Backend("penpal: get "+pairID, err)
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("penpal: request %s: %w", pairID, apperr.ErrNotFound)
	}
	return rec.request(), nil
}

// resultLabel classifies an error for the penpal metrics.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrAlreadyPenpals):
		return "already_penpals"
	case errors.Is(err, apperr.ErrForbidden):
		return "forbidden"
	case errors.Is(err, apperr.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

// sendRequestLua creates a pending request unless the pair is already
// penpals or has a pending request in either direction. Returns:
//
//	 1 = created
//	-1 = already accepted
//	-2 = already pending
const sendRequestLua = `
local status = redis.call('HGET', KEYS[1], 'status')
if status == 'accepted' then return -1 end
if status == 'pending' then return -2 end

redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1],
    'id', ARGV[1],
    'requested_by', ARGV[2],
    'requested_by_name', ARGV[3],
    'requested_to', ARGV[4],
    'requested_to_name', ARGV[5],
    'status', 'pending',
    'created_at', ARGV[6],
    'updated_at', ARGV[6])
redis.call('ZADD', KEYS[2], ARGV[6], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[6], ARGV[1])
return 1
`

// transitionLua moves a pending request to accepted or declined and updates
// the pending and accepted indexes of both users. Returns:
//
//	 1 = done
//	-1 = request not found
//	-2 = not pending
//	-3 = actor is not the recipient
//	-4 = participants differ from the ones the caller read
const transitionLua = `
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return -1 end

local from = redis.call('HGET', KEYS[1], 'requested_by')
local to = redis.call('HGET', KEYS[1], 'requested_to')
if from ~= ARGV[6] or to ~= ARGV[7] then return -4 end
if ARGV[2] ~= to then return -3 end
if status ~= 'pending' then return -2 end

redis.call('HSET', KEYS[1], 'status', ARGV[3], ARGV[4], ARGV[2], 'updated_at', ARGV[5])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])

if ARGV[3] == 'accepted' then
    local created = redis.call('HGET', KEYS[1], 'created_at')
    redis.call('ZADD', KEYS[4], created, ARGV[1])
    redis.call('ZADD', KEYS[5], created, ARGV[1])
end
return 1
`
