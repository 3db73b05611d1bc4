package matching

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/globetalk/matchmaking/internal/messaging"
	"github.com/google/uuid"
)

// Publisher sends raw event payloads to a subject. *messaging.NATSClient
// satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// MatchEvent is published on match.made.<user_id> to each side of a new match.
type MatchEvent struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	PartnerID string `json:"partner_id"`
	Language  string `json:"language"`
	Region    string `json:"region"`
	Ts        int64  `json:"ts"`
}

// PublishMatchMade notifies both users of a new match. A nil publisher is a no-op.
func PublishMatchMade(pub Publisher, requesterID, partnerID string, criteria Criteria) error {
	if pub == nil {
		return nil
	}

	now := time.Now().UnixMilli()
	for _, pair := range [][2]string{{requesterID, partnerID}, {partnerID, requesterID}} {
		evt := MatchEvent{
			EventID:   uuid.New().String(),
			Type:      "match_made",
			UserID:    pair[0],
			PartnerID: pair[1],
			Language:  criteria.Language,
			Region:    criteria.Region,
			Ts:        now,
		}
		data, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("matching: marshal event for %s: %w", pair[0], err)
		}
		if err := pub.Publish(messaging.MatchMadeSubject(pair[0]), data); err != nil {
			return fmt.Errorf("matching: publish match.made for %s: %w", pair[0], err)
		}
	}
	return nil
}
