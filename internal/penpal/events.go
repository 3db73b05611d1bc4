package penpal

import (
	"encoding/json"
	"log"
	"time"

	"github.com/globetalk/matchmaking/internal/messaging"
	"github.com/google/uuid"
)

// Publisher sends raw event payloads to a subject. *messaging.NATSClient
// satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Event types.
const (
	EventRequested = "penpal_requested"
	EventAccepted  = "penpal_accepted"
	EventDeclined  = "penpal_declined"
)

// Event is the payload published on penpal.<action>.<user_id>.
type Event struct {
	EventID     string `json:"event_id"`
	Type        string `json:"type"`
	RequestID   string `json:"request_id"`
	RequestedBy string `json:"requested_by"`
	RequestedTo string `json:"requested_to"`
	Ts          int64  `json:"ts"`
}

func subjectFor(eventType, userID string) string {
	switch eventType {
	case EventAccepted:
		return messaging.PenpalAcceptedSubject(userID)
	case EventDeclined:
		return messaging.PenpalDeclinedSubject(userID)
	default:
		return messaging.PenpalRequestedSubject(userID)
	}
}

// publish notifies recipientID of a ledger change. Failures are logged only.
func (l *Ledger) publish(eventType string, req *Request, recipientID string) {
	if l.events == nil {
		return
	}

	data, err := json.Marshal(Event{
		EventID:     uuid.New().String(),
		Type:        eventType,
		RequestID:   req.ID,
		RequestedBy: req.RequestedBy,
		RequestedTo: req.RequestedTo,
		Ts:          time.Now().UnixMilli(),
	})
	if err != nil {
		log.Printf("[penpal] marshal %s event: %v", eventType, err)
		return
	}
	if err := l.events.Publish(subjectFor(eventType, recipientID), data); err != nil {
		log.Printf("[penpal] publish %s for %s: %v", eventType, req.ID, err)
	}
}
