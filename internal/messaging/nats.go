// Package messaging provides a NATS client wrapper for publishing GlobeTalk
// domain events. Other services (notifications, chat bootstrap) subscribe to
// the per-user subjects below.
package messaging

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject prefixes. Each is suffixed with .<user_id> of the user the
// event is addressed to.
const (
	SubjectMatchMade       = "match.made"
	SubjectPenpalRequested = "penpal.requested"
	SubjectPenpalAccepted  = "penpal.accepted"
	SubjectPenpalDeclined  = "penpal.declined"
)

// MatchMadeSubject is the subject notifying userID of a new match.
func MatchMadeSubject(userID string) string { return SubjectMatchMade + "." + userID }

// PenpalRequestedSubject is the subject notifying userID of an incoming request.
func PenpalRequestedSubject(userID string) string { return SubjectPenpalRequested + "." + userID }

// PenpalAcceptedSubject is the subject notifying userID that their request was accepted.
func PenpalAcceptedSubject(userID string) string { return SubjectPenpalAccepted + "." + userID }

// PenpalDeclinedSubject is the subject notifying userID that their request was declined.
func PenpalDeclinedSubject(userID string) string { return SubjectPenpalDeclined + "." + userID }

// NATSClient wraps the NATS connection used to publish events.
type NATSClient struct {
	conn *nats.Conn
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns the defaults used when only a URL is configured.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "globetalk-matchmaker",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{conn: nc}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Close flushes pending publishes and closes the NATS connection.
func (c *NATSClient) Close() {
	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
