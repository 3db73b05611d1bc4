package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "match.made.u1", MatchMadeSubject("u1"))
	assert.Equal(t, "penpal.requested.u2", PenpalRequestedSubject("u2"))
	assert.Equal(t, "penpal.accepted.u3", PenpalAcceptedSubject("u3"))
	assert.Equal(t, "penpal.declined.u4", PenpalDeclinedSubject("u4"))
}

func TestDefaultNATSConfig(t *testing.T) {
	cfg := DefaultNATSConfig()
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.URL)
	assert.Equal(t, -1, cfg.MaxReconnects)
	assert.NotEmpty(t, cfg.Name)
}
