package moderation

import (
	"strings"
	"testing"

	"github.com/globetalk/matchmaking/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestScreenSenderName_Accepts(t *testing.T) {
	for _, name := range []string{
		"alice",
		"Dr. Who",
		"dr.who",
		"José María",
		"山田太郎",
		"v2.0 fan",
		"Hmmmmm",
		"Studio 555 123 4567",
		strings.Repeat("long", 12),
	} {
		assert.NoError(t, ScreenSenderName(name), name)
	}
}

func TestScreenSenderName_RejectsURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"http url", "http://evil.com"},
		{"https in name", "bob https://x.io/a"},
		{"www url", "www.phishing.net"},
		{"bare domain with path", "evil.com/free"},
		{"upper case", "WWW.SPAM.ORG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ScreenSenderName(tt.input)
			assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
			assert.Contains(t, err.Error(), "URL")
		})
	}
}
