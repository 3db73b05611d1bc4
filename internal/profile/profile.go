// Package profile holds the matchmaking view of a user: the attributes the
// candidate filter compares and the public projection returned on a match.
package profile

import (
	"strings"

	"golang.org/x/text/cases"
)

// AnonymousName is shown for matched users that never picked a username.
const AnonymousName = "Anonymous"

// UserProfile is a user's matchmaking-relevant attributes.
type UserProfile struct {
	ID          string
	Username    string
	Languages   []string
	Region      string
	Hobbies     []string
	Bio         string
	MatchedWith []string
}

// MatchResult is the public projection of a matched profile.
type MatchResult struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Languages []string `json:"languages"`
	Region    string   `json:"region"`
	Hobbies   []string `json:"hobbies"`
	Bio       string   `json:"bio"`
}

// Key returns the case-insensitive comparison key for a language or region.
func Key(s string) string {
	// Casers carry state, so one is built per call.
	return cases.Fold().String(strings.TrimSpace(s))
}

// SpeaksLanguage reports whether the profile lists language, ignoring case.
func (p *UserProfile) SpeaksLanguage(language string) bool {
	want := Key(language)
	for _, l := range p.Languages {
		if Key(l) == want {
			return true
		}
	}
	return false
}

// InRegion reports whether the profile's region equals region, ignoring case.
func (p *UserProfile) InRegion(region string) bool {
	return Key(p.Region) == Key(region)
}

// HasMatchedWith reports whether id is in the profile's match history.
func (p *UserProfile) HasMatchedWith(id string) bool {
	for _, m := range p.MatchedWith {
		if m == id {
			return true
		}
	}
	return false
}

// Result builds the public projection of p. Nil slices become empty ones so
// the JSON form always carries arrays.
func (p *UserProfile) Result() *MatchResult {
	name := p.Username
	if name == "" {
		name = AnonymousName
	}
	return &MatchResult{
		ID:        p.ID,
		Name:      name,
		Languages: nonNil(p.Languages),
		Region:    p.Region,
		Hobbies:   nonNil(p.Hobbies),
		Bio:       p.Bio,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
