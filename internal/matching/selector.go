package matching

import (
	"math/rand/v2"

	"github.com/globetalk/matchmaking/internal/profile"
)

// Selector picks one candidate uniformly at random.
type Selector struct {
	intN func(n int) int
}

// NewSelector creates a Selector drawing from the global math/rand/v2 source.
func NewSelector() *Selector {
	return &Selector{intN: rand.IntN}
}

// NewSelectorWithSource creates a Selector drawing indices from intN, which
// must return a value in [0, n).
func NewSelectorWithSource(intN func(n int) int) *Selector {
	return &Selector{intN: intN}
}

// Select returns a candidate drawn uniformly from candidates, or false if
// there are none.
func (s *Selector) Select(candidates []profile.UserProfile) (*profile.UserProfile, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	c := candidates[s.intN(len(candidates))]
	return &c, true
}
