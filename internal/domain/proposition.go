package domain

import "time"

// PropOption is one outcome a proposition can resolve to. Key is the stable
// identifier stakes and results refer to; Title is display text and may
// collide between options without ambiguity.
type PropOption struct {
	Key   string
	Title string
}

// Proposition is the multi-option counterpart of a Round: an admin-created
// market over an enumerated set of named outcomes, resolved by an
// admin-declared result instead of a price observation.
type Proposition struct {
	ID          uint64
	Topic       string
	Description string
	ImageURL    *string

	// EndsAt is the staking deadline. ExpectedResultAt is informational.
	EndsAt           time.Time
	ExpectedResultAt *time.Time

	Options []PropOption

	// Pools maps option key to total staked, with every declared option
	// present from creation (zero-valued until staked on).
	Pools map[string]uint64

	// Result is the admin-declared winning option key; nil while open.
	Result    *string
	Cancelled bool

	NumPlayers uint64
	CreatedAt  time.Time
}

// Option returns the declared option with the given key.
func (p *Proposition) Option(key string) (PropOption, bool) {
	for _, opt := range p.Options {
		if opt.Key == key {
			return opt, true
		}
	}
	return PropOption{}, false
}

// Resolved reports whether the proposition has a declared result or was
// cancelled.
func (p *Proposition) Resolved() bool {
	return p.Result != nil || p.Cancelled
}
