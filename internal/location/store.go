// Package location tracks the memory locations seen by the checker and the
// aliases that map a run's location ids back to the ids recorded in the
// execution graph.
//
// Every run of the subject program may hand out different ids for the same
// memory. While a recorded schedule is replayed, each mismatch between the
// id the graph expects and the id the run reports becomes an alias; once the
// replay ends, fresh events are rewritten through those aliases.
package location

import (
	"github.com/vk/trustgo/internal/event"
)

// Store holds known locations and run-to-graph aliases. It is not safe for
// concurrent use.
type Store struct {
	locations map[event.Location]struct{}
	aliases   map[event.Location]event.Location
}

// NewStore returns a store that knows only the thread pseudo location.
func NewStore() *Store {
	return &Store{
		locations: map[event.Location]struct{}{event.ThreadLocation: {}},
		aliases:   map[event.Location]event.Location{},
	}
}

// AddLocation records a location id.
func (s *Store) AddLocation(loc event.Location) {
	s.locations[loc] = struct{}{}
}

// Contains reports whether loc is known either directly or as an alias.
func (s *Store) Contains(loc event.Location) bool {
	if _, ok := s.locations[loc]; ok {
		return true
	}
	_, ok := s.aliases[loc]
	return ok
}

// AddAlias makes newLoc resolve to oldLoc.
func (s *Store) AddAlias(oldLoc, newLoc event.Location) {
	s.locations[oldLoc] = struct{}{}
	s.aliases[newLoc] = oldLoc
}

// ContainsAlias reports whether loc has an alias.
func (s *Store) ContainsAlias(loc event.Location) bool {
	_, ok := s.aliases[loc]
	return ok
}

// Alias returns the graph id loc resolves to.
func (s *Store) Alias(loc event.Location) (event.Location, bool) {
	old, ok := s.aliases[loc]
	return old, ok
}

// Resolve returns the alias of loc, or loc itself when it has none. A
// location without an alias is recorded as known.
func (s *Store) Resolve(loc event.Location) event.Location {
	if old, ok := s.aliases[loc]; ok {
		return old
	}
	s.AddLocation(loc)
	return loc
}

// Len returns the number of known locations, aliases excluded.
func (s *Store) Len() int { return len(s.locations) }

// ClearAliases drops every alias.
func (s *Store) ClearAliases() {
	clear(s.aliases)
}

// Clear drops every location. Aliases are kept; use ClearAliases for those.
func (s *Store) Clear() {
	clear(s.locations)
}
