// internal/location/store_test.go
package location

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vk/trustgo/internal/event"
)

func TestStore_Aliases(t *testing.T) {
	s := NewStore()
	assert.True(t, s.Contains(event.ThreadLocation))
	assert.False(t, s.Contains(101))

	s.AddAlias(1, 101)
	assert.True(t, s.ContainsAlias(101))
	assert.False(t, s.ContainsAlias(1))
	assert.True(t, s.Contains(1))
	assert.True(t, s.Contains(101))

	old, ok := s.Alias(101)
	assert.True(t, ok)
	assert.Equal(t, event.Location(1), old)

	s.ClearAliases()
	assert.False(t, s.ContainsAlias(101))
	assert.True(t, s.Contains(1), "clearing aliases keeps locations")
}

func TestStore_Resolve(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(s *Store)
		in    event.Location
		want  event.Location
	}{
		{name: "unknown location is its own id", setup: func(*Store) {}, in: 7, want: 7},
		{name: "aliased location maps back", setup: func(s *Store) { s.AddAlias(3, 7) }, in: 7, want: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore()
			tc.setup(s)
			assert.Equal(t, tc.want, s.Resolve(tc.in))
			assert.True(t, s.Contains(tc.in))
		})
	}
}

func TestStore_Clear(t *testing.T) {
	s := NewStore()
	s.AddLocation(5)
	s.AddLocation(6)
	assert.Equal(t, 3, s.Len())

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Contains(5))
}
