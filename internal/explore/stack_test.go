package explore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/trustgo/internal/event"
	"github.com/vk/trustgo/internal/exgraph"
)

func TestStack_LIFO(t *testing.T) {
	g := exgraph.New()
	w, err := g.AddEvent(event.New(0, event.KindWrite, 1))
	require.NoError(t, err)
	r, err := g.AddEvent(event.New(1, event.KindRead, 1))
	require.NoError(t, err)

	s := NewStack()
	assert.True(t, s.IsEmpty())
	_, ok := s.Pop()
	assert.False(t, ok)

	first := ForwardRW(r, g.Init(), g)
	second := ForwardWW(w, g.Init(), g)
	s.Push(first)
	s.Push(second)

	top, ok := s.Peek()
	require.True(t, ok)
	assert.Same(t, second, top)
	assert.Equal(t, 2, s.Len())

	got, ok := s.Pop()
	require.True(t, ok)
	assert.Same(t, second, got)
	got, ok = s.Pop()
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.True(t, s.IsEmpty())

	assert.Equal(t, map[Kind]int{ForwardReadFromWrite: 1, ForwardWriteWrite: 1}, s.Pushed())
}

func TestItem_OwnsItsGraph(t *testing.T) {
	g := exgraph.New()
	w, err := g.AddEvent(event.New(0, event.KindWrite, 1))
	require.NoError(t, err)
	r, err := g.AddEvent(event.New(1, event.KindRead, 1))
	require.NoError(t, err)
	g.SetReadsFrom(r, g.Init())

	it := ForwardRW(r, w, g)
	_, err = g.AddEvent(event.New(0, event.KindWrite, 1))
	require.NoError(t, err)

	assert.Equal(t, 3, it.Graph.Size(), "later mutations of the source graph are not visible")
	read, write, err := it.Nodes()
	require.NoError(t, err)
	assert.Equal(t, r.Key(), read.Key())
	assert.Equal(t, w.Key(), write.Key())
	assert.NotSame(t, r, read)
}

func TestItem_AdditionalEvents(t *testing.T) {
	g := exgraph.New()
	w, err := g.AddEvent(event.New(0, event.KindLockAcquireWrite, 1))
	require.NoError(t, err)

	it := LockBackward(w, g)
	it.AddAdditionalEvent(nil)
	it.AddAdditionalEvent(event.New(1, event.KindLockAcquireRead, 1))

	assert.True(t, it.IsBackward())
	assert.Len(t, it.AdditionalEvents(), 1)
	assert.Equal(t, "LOCK_BWR({0, 0})", it.String())

	first, second, err := it.Nodes()
	require.NoError(t, err)
	assert.Same(t, w, first)
	assert.Nil(t, second)
}

func TestStack_Clear(t *testing.T) {
	g := exgraph.New()
	w, err := g.AddEvent(event.New(0, event.KindWrite, 1))
	require.NoError(t, err)

	s := NewStack()
	s.Push(ForwardLW(w, g))
	s.Push(Backward(w, g))
	s.Clear()

	assert.True(t, s.IsEmpty())
	assert.Equal(t, 2, s.Pushed()[ForwardMaxCoherencyWrite]+s.Pushed()[BackwardRevisit])
}
