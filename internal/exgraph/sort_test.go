// internal/exgraph/sort_test.go
package exgraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/trustgo/internal/event"
)

func TestGraph_CheckConsistency(t *testing.T) {
	t.Run("store buffering with both reads from init is a cycle", func(t *testing.T) {
		g, _, _, _, _ := storeBuffering(t)

		sorted, err := g.CheckConsistency()
		require.NoError(t, err)
		assert.Nil(t, sorted)
		assert.Equal(t, 5, g.Size(), "the live graph is untouched")
	})

	t.Run("one read observing the other write is consistent", func(t *testing.T) {
		g, wx, ry, wy, rx := storeBuffering(t)
		require.NoError(t, g.ChangeReadsFrom(rx, wx))

		sorted, err := g.CheckConsistency()
		require.NoError(t, err)
		assert.Equal(t, []event.Key{event.InitKey, wx.Key(), ry.Key(), wy.Key(), rx.Key()}, keysOf(sorted))
		assert.Empty(t, ry.Successors(FR), "derived edges stay on the clone")
	})

	t.Run("two exclusive reads of one write are rejected", func(t *testing.T) {
		g := New()
		r0 := add(t, g, 0, event.KindReadExclusive, locX)
		g.SetReadsFrom(r0, g.Init())
		r1 := add(t, g, 1, event.KindReadExclusive, locX)
		g.SetReadsFrom(r1, g.Init())
		w0 := add(t, g, 0, event.KindWriteExclusive, locX)
		g.TrackCoherency(w0)

		sorted, err := g.CheckConsistency()
		require.NoError(t, err)
		assert.Nil(t, sorted)
	})

	t.Run("exclusive pair broken by a foreign write is rejected", func(t *testing.T) {
		g := New()
		r0 := add(t, g, 0, event.KindReadExclusive, locX)
		g.SetReadsFrom(r0, g.Init())
		w1 := add(t, g, 1, event.KindWrite, locX)
		g.TrackCoherency(w1)
		w0 := add(t, g, 0, event.KindWriteExclusive, locX)
		g.TrackCoherency(w0)

		sorted, err := g.CheckConsistency()
		require.NoError(t, err)
		assert.Nil(t, sorted)
	})
}

func TestGraph_CheckConsistencyKeepsExclusivePairsAdjacent(t *testing.T) {
	g := New()
	rx := add(t, g, 0, event.KindReadExclusive, locX)
	g.SetReadsFrom(rx, g.Init())
	wy := add(t, g, 1, event.KindWrite, locY)
	g.TrackCoherency(wy)
	wx := add(t, g, 0, event.KindWriteExclusive, locX)
	g.TrackCoherency(wx)

	plain, err := g.TopologicalSort()
	require.NoError(t, err)
	require.Equal(t, []event.Key{event.InitKey, rx.Key(), wy.Key(), wx.Key()}, keysOf(plain))

	sorted, err := g.CheckConsistency()
	require.NoError(t, err)
	assert.Equal(t, []event.Key{event.InitKey, wy.Key(), rx.Key(), wx.Key()}, keysOf(sorted))

	for i, n := range sorted {
		if n.Kind().IsExclusiveRead() {
			require.Less(t, i+1, len(sorted))
			assert.True(t, n.Kind().PairsWith(sorted[i+1].Kind()), "nothing may separate %s from its write", n.Key())
		}
	}
}

func TestGraph_TopologicalSortIsStableAcrossClones(t *testing.T) {
	g, wx, _, _, rx := storeBuffering(t)
	require.NoError(t, g.ChangeReadsFrom(rx, wx))

	a, err := g.TopologicalSort()
	require.NoError(t, err)
	b, err := g.Clone().TopologicalSort()
	require.NoError(t, err)

	assert.Equal(t, keysOf(a), keysOf(b))
	assert.True(t, g.Clone().Equal(g))
}

func TestTaskSchedule(t *testing.T) {
	t.Run("plain events run their own task", func(t *testing.T) {
		g, wx, _, _, rx := storeBuffering(t)
		require.NoError(t, g.ChangeReadsFrom(rx, wx))
		sorted, err := g.CheckConsistency()
		require.NoError(t, err)

		entries := TaskSchedule(sorted)
		assert.Equal(t, []SchedulingChoice{RunTask(1), RunTask(2), RunTask(2), End()}, Choices(entries))
		assert.Equal(t, []event.Location{event.NoLocation, locY, locY, locX},
			[]event.Location{entries[0].Location, entries[1].Location, entries[2].Location, entries[3].Location})
	})

	t.Run("exclusive pair is one step", func(t *testing.T) {
		g := New()
		start := add(t, g, 0, event.KindThreadStart, event.ThreadLocation)
		rx := add(t, g, 0, event.KindReadExclusive, locX)
		wx := add(t, g, 0, event.KindWriteExclusive, locX)
		w := add(t, g, 1, event.KindWrite, locX)

		entries := TaskSchedule([]*Node{g.Init(), start, rx, wx, w})
		assert.Equal(t, []SchedulingChoice{RunTask(1), RunTask(2), End()}, Choices(entries))
	})

	t.Run("thread start runs the spawner and join takes two steps", func(t *testing.T) {
		g := New()
		start := add(t, g, 0, event.KindThreadStart, event.ThreadLocation)
		child, err := g.AddEvent(event.New(1, event.KindThreadStart, event.ThreadLocation).Set(event.AttrStartedBy, event.TaskID(0)))
		require.NoError(t, err)
		finish := add(t, g, 1, event.KindThreadFinish, event.ThreadLocation)
		join, err := g.AddEvent(event.New(0, event.KindThreadJoin, event.ThreadLocation).Set(event.AttrJoinedTask, event.TaskID(1)))
		require.NoError(t, err)

		entries := TaskSchedule([]*Node{g.Init(), start, child, finish, join})
		assert.Equal(t, []SchedulingChoice{RunTask(1), RunTask(2), RunTask(1), RunTask(1), End()}, Choices(entries))
	})

	t.Run("no scheduled events", func(t *testing.T) {
		g := New()
		start := add(t, g, 0, event.KindThreadStart, event.ThreadLocation)
		assert.Equal(t, []SchedulingChoice{End()}, Choices(TaskSchedule([]*Node{g.Init(), start})))
	})
}

func TestSchedulingChoice_JSON(t *testing.T) {
	choices := []SchedulingChoice{RunTask(1), BlockTask(2), BlockExecution(), End()}

	data, err := MarshalChoices(choices)
	require.NoError(t, err)
	decoded, err := UnmarshalChoices(data)
	require.NoError(t, err)
	assert.Equal(t, choices, decoded)

	_, err = UnmarshalChoices([]byte(`[{"kind":"task","task":0}]`))
	require.Error(t, err)
	_, err = UnmarshalChoices([]byte(`[{"kind":"jump"}]`))
	require.Error(t, err)
}

func TestGraph_JSONRoundTrip(t *testing.T) {
	g, wx, _, _, rx := storeBuffering(t)
	require.NoError(t, g.ChangeReadsFrom(rx, wx))
	wx.Event.Set(event.AttrValue, int64(7))

	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, g.WriteToFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, g.Snapshot(false), decoded)

	node := decoded.Nodes[wx.Key().String()]
	assert.Equal(t, "WRITE", node.Event.Type)
	assert.Equal(t, "7", node.Event.Attributes[event.AttrValue])
	require.NotNil(t, node.Event.Location)
	assert.Equal(t, int64(locX), *node.Event.Location)
	assert.Equal(t, []string{rx.Key().String()}, node.Edges[ReadsFrom.String()])
	assert.Nil(t, decoded.Nodes[event.InitKey.String()].Event.Key.TaskID)
}

func TestGraph_JSONIgnoreLocation(t *testing.T) {
	a, _, _, _, _ := storeBuffering(t)
	b, _, _, _, _ := storeBuffering(t)

	ja, err := a.JSONIgnoreLocation()
	require.NoError(t, err)
	jb, err := b.JSONIgnoreLocation()
	require.NoError(t, err)
	assert.JSONEq(t, string(ja), string(jb))
	assert.NotContains(t, string(ja), `"location"`)
}

func TestGraph_CheckExtensiveConsistency(t *testing.T) {
	t.Run("completed execution", func(t *testing.T) {
		g := New()
		add(t, g, 0, event.KindThreadStart, event.ThreadLocation)
		w := add(t, g, 0, event.KindWrite, locX)
		g.TrackCoherency(w)
		r := add(t, g, 0, event.KindRead, locX)
		g.SetReadsFrom(r, w)
		add(t, g, 0, event.KindThreadFinish, event.ThreadLocation)

		require.NoError(t, g.CheckExtensiveConsistency())
	})

	t.Run("unfinished task", func(t *testing.T) {
		g := New()
		add(t, g, 0, event.KindThreadStart, event.ThreadLocation)
		add(t, g, 0, event.KindWrite, locX)

		require.ErrorIs(t, g.CheckExtensiveConsistency(), ErrInconsistent)
	})

	t.Run("read without source", func(t *testing.T) {
		g := New()
		add(t, g, 0, event.KindRead, locX)
		add(t, g, 0, event.KindThreadFinish, event.ThreadLocation)

		require.ErrorIs(t, g.CheckExtensiveConsistency(), ErrInconsistent)
	})
}
