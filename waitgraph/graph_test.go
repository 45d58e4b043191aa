package waitgraph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/johniel/mgl2pl/waitgraph"
)

func TestAddEdgeRejectsSelfAndDuplicate(t *testing.T) {
	g := waitgraph.New()
	assert.False(t, g.AddEdge(1, 1, nil))
	assert.True(t, g.AddEdge(1, 2, nil))
	assert.False(t, g.AddEdge(1, 2, nil), "duplicate edge")
}

func TestRemoveEdgeNoOpWhenAbsent(t *testing.T) {
	g := waitgraph.New()
	g.RemoveEdge(1, 2) // must not panic
	assert.Empty(t, g.WaitersOf(2))
}

func TestWaitersOfInsertionOrder(t *testing.T) {
	g := waitgraph.New()
	g.AddEdge(2, 1, "A")
	g.AddEdge(3, 1, "B")
	g.AddEdge(4, 1, "C")

	waiters := g.WaitersOf(1)
	assert.Equal(t, []uint64{2, 3, 4}, []uint64{waiters[0].Waiter, waiters[1].Waiter, waiters[2].Waiter})
}

func TestRemoveVertexClearsIncidentEdges(t *testing.T) {
	g := waitgraph.New()
	g.AddEdge(1, 2, nil)
	g.AddEdge(3, 1, nil)

	g.RemoveVertex(1)

	assert.Empty(t, g.WaitersOf(2))
	assert.Empty(t, g.WaitersOf(1))
}

func TestHasCycleDetectsDirectCycle(t *testing.T) {
	g := waitgraph.New()
	g.AddEdge(1, 2, nil)
	assert.False(t, g.HasCycle())

	g.AddEdge(2, 1, nil)
	assert.True(t, g.HasCycle())
}

func TestHasCycleDetectsLongerCycle(t *testing.T) {
	g := waitgraph.New()
	g.AddEdge(1, 2, nil)
	g.AddEdge(2, 3, nil)
	g.AddEdge(3, 1, nil)
	assert.True(t, g.HasCycle())
}

func TestRemoveOutgoing(t *testing.T) {
	g := waitgraph.New()
	g.AddEdge(1, 2, nil)
	g.RemoveOutgoing(1)
	assert.Empty(t, g.WaitersOf(2))
	assert.True(t, g.AddEdge(1, 2, nil), "edge can be re-added after clearing")
}
