package hierarchy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/johniel/mgl2pl/hierarchy"
	"github.com/johniel/mgl2pl/lockmode"
)

func buildTree() (*hierarchy.Tree, map[string]*hierarchy.Node) {
	tree := hierarchy.NewTree("Database")
	area1 := hierarchy.NewNode("Area1", false)
	table1 := hierarchy.NewNode("Table1", false)
	page1 := hierarchy.NewNode("Page1", false)
	page2 := hierarchy.NewNode("Page2", false)
	tuple1 := hierarchy.NewNode("Tuple1", false)
	tuple2 := hierarchy.NewNode("Tuple2", false)

	tree.AddChild(tree.Root(), area1)
	tree.AddChild(area1, table1)
	tree.AddChild(table1, page1)
	tree.AddChild(table1, page2)
	tree.AddChild(page1, tuple1)
	tree.AddChild(page2, tuple2)

	return tree, map[string]*hierarchy.Node{
		"Database": tree.Root(),
		"Area1":    area1,
		"Table1":   table1,
		"Page1":    page1,
		"Page2":    page2,
		"Tuple1":   tuple1,
		"Tuple2":   tuple2,
	}
}

func TestAncestorsAndDescendants(t *testing.T) {
	_, n := buildTree()

	ancestors := n["Tuple1"].Ancestors()
	assert.Len(t, ancestors, 4)
	assert.Equal(t, "Page1", ancestors[0].Name())
	assert.Equal(t, "Database", ancestors[len(ancestors)-1].Name())

	desc := n["Table1"].Descendants()
	names := make(map[string]bool)
	for _, d := range desc {
		names[d.Name()] = true
	}
	assert.True(t, names["Page1"])
	assert.True(t, names["Page2"])
	assert.True(t, names["Tuple1"])
	assert.True(t, names["Tuple2"])
	assert.Len(t, desc, 4)
}

func TestHolderSetSemantics(t *testing.T) {
	_, n := buildTree()
	node := n["Table1"]

	assert.True(t, node.AddHolder(lockmode.RL, 1))
	assert.False(t, node.AddHolder(lockmode.RL, 1), "adding the same holder twice is a no-op")
	assert.ElementsMatch(t, []uint64{1}, node.Holders(lockmode.RL))

	assert.True(t, node.RemoveHolder(lockmode.RL, 1))
	assert.False(t, node.RemoveHolder(lockmode.RL, 1))
	assert.Empty(t, node.Holders(lockmode.RL))
}

func TestIntentionRefCounting(t *testing.T) {
	_, n := buildTree()
	table1 := n["Table1"]

	assert.Equal(t, 1, table1.IncIntentionRef(1, lockmode.IWL))
	assert.True(t, table1.HasHolder(lockmode.IWL, 1))

	assert.Equal(t, 2, table1.IncIntentionRef(1, lockmode.IWL))
	assert.True(t, table1.HasHolder(lockmode.IWL, 1), "still held while refcount > 0")

	assert.Equal(t, 1, table1.DecIntentionRef(1, lockmode.IWL))
	assert.True(t, table1.HasHolder(lockmode.IWL, 1))

	assert.Equal(t, 0, table1.DecIntentionRef(1, lockmode.IWL))
	assert.False(t, table1.HasHolder(lockmode.IWL, 1), "removed on 1->0 transition")
}

func TestSelectBlockerScanOrder(t *testing.T) {
	_, n := buildTree()
	node := n["Table1"]

	node.AddHolder(lockmode.IRL, 7)
	node.AddHolder(lockmode.RL, 3)
	node.AddHolder(lockmode.WL, 9)

	blocker, ok := node.SelectBlocker(1)
	assert.True(t, ok)
	assert.Equal(t, uint64(9), blocker, "WL scanned before RL/IRL")
}

func TestSelectBlockerFindsCLHolder(t *testing.T) {
	_, n := buildTree()
	node := n["Table1"]

	node.AddHolder(lockmode.CL, 5)

	blocker, ok := node.SelectBlocker(1)
	assert.True(t, ok, "CL holder must be found even though it is absent from BlockingScanOrder")
	assert.Equal(t, uint64(5), blocker)
}

func TestHeldModesExcluding(t *testing.T) {
	_, n := buildTree()
	node := n["Page1"]
	node.AddHolder(lockmode.RL, 1)
	node.AddHolder(lockmode.RL, 2)

	assert.Contains(t, node.HeldModesExcluding(1), lockmode.RL)

	node.RemoveHolder(lockmode.RL, 2)
	assert.NotContains(t, node.HeldModesExcluding(1), lockmode.RL)
}
