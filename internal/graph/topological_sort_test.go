package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	name string
	deps []string
}

func (n node) GetName() string           { return n.name }
func (n node) GetDependencies() []string { return n.deps }

func nodes(ns ...node) map[string]Node {
	m := make(map[string]Node, len(ns))
	for _, n := range ns {
		m[n.name] = n
	}
	return m
}

func TestTopologicalSortOrdersDependenciesFirst(t *testing.T) {
	graph := nodes(
		node{name: "server", deps: []string{"storage", "platforms"}},
		node{name: "storage"},
		node{name: "platforms"},
	)

	order, err := TopologicalSort(graph)
	require.NoError(t, err)
	assert.Equal(t, []string{"platforms", "storage", "server"}, order)
}

func TestTopologicalSortIsStable(t *testing.T) {
	graph := nodes(node{name: "c"}, node{name: "a"}, node{name: "b"})

	for i := 0; i < 20; i++ {
		order, err := TopologicalSort(graph)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, order)
	}
}

func TestTopologicalSortDetectsCycle(t *testing.T) {
	graph := nodes(
		node{name: "a", deps: []string{"b"}},
		node{name: "b", deps: []string{"a"}},
	)

	_, err := TopologicalSort(graph)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle detected")
}

func TestValidateGraphMissingDependency(t *testing.T) {
	graph := nodes(node{name: "server", deps: []string{"storage"}})

	err := ValidateGraph(graph)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server depends on storage")

	_, err = TopologicalSort(graph)
	assert.Error(t, err)
}
